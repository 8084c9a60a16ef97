package domain

import "time"

// ReportSource records which analysis path produced a report.
type ReportSource string

const (
	// SourceAI indicates a provider-generated report.
	SourceAI ReportSource = "ai"
	// SourceFallback indicates the local rule evaluator produced the report.
	SourceFallback ReportSource = "fallback"
)

// Report is the analysis result for one day. Reports for sealed days are
// written once; regeneration replaces the whole row.
type Report struct {
	ID          string       `json:"id"`
	Date        Date         `json:"date"`
	MoodIndex   float64      `json:"mood_index"`
	StressIndex float64      `json:"stress_index"`
	Caption     string       `json:"caption_text"`
	Summary     string       `json:"summary,omitempty"`
	Source      ReportSource `json:"source"`
	Preview     bool         `json:"preview"`
	CreatedAt   time.Time    `json:"created_at"`
}
