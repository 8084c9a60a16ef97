package analysis

import (
	"github.com/ashureev/dayreview/internal/domain"
)

// Payload is everything a provider is allowed to see about a day. It holds
// only aggregates: no app identifiers, window titles or per-minute data.
type Payload struct {
	Date               domain.Date        `json:"date"`
	CategoryMinutes    map[string]float64 `json:"category_durations_minutes"`
	InputActivityTotal int64              `json:"input_activity_total"`
	DayLengthMinutes   float64            `json:"day_length_minutes"`
	Productivity       Productivity       `json:"productivity"`
}

// NewPayload reduces a day to its provider payload.
func NewPayload(day domain.DaySummary) Payload {
	durations := day.CategoryDurations()
	minutes := make(map[string]float64, len(durations))
	for cat, d := range durations {
		minutes[string(cat)] = round1(d.Minutes())
	}
	return Payload{
		Date:               day.Date,
		CategoryMinutes:    minutes,
		InputActivityTotal: day.InputTotal(),
		DayLengthMinutes:   round1(day.Tracked().Minutes()),
		Productivity:       AnalyzeProductivity(durations),
	}
}
