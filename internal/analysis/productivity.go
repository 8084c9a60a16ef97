package analysis

import (
	"math"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
)

const (
	idealWorkPercent    = 60.0
	idealLeisurePercent = 30.0
)

// Productivity holds percentage ratios derived from category durations.
type Productivity struct {
	ProductivityRatio float64 `json:"productivity_ratio"`
	LeisureRatio      float64 `json:"leisure_ratio"`
	WorkFocusScore    float64 `json:"work_focus_score"`
	BalanceScore      float64 `json:"balance_score"`
}

// AnalyzeProductivity derives the productivity ratios. Work focus is work
// time over work plus social plus browse time. Balance measures distance
// from a 60% work, 30% leisure split.
func AnalyzeProductivity(durations map[domain.Category]time.Duration) Productivity {
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	if total <= 0 {
		return Productivity{BalanceScore: 50}
	}

	work := durations[domain.CategoryWork]
	leisure := durations[domain.CategoryGame] + durations[domain.CategoryEntertainment]
	related := work + durations[domain.CategorySocial] + durations[domain.CategoryBrowse]

	p := Productivity{
		ProductivityRatio: percent(work, total),
		LeisureRatio:      percent(leisure, total),
	}
	if related > 0 {
		p.WorkFocusScore = percent(work, related)
	}
	balance := 100 - math.Abs(p.ProductivityRatio-idealWorkPercent) - math.Abs(p.LeisureRatio-idealLeisurePercent)
	p.BalanceScore = round1(math.Max(0, balance))
	return p
}

func percent(part, total time.Duration) float64 {
	return round1(float64(part) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
