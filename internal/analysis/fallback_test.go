package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/dayreview/internal/domain"
)

func abDay() domain.DaySummary {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	var input []domain.MinuteActivity
	for i := 0; i < 20; i++ {
		input = append(input, domain.MinuteActivity{Minute: base.Add(time.Duration(i) * time.Minute), Keys: 1, Mouse: 1})
	}
	return domain.DaySummary{
		Date: "2026-03-10",
		AppUsages: []domain.AppUsage{
			{AppID: "A", Category: domain.CategoryWork, TotalDuration: 30 * time.Minute, SessionCount: 1},
			{AppID: "B", Category: domain.CategoryGame, TotalDuration: 30 * time.Minute, SessionCount: 1},
		},
		InputActivity: input,
	}
}

func TestFallback_Pure(t *testing.T) {
	day := abDay()
	w := DefaultWeights()

	first := Fallback(day, w)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Fallback(day, w))
	}
}

func TestFallback_ABScenario(t *testing.T) {
	w := DefaultWeights()
	day := abDay()
	require.Equal(t, int64(40), day.InputTotal())

	got := Fallback(day, w)

	// 40 inputs over 60 tracked minutes.
	density := 40.0 / 60.0 / w.DensityCeiling
	wantMood := round1(w.MoodBase + w.MoodLeisureWeight*0.5 + w.MoodDensityWeight*density)
	wantStress := round1(w.StressBase + w.StressWorkWeight*(0.5/8) + w.StressDensityWeight*density)
	assert.Equal(t, wantMood, got.MoodIndex)
	assert.Equal(t, wantStress, got.StressIndex)
	assert.NotEmpty(t, got.Caption)

	// Same day with the game half recategorized as work scores lower mood.
	allWork := abDay()
	allWork.AppUsages[1].Category = domain.CategoryWork
	assert.Less(t, Fallback(allWork, w).MoodIndex, got.MoodIndex)
}

func TestFallback_EmptyDay(t *testing.T) {
	w := DefaultWeights()
	got := Fallback(domain.DaySummary{Date: "2026-03-11"}, w)

	assert.Equal(t, w.EmptyMood, got.MoodIndex)
	assert.Equal(t, w.EmptyStress, got.StressIndex)
	assert.Equal(t, emptyCaption, got.Caption)
}

func TestFallback_ScoresClamped(t *testing.T) {
	w := DefaultWeights()
	w.MoodBase = 90
	w.StressBase = 95
	day := domain.DaySummary{
		Date: "2026-03-12",
		AppUsages: []domain.AppUsage{
			{AppID: "steam", Category: domain.CategoryGame, TotalDuration: 5 * time.Hour},
			{AppID: "code", Category: domain.CategoryWork, TotalDuration: 14 * time.Hour},
		},
	}

	got := Fallback(day, w)
	assert.Equal(t, 100.0, got.MoodIndex)
	assert.Equal(t, 100.0, got.StressIndex)
	assert.Equal(t, summaryLongWork, got.Summary)
}

func TestFallback_CaptionFollowsBands(t *testing.T) {
	w := DefaultWeights()
	assert.Equal(t, bandLow, bandOf(w.LowBand-0.1, w))
	assert.Equal(t, bandMid, bandOf(w.LowBand, w))
	assert.Equal(t, bandHigh, bandOf(w.HighBand, w))

	day := abDay()
	got := Fallback(day, w)
	assert.Contains(t, captions[bandOf(got.MoodIndex, w)][bandOf(got.StressIndex, w)], got.Caption)
}

func TestAnalyzeProductivity(t *testing.T) {
	p := AnalyzeProductivity(map[domain.Category]time.Duration{
		domain.CategoryWork:   6 * time.Hour,
		domain.CategoryGame:   3 * time.Hour,
		domain.CategoryBrowse: 1 * time.Hour,
	})
	assert.Equal(t, 60.0, p.ProductivityRatio)
	assert.Equal(t, 30.0, p.LeisureRatio)
	assert.InDelta(t, 85.7, p.WorkFocusScore, 0.01)
	assert.Equal(t, 100.0, p.BalanceScore)

	assert.Equal(t, Productivity{BalanceScore: 50}, AnalyzeProductivity(nil))
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	w := DefaultWeights()
	w.BaselineWorkday = 0
	w.LowBand = 80
	err := w.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseline_workday")
	assert.Contains(t, err.Error(), "low_band")
}
