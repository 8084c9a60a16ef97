package engine

import (
	"context"
	"time"

	"github.com/ashureev/dayreview/internal/analysis"
	"github.com/ashureev/dayreview/internal/domain"
)

// Stats is the live view of the open day.
type Stats struct {
	domain.DaySummary
	Current      *domain.OpenSample    `json:"current,omitempty"`
	Paused       bool                  `json:"paused"`
	Productivity analysis.Productivity `json:"productivity"`
	AsOf         time.Time             `json:"as_of"`
}

// Status is a cheap snapshot of the engine state.
type Status struct {
	Running bool               `json:"running"`
	Paused  bool               `json:"paused"`
	OpenDay domain.OpenDay     `json:"open_day"`
	Current *domain.OpenSample `json:"current,omitempty"`
}

// Status returns the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Running: e.started,
		Paused:  e.sampler.Paused(),
		OpenDay: e.open,
		Current: e.sampler.Current(),
	}
}

// GetTodayStats returns the open day's summary with the in-progress sample
// counted up to now. The stored data is not changed.
func (e *Engine) GetTodayStats(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return Stats{}, ErrNotRunning
	}
	open := e.open
	current := e.sampler.Current()
	paused := e.sampler.Paused()
	now := e.now()
	e.mu.Unlock()

	summary, err := e.store.GetDay(ctx, open.Date)
	if err != nil {
		return Stats{}, err
	}
	if current != nil && current.Date == summary.Date && now.After(current.Start) {
		summary.AppUsages = foldLive(summary.AppUsages, current, e.cat.Categorize(current.AppID), now.Sub(current.Start))
	}

	return Stats{
		DaySummary:   summary,
		Current:      current,
		Paused:       paused,
		Productivity: analysis.AnalyzeProductivity(summary.CategoryDurations()),
		AsOf:         now,
	}, nil
}

func foldLive(usages []domain.AppUsage, open *domain.OpenSample, cat domain.Category, d time.Duration) []domain.AppUsage {
	out := make([]domain.AppUsage, len(usages))
	copy(out, usages)
	for i := range out {
		if out[i].AppID == open.AppID {
			out[i].TotalDuration += d
			out[i].SessionCount++
			return out
		}
	}
	return append(out, domain.AppUsage{AppID: open.AppID, Category: cat, TotalDuration: d, SessionCount: 1})
}

// GetDay returns the stored summary for date.
func (e *Engine) GetDay(ctx context.Context, date domain.Date) (domain.DaySummary, error) {
	return e.store.GetDay(ctx, date)
}

// History returns up to limit days, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]domain.DaySummary, error) {
	return e.store.ListDays(ctx, limit)
}
