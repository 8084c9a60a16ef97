package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
)

// finalizeAsync produces reports for sealed days in order, in a tracked
// goroutine so sealing never waits for analysis. Days already being
// finalized are skipped, so a retried rollover that seals a day again
// does not analyze it twice.
func (e *Engine) finalizeAsync(days []domain.DaySummary) {
	days = e.claimFinalizing(days)
	if len(days) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		for _, day := range days {
			if _, err := e.Finalize(e.lifeCtx, day); err != nil {
				e.logger.Error("report finalization failed", "date", day.Date, "error", err)
			}
			e.releaseFinalizing(day.Date)
		}
	}()
}

func (e *Engine) claimFinalizing(days []domain.DaySummary) []domain.DaySummary {
	e.finalizingMu.Lock()
	defer e.finalizingMu.Unlock()
	claimed := make([]domain.DaySummary, 0, len(days))
	for _, day := range days {
		if _, busy := e.finalizing[day.Date]; busy {
			e.logger.Debug("report finalization already in flight", "date", day.Date)
			continue
		}
		e.finalizing[day.Date] = struct{}{}
		claimed = append(claimed, day)
	}
	return claimed
}

func (e *Engine) releaseFinalizing(date domain.Date) {
	e.finalizingMu.Lock()
	defer e.finalizingMu.Unlock()
	delete(e.finalizing, date)
}

// Finalize returns the report of a sealed day, generating, saving and
// delivering it the first time. Later calls return the stored report
// without generating again. Cancelling ctx only aborts the provider call;
// the fallback report is still saved and delivered.
func (e *Engine) Finalize(ctx context.Context, day domain.DaySummary) (domain.Report, error) {
	if !day.Sealed {
		return domain.Report{}, fmt.Errorf("finalize %s: day is not sealed", day.Date)
	}
	if day.Report != nil {
		return *day.Report, nil
	}

	existing, err := e.store.GetReport(ctx, day.Date)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil {
		return domain.Report{}, fmt.Errorf("load report: %w", err)
	}

	report := e.pipeline.Analyze(ctx, day)

	persistCtx := context.WithoutCancel(ctx)
	stored, err := e.store.SaveReport(persistCtx, report)
	if err != nil {
		e.fail(err)
		return domain.Report{}, fmt.Errorf("save report: %w", err)
	}
	if stored.ID != report.ID {
		// Another finalization won the race.
		return stored, nil
	}

	e.logger.Info("report ready",
		"date", stored.Date,
		"source", stored.Source,
		"mood_index", stored.MoodIndex,
		"stress_index", stored.StressIndex,
	)
	e.deliver(persistCtx, stored)
	return stored, nil
}

func (e *Engine) deliver(ctx context.Context, report domain.Report) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.sink.OnReportReady(ctx, report); err != nil {
		e.logger.Warn("report sink failed", "date", report.Date, "error", err)
	}
}

// GenerateReportNow analyzes the open day without sealing it. The preview
// report is delivered but not stored.
func (e *Engine) GenerateReportNow(ctx context.Context) (domain.Report, error) {
	stats, err := e.GetTodayStats(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	report := e.pipeline.Analyze(ctx, stats.DaySummary)
	report.Preview = true
	e.deliver(context.WithoutCancel(ctx), report)
	return report, nil
}

// RegenerateReport analyzes a sealed day again and replaces its report as
// a whole.
func (e *Engine) RegenerateReport(ctx context.Context, date domain.Date) (domain.Report, error) {
	day, err := e.store.GetDay(ctx, date)
	if err != nil {
		return domain.Report{}, err
	}
	if !day.Sealed {
		return domain.Report{}, fmt.Errorf("regenerate %s: %w", date, ErrDayOpen)
	}
	day.Report = nil

	report := e.pipeline.Analyze(ctx, day)
	if err := e.store.ReplaceReport(context.WithoutCancel(ctx), report); err != nil {
		e.fail(err)
		return domain.Report{}, fmt.Errorf("replace report: %w", err)
	}
	e.logger.Info("report regenerated", "date", date, "source", report.Source)
	e.deliver(context.WithoutCancel(ctx), report)
	return report, nil
}

// ErrDayOpen is returned when an operation needs a sealed day.
var ErrDayOpen = errors.New("day is still open")
