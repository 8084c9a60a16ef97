// Package engine wires the sampler, scheduler, store and analysis pipeline
// into the running DayReview core. It owns the single open day handle and
// serializes every mutation behind one mutex.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/dayreview/internal/analysis"
	"github.com/ashureev/dayreview/internal/domain"
	"github.com/ashureev/dayreview/internal/notify"
	"github.com/ashureev/dayreview/internal/rollover"
	"github.com/ashureev/dayreview/internal/sampler"
	"github.com/ashureev/dayreview/internal/store"
)

// Options tunes an Engine. Zero values pick defaults.
type Options struct {
	Location      *time.Location
	TickInterval  time.Duration
	RetentionDays int
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Engine is the activity aggregation core.
type Engine struct {
	store     store.Repository
	cat       sampler.Categorizer
	sampler   *sampler.Sampler
	scheduler *rollover.Scheduler
	pipeline  *analysis.Pipeline
	sink      notify.Sink
	logger    *slog.Logger

	loc       *time.Location
	now       func() time.Time
	tick      time.Duration
	retention int

	mu      sync.Mutex
	open    domain.OpenDay
	started bool

	// lifeCtx outlives request contexts; Close cancels it so outstanding
	// provider calls give up and the fallback is used.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	inflight   sync.WaitGroup

	// finalizing holds dates with a finalization in flight.
	finalizingMu sync.Mutex
	finalizing   map[domain.Date]struct{}

	fatal     chan error
	fatalOnce sync.Once
}

// New creates an Engine. sink may be nil.
func New(repo store.Repository, cat sampler.Categorizer, pipeline *analysis.Pipeline, sink notify.Sink, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	if sink == nil {
		sink = notify.Multi{}
	}

	smp := sampler.New(repo, cat, opts.Location, logger)
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	return &Engine{
		store:      repo,
		cat:        cat,
		sampler:    smp,
		scheduler:  rollover.New(repo, smp, opts.Location, logger),
		pipeline:   pipeline,
		sink:       sink,
		logger:     logger,
		loc:        opts.Location,
		now:        opts.Now,
		tick:       opts.TickInterval,
		retention:  opts.RetentionDays,
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		fatal:      make(chan error, 1),
		finalizing: make(map[domain.Date]struct{}),
	}
}

// Start recovers the open day, discards any sample a previous run left open,
// seals days missed while the process was down and schedules their reports.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return errors.New("engine already started")
	}
	now := e.now()

	open, err := e.scheduler.Recover(ctx, now)
	if err != nil {
		return fmt.Errorf("recover open day: %w", err)
	}
	if err := e.sampler.Restore(ctx, open, now); err != nil {
		return fmt.Errorf("restore sampler: %w", err)
	}
	e.open = open
	e.started = true

	if err := e.resumeUnreported(ctx); err != nil {
		return err
	}
	if err := e.advanceLocked(ctx, now); err != nil {
		return err
	}

	e.logger.Info("engine started", "date", e.open.Date, "opened_at", e.open.OpenedAt)
	return nil
}

// resumeUnreported schedules reports for sealed days that have none, which
// happens when the process stopped between sealing and saving the report.
func (e *Engine) resumeUnreported(ctx context.Context) error {
	days, err := e.store.ListDays(ctx, e.retention)
	if err != nil {
		return fmt.Errorf("list days: %w", err)
	}
	var pending []domain.DaySummary
	for i := len(days) - 1; i >= 0; i-- {
		if days[i].Sealed && days[i].Report == nil {
			pending = append(pending, days[i])
		}
	}
	if len(pending) > 0 {
		e.logger.Info("finalizing sealed days without report", "count", len(pending))
		e.finalizeAsync(pending)
	}
	return nil
}

// Fatal delivers the first unrecoverable error, such as a durable write
// that exhausted its retries.
func (e *Engine) Fatal() <-chan error {
	return e.fatal
}

func (e *Engine) fail(err error) {
	if err == nil || !errors.Is(err, domain.ErrFatal) {
		return
	}
	e.fatalOnce.Do(func() {
		e.logger.Error("fatal store failure", "error", err)
		e.fatal <- err
	})
}

// Close stops accepting work: the open sample is flushed, outstanding
// analyses are cancelled (falling back to local scoring) and Close waits
// for their reports to be saved, or for ctx to expire.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	var flushErr error
	if e.started {
		flushErr = e.sampler.Flush(ctx, e.now())
		e.started = false
	}
	e.mu.Unlock()

	e.lifeCancel()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for reports: %w", ctx.Err())
	}
	if flushErr != nil {
		return fmt.Errorf("flush sampler: %w", flushErr)
	}
	return nil
}

// advanceLocked seals finished days, prunes old detail rows and schedules
// the sealed days' reports. e.mu must be held.
func (e *Engine) advanceLocked(ctx context.Context, now time.Time) error {
	open, sealed, err := e.scheduler.Advance(ctx, e.open, now)
	e.open = open
	if len(sealed) > 0 {
		e.finalizeAsync(sealed)
		e.pruneLocked(ctx, now)
	}
	if err != nil {
		e.fail(err)
		return fmt.Errorf("advance: %w", err)
	}
	return nil
}

func (e *Engine) pruneLocked(ctx context.Context, now time.Time) {
	cutoff := domain.DateOf(now, e.loc).AddDays(-e.retention)
	removed, err := e.store.PruneDetailOlderThan(ctx, cutoff)
	if err != nil {
		e.fail(err)
		e.logger.Error("retention sweep failed", "cutoff", cutoff, "error", err)
		return
	}
	if removed > 0 {
		e.logger.Info("retention sweep completed", "cutoff", cutoff, "removed", removed)
	}
}

// Advance runs one scheduler step at the current time.
func (e *Engine) Advance(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return ErrNotRunning
	}
	return e.advanceLocked(ctx, e.now())
}

// ErrNotRunning is returned by engine calls made before Start or after Close.
var ErrNotRunning = errors.New("engine is not running")

// OpenDay returns the current open day handle.
func (e *Engine) OpenDay() domain.OpenDay {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// OnFocusChanged records that appID gained focus at `at`.
func (e *Engine) OnFocusChanged(ctx context.Context, appID, title string, at time.Time) error {
	return e.mutate(ctx, func() error {
		return e.sampler.OnFocusChanged(ctx, appID, title, at)
	})
}

// OnInputTick records count input events of kind at `at`.
func (e *Engine) OnInputTick(ctx context.Context, kind domain.InputKind, at time.Time, count int64) error {
	return e.mutate(ctx, func() error {
		return e.sampler.OnInputTick(ctx, kind, at, count)
	})
}

// PauseMonitoring stops accumulation until ResumeMonitoring.
func (e *Engine) PauseMonitoring(ctx context.Context) error {
	return e.mutate(ctx, func() error {
		if err := e.sampler.Pause(ctx, e.now()); err != nil {
			return err
		}
		e.logger.Info("monitoring paused")
		return nil
	})
}

// ResumeMonitoring restarts accumulation.
func (e *Engine) ResumeMonitoring(ctx context.Context) error {
	return e.mutate(ctx, func() error {
		if err := e.sampler.Resume(ctx, e.now()); err != nil {
			return err
		}
		e.logger.Info("monitoring resumed")
		return nil
	})
}

// mutate advances to the current day before applying fn under the lock.
func (e *Engine) mutate(ctx context.Context, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return ErrNotRunning
	}
	// Rollover must not fail halfway because the caller went away.
	if err := e.advanceLocked(context.WithoutCancel(ctx), e.now()); err != nil {
		return err
	}
	err := fn()
	if errors.Is(err, sampler.ErrStaleEvent) || errors.Is(err, sampler.ErrOutsideDay) {
		e.logger.Debug("event dropped", "error", err)
	}
	e.fail(err)
	return err
}
