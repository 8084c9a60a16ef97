// Package focus polls the operating system for the foreground application
// and input activity and turns what it sees into engine events.
package focus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
)

// ErrUnsupported is returned by NewSystemSource on platforms without a
// foreground window API.
var ErrUnsupported = errors.New("foreground window polling is not supported on this platform")

// Snapshot is one observation of the desktop.
type Snapshot struct {
	AppID string
	Title string
	// IdleFor is the time since the last keyboard or mouse input.
	IdleFor time.Duration
	// InputSeq changes whenever any input arrives.
	InputSeq uint32
	CursorX  int32
	CursorY  int32
}

// Source observes the desktop.
type Source interface {
	Sample() (Snapshot, error)
}

// Sink receives the derived events. *engine.Engine satisfies it.
type Sink interface {
	OnFocusChanged(ctx context.Context, appID, title string, at time.Time) error
	OnInputTick(ctx context.Context, kind domain.InputKind, at time.Time, count int64) error
}

// Options tunes a Poller. Zero values pick defaults.
type Options struct {
	Interval  time.Duration
	IdleAfter time.Duration
	Now       func() time.Time
}

// Poller samples a Source on an interval.
type Poller struct {
	src       Source
	sink      Sink
	logger    *slog.Logger
	interval  time.Duration
	idleAfter time.Duration
	now       func() time.Time

	primed  bool
	last    Snapshot
	idle    bool
	focused string
	title   string
}

// NewPoller creates a Poller.
func NewPoller(src Source, sink Sink, opts Options, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.IdleAfter <= 0 {
		opts.IdleAfter = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		src:       src,
		sink:      sink,
		logger:    logger,
		interval:  opts.Interval,
		idleAfter: opts.IdleAfter,
		now:       opts.Now,
	}
}

// Run polls until ctx is done. It returns early only when the sink reports
// a fatal error.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("focus poller started", "interval", p.interval, "idle_after", p.idleAfter)

	for {
		select {
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				if errors.Is(err, domain.ErrFatal) {
					return err
				}
				p.logger.Debug("focus poll failed", "error", err)
			}
		case <-ctx.Done():
			p.logger.Info("focus poller shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// Poll takes one sample and forwards whatever changed since the last one.
func (p *Poller) Poll(ctx context.Context) error {
	snap, err := p.src.Sample()
	if err != nil {
		return err
	}
	at := p.now()

	var errs []error
	if p.primed {
		errs = append(errs, p.forwardInput(ctx, snap, at))
	}

	appID, title := snap.AppID, snap.Title
	idle := snap.IdleFor >= p.idleAfter
	if idle {
		appID, title = "", ""
	}
	if !p.primed || idle != p.idle || appID != p.focused || title != p.title {
		if err := p.sink.OnFocusChanged(ctx, appID, title, at); err != nil {
			errs = append(errs, err)
		} else {
			p.focused, p.title, p.idle = appID, title, idle
		}
	}

	p.last = snap
	p.primed = true
	return errors.Join(errs...)
}

// forwardInput reports one mouse tick when the cursor moved and one key
// tick when input arrived without cursor movement.
func (p *Poller) forwardInput(ctx context.Context, snap Snapshot, at time.Time) error {
	if snap.InputSeq == p.last.InputSeq {
		return nil
	}
	kind := domain.InputKey
	if snap.CursorX != p.last.CursorX || snap.CursorY != p.last.CursorY {
		kind = domain.InputMouse
	}
	return p.sink.OnInputTick(ctx, kind, at, 1)
}
