// Package rollover implements the OPEN -> SEALED day state machine.
package rollover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
)

// Store is the part of the repository the scheduler needs.
type Store interface {
	OpenDays(ctx context.Context) ([]domain.OpenDay, error)
	LatestDay(ctx context.Context) (domain.Date, error)
	OpenDay(ctx context.Context, date domain.Date, at time.Time) (domain.OpenDay, error)
	SealDay(ctx context.Context, date domain.Date, at time.Time) (domain.DaySummary, error)
	ValidateDay(ctx context.Context, date domain.Date) error
	QuarantineDay(ctx context.Context, date domain.Date, reason string) error
}

// Splitter closes the open sample at a day boundary and continues it on
// the next day.
type Splitter interface {
	CloseAt(ctx context.Context, boundary time.Time) error
	Rebind(ctx context.Context, day domain.OpenDay, at time.Time) error
}

// Scheduler seals finished days.
type Scheduler struct {
	store    Store
	splitter Splitter
	loc      *time.Location
	logger   *slog.Logger
}

// New creates a Scheduler.
func New(store Store, splitter Splitter, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: store, splitter: splitter, loc: loc, logger: logger}
}

// Recover returns the open day to resume with at startup.
//
// A single valid open day is returned as is. An open day that fails
// validation, or more than one open day, is quarantined and a fresh day for
// date(now) is opened. With no open day at all (a crash between sealing and
// opening) the day after the latest recorded one is opened, or today's on an
// empty store.
func (s *Scheduler) Recover(ctx context.Context, now time.Time) (domain.OpenDay, error) {
	today := domain.DateOf(now, s.loc)

	days, err := s.store.OpenDays(ctx)
	if err != nil {
		return domain.OpenDay{}, fmt.Errorf("list open days: %w", err)
	}

	switch len(days) {
	case 0:
		latest, err := s.store.LatestDay(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			return s.openFresh(ctx, today, now)
		}
		if err != nil {
			return domain.OpenDay{}, fmt.Errorf("latest day: %w", err)
		}
		next := latest.AddDays(1)
		s.logger.Info("no open day found, opening day after latest", "latest", latest, "date", next)
		return s.store.OpenDay(ctx, next, next.Start(s.loc))

	case 1:
		open := days[0]
		err := s.store.ValidateDay(ctx, open.Date)
		if err == nil {
			if today.Before(open.Date) {
				s.logger.Warn("open day is ahead of the wall clock",
					"error", domain.ErrClockAnomaly,
					"date", open.Date,
					"now", now,
				)
			}
			return open, nil
		}
		if !errors.Is(err, domain.ErrCorruptState) {
			return domain.OpenDay{}, fmt.Errorf("validate open day: %w", err)
		}
		if err := s.quarantine(ctx, open.Date, err.Error()); err != nil {
			return domain.OpenDay{}, err
		}
		return s.openFresh(ctx, today, now)

	default:
		reason := fmt.Sprintf("%v: %d open days", domain.ErrCorruptState, len(days))
		for _, d := range days {
			if err := s.quarantine(ctx, d.Date, reason); err != nil {
				return domain.OpenDay{}, err
			}
		}
		return s.openFresh(ctx, today, now)
	}
}

func (s *Scheduler) quarantine(ctx context.Context, date domain.Date, reason string) error {
	s.logger.Error("quarantining corrupt day", "date", date, "reason", reason)
	if err := s.store.QuarantineDay(ctx, date, reason); err != nil {
		return fmt.Errorf("quarantine %s: %w", date, err)
	}
	return nil
}

// openFresh opens today. If today is already sealed, which only happens
// when the clock went backwards, the day after the latest one is opened.
func (s *Scheduler) openFresh(ctx context.Context, today domain.Date, now time.Time) (domain.OpenDay, error) {
	open, err := s.store.OpenDay(ctx, today, now)
	if !errors.Is(err, domain.ErrDaySealed) {
		return open, err
	}
	latest, err := s.store.LatestDay(ctx)
	if err != nil {
		return domain.OpenDay{}, fmt.Errorf("latest day: %w", err)
	}
	next := latest.AddDays(1)
	s.logger.Warn("today is already sealed, opening next day",
		"error", domain.ErrClockAnomaly,
		"date", next,
	)
	return s.store.OpenDay(ctx, next, next.Start(s.loc))
}

// Advance seals every open day strictly earlier than date(now) and returns
// the new open day with the summaries sealed on the way. Days without data
// are sealed too. If now is earlier than the open day nothing happens.
func (s *Scheduler) Advance(ctx context.Context, open domain.OpenDay, now time.Time) (domain.OpenDay, []domain.DaySummary, error) {
	target := domain.DateOf(now, s.loc)
	if target.Before(open.Date) {
		s.logger.Warn("wall clock moved before open day, not sealing",
			"error", domain.ErrClockAnomaly,
			"date", open.Date,
			"now", now,
		)
		return open, nil, nil
	}

	var sealed []domain.DaySummary
	for open.Date.Before(target) {
		boundary := open.Date.End(s.loc)

		if err := s.splitter.CloseAt(ctx, boundary); err != nil {
			return open, sealed, fmt.Errorf("close sample at %s: %w", boundary, err)
		}
		summary, err := s.store.SealDay(ctx, open.Date, now)
		if err != nil {
			return open, sealed, fmt.Errorf("seal %s: %w", open.Date, err)
		}
		sealed = append(sealed, summary)
		s.logger.Info("day sealed",
			"date", summary.Date,
			"tracked", summary.Tracked().String(),
			"apps", len(summary.AppUsages),
		)

		next, err := s.store.OpenDay(ctx, open.Date.AddDays(1), boundary)
		if err != nil {
			return open, sealed, fmt.Errorf("open %s: %w", open.Date.AddDays(1), err)
		}
		if err := s.splitter.Rebind(ctx, next, boundary); err != nil {
			return next, sealed, fmt.Errorf("rebind sampler: %w", err)
		}
		open = next
	}
	return open, sealed, nil
}
