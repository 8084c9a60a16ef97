// Package store provides durable persistence for days, reports and sampler
// state.
package store

import (
	"context"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
)

// Repository defines the interface for persisting activity data.
type Repository interface {
	// OpenDay creates the day row for date if it does not exist and returns
	// its handle. Opening a sealed day fails with domain.ErrDaySealed.
	OpenDay(ctx context.Context, date domain.Date, at time.Time) (domain.OpenDay, error)

	// GetOpenDay returns the single unsealed day. It returns
	// domain.ErrNotFound when no day is open and domain.ErrCorruptState
	// when more than one is.
	GetOpenDay(ctx context.Context) (domain.OpenDay, error)

	// OpenDays lists every unsealed day, oldest first.
	OpenDays(ctx context.Context) ([]domain.OpenDay, error)

	// LatestDay returns the most recent day recorded, open or sealed.
	LatestDay(ctx context.Context) (domain.Date, error)

	// AppendSample stores a closed sample and folds it into the day's
	// app usage in the same transaction.
	AppendSample(ctx context.Context, sample domain.ActivitySample) error

	// AppendTick adds tick.Count to the (date, minute, kind) counter.
	AppendTick(ctx context.Context, tick domain.InputTick) error

	// SealDay marks date sealed and snapshots its input activity. Sealing
	// a sealed day returns the stored summary unchanged.
	SealDay(ctx context.Context, date domain.Date, at time.Time) (domain.DaySummary, error)

	// GetDay returns the summary for date, including its report if any.
	GetDay(ctx context.Context, date domain.Date) (domain.DaySummary, error)

	// ListDays returns up to limit summaries, newest first.
	ListDays(ctx context.Context, limit int) ([]domain.DaySummary, error)

	// SaveReport inserts report unless one already exists for its date and
	// returns the stored report either way.
	SaveReport(ctx context.Context, report domain.Report) (domain.Report, error)

	// ReplaceReport overwrites the report for its date as a whole.
	ReplaceReport(ctx context.Context, report domain.Report) error

	// GetReport returns the report for date or domain.ErrNotFound.
	GetReport(ctx context.Context, date domain.Date) (domain.Report, error)

	// PruneDetailOlderThan deletes samples and input ticks of sealed days
	// before cutoff. Day rows, app usage and reports are kept.
	PruneDetailOlderThan(ctx context.Context, cutoff domain.Date) (int64, error)

	// LoadCursor returns the persisted sampler cursor, or a zero cursor.
	LoadCursor(ctx context.Context) (domain.Cursor, error)

	// SaveCursor persists the sampler cursor.
	SaveCursor(ctx context.Context, cursor domain.Cursor) error

	// ClearCursor removes the persisted cursor.
	ClearCursor(ctx context.Context) error

	// ValidateDay checks the stored invariants of date and returns an
	// error wrapping domain.ErrCorruptState when they do not hold.
	ValidateDay(ctx context.Context, date domain.Date) error

	// QuarantineDay moves every row of date into the quarantine table.
	QuarantineDay(ctx context.Context, date domain.Date, reason string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
