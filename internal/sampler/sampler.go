// Package sampler turns focus and input events into closed activity samples
// and per-minute input counts for the open day.
package sampler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
)

// ErrStaleEvent is returned for events timestamped before the last
// recorded boundary. Such events are dropped.
var ErrStaleEvent = errors.New("event precedes last recorded boundary")

// ErrOutsideDay is returned for events that belong to a date other than the
// bound open day.
var ErrOutsideDay = errors.New("event outside the open day")

// Store is the part of the repository the sampler writes to.
type Store interface {
	AppendSample(ctx context.Context, sample domain.ActivitySample) error
	AppendTick(ctx context.Context, tick domain.InputTick) error
	LoadCursor(ctx context.Context) (domain.Cursor, error)
	SaveCursor(ctx context.Context, cursor domain.Cursor) error
}

// Categorizer maps an app identifier to its category.
type Categorizer interface {
	Categorize(appID string) domain.Category
}

// Sampler is the aggregation state machine for one open day. It is not
// safe for concurrent use; the engine serializes calls.
type Sampler struct {
	store  Store
	cat    Categorizer
	loc    *time.Location
	logger *slog.Logger

	day      domain.OpenDay
	bound    bool
	boundary time.Time
	open     *domain.OpenSample

	paused bool
	// focus remembered while paused or across a day split
	heldApp, heldTitle string
}

// New creates a sampler. Call Restore before delivering events.
func New(store Store, cat Categorizer, loc *time.Location, logger *slog.Logger) *Sampler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{store: store, cat: cat, loc: loc, logger: logger}
}

// Restore binds the sampler to day after a restart. A sample left open by a
// previous run is discarded: it contributes no duration. Events before the
// later of the last persisted event and the start of day are dropped from
// now on.
func (s *Sampler) Restore(ctx context.Context, day domain.OpenDay, now time.Time) error {
	cursor, err := s.store.LoadCursor(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCorruptState) {
			return fmt.Errorf("load cursor: %w", err)
		}
		s.logger.Warn("ignoring unreadable sampler cursor", "error", err)
		cursor = domain.Cursor{}
	}

	if cursor.Open != nil {
		s.logger.Info("discarding sample left open by previous run",
			"date", cursor.Open.Date,
			"app_id", cursor.Open.AppID,
			"start", cursor.Open.Start,
		)
	}

	boundary := day.Date.Start(s.loc)
	if cursor.LastEventAt.After(boundary) {
		boundary = cursor.LastEventAt
	}
	if now.Before(boundary) {
		s.logger.Warn("wall clock is behind last recorded event, dropping events until it catches up",
			"error", domain.ErrClockAnomaly,
			"last_event_at", boundary,
			"now", now,
		)
	}

	s.day = day
	s.bound = true
	s.boundary = boundary
	s.open = nil
	s.paused = false
	s.heldApp, s.heldTitle = "", ""
	return s.saveCursor(ctx)
}

// Day returns the bound open day.
func (s *Sampler) Day() domain.OpenDay {
	return s.day
}

// Boundary returns the timestamp before which events are dropped.
func (s *Sampler) Boundary() time.Time {
	return s.boundary
}

// Paused reports whether monitoring is paused.
func (s *Sampler) Paused() bool {
	return s.paused
}

// Current returns a copy of the open sample, or nil.
func (s *Sampler) Current() *domain.OpenSample {
	if s.open == nil {
		return nil
	}
	cp := *s.open
	return &cp
}

// OnFocusChanged closes the open sample at `at` and opens one for appID.
// An empty appID means nothing is focused (idle or locked screen).
func (s *Sampler) OnFocusChanged(ctx context.Context, appID, title string, at time.Time) error {
	if err := s.admit(at); err != nil {
		return err
	}
	titleHash := HashTitle(title)

	if s.paused {
		s.heldApp, s.heldTitle = appID, titleHash
		s.boundary = at
		return nil
	}
	if s.open != nil && s.open.AppID == appID && s.open.TitleHash == titleHash {
		return nil
	}

	if err := s.closeOpen(ctx, at); err != nil {
		return err
	}
	s.boundary = at
	if appID != "" {
		s.open = &domain.OpenSample{Date: s.day.Date, AppID: appID, TitleHash: titleHash, Start: at}
	}
	return s.saveCursor(ctx)
}

// OnInputTick adds count input events of kind to the minute bucket of at.
// Ticks are dropped while paused.
func (s *Sampler) OnInputTick(ctx context.Context, kind domain.InputKind, at time.Time, count int64) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown input kind %q", kind)
	}
	if count < 1 {
		count = 1
	}
	if err := s.admit(at); err != nil {
		return err
	}
	if s.paused {
		return nil
	}

	if err := s.store.AppendTick(ctx, domain.InputTick{
		Date:   s.day.Date,
		Kind:   kind,
		Minute: at.Truncate(time.Minute),
		Count:  count,
	}); err != nil {
		return fmt.Errorf("append tick: %w", err)
	}
	s.boundary = at
	return nil
}

// Pause closes the open sample at `at` and stops accumulation. The focused
// app is remembered so Resume can reopen it.
func (s *Sampler) Pause(ctx context.Context, at time.Time) error {
	if s.paused {
		return nil
	}
	at = s.clamp(at)
	if s.open != nil {
		s.heldApp, s.heldTitle = s.open.AppID, s.open.TitleHash
	} else {
		s.heldApp, s.heldTitle = "", ""
	}
	if err := s.closeOpen(ctx, at); err != nil {
		return err
	}
	s.paused = true
	s.boundary = at
	return s.saveCursor(ctx)
}

// Resume restarts accumulation at `at`, reopening the last focused app.
func (s *Sampler) Resume(ctx context.Context, at time.Time) error {
	if !s.paused {
		return nil
	}
	at = s.clamp(at)
	s.paused = false
	s.boundary = at
	if s.heldApp != "" && domain.DateOf(at, s.loc) == s.day.Date {
		s.open = &domain.OpenSample{Date: s.day.Date, AppID: s.heldApp, TitleHash: s.heldTitle, Start: at}
	}
	s.heldApp, s.heldTitle = "", ""
	return s.saveCursor(ctx)
}

// CloseAt closes the open sample at boundary, the end of the open day. The
// focused app is held so Rebind continues it on the next day.
func (s *Sampler) CloseAt(ctx context.Context, boundary time.Time) error {
	if s.open != nil {
		s.heldApp, s.heldTitle = s.open.AppID, s.open.TitleHash
		if err := s.closeOpen(ctx, boundary); err != nil {
			return err
		}
	} else if !s.paused && boundary.After(s.boundary) {
		// Idle at the split. A repeated split at the same boundary keeps
		// the app held by the first one.
		s.heldApp, s.heldTitle = "", ""
	}
	if boundary.After(s.boundary) {
		s.boundary = boundary
	}
	return nil
}

// Rebind moves the sampler to the next open day starting at `at`. A held
// focus is reopened unless monitoring is paused.
func (s *Sampler) Rebind(ctx context.Context, day domain.OpenDay, at time.Time) error {
	s.day = day
	s.bound = true
	if at.After(s.boundary) {
		s.boundary = at
	}
	if !s.paused && s.heldApp != "" {
		s.open = &domain.OpenSample{Date: day.Date, AppID: s.heldApp, TitleHash: s.heldTitle, Start: s.boundary}
		s.heldApp, s.heldTitle = "", ""
	}
	return s.saveCursor(ctx)
}

// Flush closes the open sample at `at` without holding it, for shutdown.
// The persisted cursor keeps no open sample.
func (s *Sampler) Flush(ctx context.Context, at time.Time) error {
	if s.open == nil {
		return nil
	}
	at = s.clamp(at)
	if domain.DateOf(at, s.loc) != s.day.Date {
		at = s.day.Date.End(s.loc)
	}
	if err := s.closeOpen(ctx, at); err != nil {
		return err
	}
	if at.After(s.boundary) {
		s.boundary = at
	}
	return s.saveCursor(ctx)
}

// admit rejects events the sampler must not apply.
func (s *Sampler) admit(at time.Time) error {
	if !s.bound {
		return errors.New("sampler is not bound to an open day")
	}
	if at.Before(s.boundary) {
		return fmt.Errorf("%w: %s < %s", ErrStaleEvent, at.Format(time.RFC3339Nano), s.boundary.Format(time.RFC3339Nano))
	}
	if d := domain.DateOf(at, s.loc); d != s.day.Date {
		return fmt.Errorf("%w: event on %s, open day %s", ErrOutsideDay, d, s.day.Date)
	}
	return nil
}

func (s *Sampler) clamp(at time.Time) time.Time {
	if at.Before(s.boundary) {
		return s.boundary
	}
	return at
}

// closeOpen stores the open sample ending at end. Zero-length samples are
// dropped.
func (s *Sampler) closeOpen(ctx context.Context, end time.Time) error {
	open := s.open
	if open == nil {
		return nil
	}
	s.open = nil
	if !end.After(open.Start) {
		return nil
	}

	sample := domain.ActivitySample{
		Date:      open.Date,
		AppID:     open.AppID,
		Category:  s.cat.Categorize(open.AppID),
		TitleHash: open.TitleHash,
		Start:     open.Start,
		End:       end,
	}
	if err := s.store.AppendSample(ctx, sample); err != nil {
		s.open = open
		return fmt.Errorf("append sample: %w", err)
	}
	return nil
}

func (s *Sampler) saveCursor(ctx context.Context) error {
	if err := s.store.SaveCursor(ctx, domain.Cursor{LastEventAt: s.boundary, Open: s.Current()}); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// HashTitle returns a short SHA-256 digest of a window title so titles are
// never stored in clear. An empty title hashes to "".
func HashTitle(title string) string {
	if title == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(title))
	return hex.EncodeToString(sum[:8])
}
