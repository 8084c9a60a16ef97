package rollover

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/dayreview/internal/categorize"
	"github.com/ashureev/dayreview/internal/domain"
	"github.com/ashureev/dayreview/internal/sampler"
	"github.com/ashureev/dayreview/internal/shared"
	"github.com/ashureev/dayreview/internal/store"
)

const dayD = domain.Date("2026-03-10")

func on(date domain.Date, hour, minute int) time.Time {
	return date.Start(time.UTC).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	policy := shared.DefaultRetryPolicy()
	policy.BaseDelay = time.Millisecond
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"), policy)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func start(t *testing.T, st *store.SQLiteStore, now time.Time) (*sampler.Sampler, *Scheduler, domain.OpenDay) {
	t.Helper()
	smp := sampler.New(st, categorize.New(map[string][]string{"work": {"A"}}), time.UTC, nil)
	sched := New(st, smp, time.UTC, nil)
	open, err := sched.Recover(context.Background(), now)
	require.NoError(t, err)
	require.NoError(t, smp.Restore(context.Background(), open, now))
	return smp, sched, open
}

func TestCatchUpAfterDowntime(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	// First run on day D: some work, then the process dies at 18:00 with A open.
	smp, _, open := start(t, st, on(dayD, 9, 0))
	require.Equal(t, dayD, open.Date)
	require.NoError(t, smp.OnFocusChanged(ctx, "A", "", on(dayD, 9, 0)))
	require.NoError(t, smp.OnFocusChanged(ctx, "B", "", on(dayD, 10, 0)))
	require.NoError(t, smp.OnFocusChanged(ctx, "A", "", on(dayD, 17, 0)))

	// Restart at D+2 08:00.
	now := on(dayD.AddDays(2), 8, 0)
	smp, sched, open := start(t, st, now)
	require.Equal(t, dayD, open.Date)

	open, sealed, err := sched.Advance(ctx, open, now)
	require.NoError(t, err)
	require.Len(t, sealed, 2)

	assert.Equal(t, dayD, sealed[0].Date)
	assert.True(t, sealed[0].Sealed)
	assert.Equal(t, 8*time.Hour, sealed[0].Tracked(), "partial data up to the last closed sample")

	assert.Equal(t, dayD.AddDays(1), sealed[1].Date)
	assert.True(t, sealed[1].Sealed)
	assert.Empty(t, sealed[1].AppUsages)

	assert.Equal(t, dayD.AddDays(2), open.Date)
	assert.Nil(t, smp.Current())
	today, err := st.GetDay(ctx, open.Date)
	require.NoError(t, err)
	assert.False(t, today.Sealed)
	assert.Empty(t, today.AppUsages)

	// Advancing again is a no-op.
	again, more, err := sched.Advance(ctx, open, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, more)
	assert.Equal(t, open, again)
}

func TestAdvanceSplitsOpenSampleAtMidnight(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	smp, sched, open := start(t, st, on(dayD, 23, 0))

	require.NoError(t, smp.OnFocusChanged(ctx, "A", "", on(dayD, 23, 0)))

	open, sealed, err := sched.Advance(ctx, open, on(dayD.AddDays(1), 0, 1))
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	assert.Equal(t, time.Hour, sealed[0].Tracked())

	cur := smp.Current()
	require.NotNil(t, cur)
	assert.Equal(t, open.Date, cur.Date)
	assert.True(t, cur.Start.Equal(dayD.End(time.UTC)))
}

func TestAdvanceIgnoresBackwardClock(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	_, sched, open := start(t, st, on(dayD, 12, 0))

	got, sealed, err := sched.Advance(ctx, open, on(dayD.AddDays(-1), 23, 0))
	require.NoError(t, err)
	assert.Empty(t, sealed)
	assert.Equal(t, open, got)

	day, err := st.GetDay(ctx, dayD)
	require.NoError(t, err)
	assert.False(t, day.Sealed)
}

func TestRecoverOpensDayAfterLatestSealed(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	_, err := st.OpenDay(ctx, dayD, on(dayD, 0, 0))
	require.NoError(t, err)
	_, err = st.SealDay(ctx, dayD, on(dayD.AddDays(1), 0, 0))
	require.NoError(t, err)

	// Crash happened between sealing D and opening D+1.
	_, sched, open := start(t, st, on(dayD.AddDays(3), 9, 0))
	assert.Equal(t, dayD.AddDays(1), open.Date)

	open, sealed, err := sched.Advance(ctx, open, on(dayD.AddDays(3), 9, 0))
	require.NoError(t, err)
	assert.Len(t, sealed, 2)
	assert.Equal(t, dayD.AddDays(3), open.Date)
}

func TestRecoverEmptyStoreOpensToday(t *testing.T) {
	st := newStore(t)
	_, _, open := start(t, st, on(dayD, 14, 30))
	assert.Equal(t, dayD, open.Date)
	assert.True(t, open.OpenedAt.Equal(on(dayD, 14, 30)))
}

func TestRecoverQuarantinesCorruptOpenDay(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	_, err := st.OpenDay(ctx, dayD.AddDays(-1), on(dayD.AddDays(-1), 0, 0))
	require.NoError(t, err)
	_, err = st.OpenDay(ctx, dayD, on(dayD, 0, 0))
	require.NoError(t, err)

	_, _, open := start(t, st, on(dayD, 10, 0))
	assert.Equal(t, dayD, open.Date)

	for _, d := range []domain.Date{dayD.AddDays(-1), dayD} {
		n, err := st.QuarantineCount(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "date %s", d)
	}
	_, err = st.GetDay(ctx, dayD.AddDays(-1))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	days, err := st.OpenDays(ctx)
	require.NoError(t, err)
	assert.Len(t, days, 1)
}

// sealOnceFailingStore fails the first SealDay the way a cancelled
// transaction does.
type sealOnceFailingStore struct {
	*store.SQLiteStore
	failed bool
}

func (s *sealOnceFailingStore) SealDay(ctx context.Context, date domain.Date, at time.Time) (domain.DaySummary, error) {
	if !s.failed {
		s.failed = true
		return domain.DaySummary{}, context.Canceled
	}
	return s.SQLiteStore.SealDay(ctx, date, at)
}

func TestAdvanceRetryAfterFailedSealKeepsFocus(t *testing.T) {
	ctx := context.Background()
	st := &sealOnceFailingStore{SQLiteStore: newStore(t)}

	smp := sampler.New(st, categorize.New(map[string][]string{"work": {"A"}}), time.UTC, nil)
	sched := New(st, smp, time.UTC, nil)
	open, err := sched.Recover(ctx, on(dayD, 23, 0))
	require.NoError(t, err)
	require.NoError(t, smp.Restore(ctx, open, on(dayD, 23, 0)))
	require.NoError(t, smp.OnFocusChanged(ctx, "A", "", on(dayD, 23, 0)))

	now := on(dayD.AddDays(1), 0, 1)
	open, sealed, err := sched.Advance(ctx, open, now)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sealed)
	assert.Equal(t, dayD, open.Date)

	open, sealed, err = sched.Advance(ctx, open, now)
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	assert.Equal(t, time.Hour, sealed[0].Tracked())
	assert.Equal(t, dayD.AddDays(1), open.Date)

	current := smp.Current()
	require.NotNil(t, current, "A is still focused on the new day")
	assert.Equal(t, "A", current.AppID)
	assert.Equal(t, dayD.AddDays(1).Start(time.UTC), current.Start)

	require.NoError(t, smp.OnFocusChanged(ctx, "", "", on(dayD.AddDays(1), 0, 30)))
	next, err := st.GetDay(ctx, open.Date)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, next.Tracked())
}
