package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/dayreview/internal/domain"
)

func TestValidateDayDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.OpenDay(ctx, day1, at(0, 0))
	require.NoError(t, err)
	require.NoError(t, s.AppendSample(ctx, sample("A", domain.CategoryWork, at(9, 0), at(9, 30))))

	_, err = s.db.ExecContext(ctx, `UPDATE app_usage SET total_ms = total_ms + 1000 WHERE app_id = 'A'`)
	require.NoError(t, err)

	err = s.ValidateDay(ctx, day1)
	assert.ErrorIs(t, err, domain.ErrCorruptState)

	assert.ErrorIs(t, s.ValidateDay(ctx, "03/10/2026"), domain.ErrCorruptState)
	assert.ErrorIs(t, s.ValidateDay(ctx, "2026-01-01"), domain.ErrNotFound)
}

func TestValidateDayDetectsNegativeTotals(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.OpenDay(ctx, day1, at(0, 0))
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO app_usage (date, app_id, category, total_ms, session_count) VALUES (?, 'X', 'work', -5, 1)`, string(day1))
	require.NoError(t, err)

	assert.ErrorIs(t, s.ValidateDay(ctx, day1), domain.ErrCorruptState)
}

func TestQuarantineDayMovesRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.OpenDay(ctx, day1, at(0, 0))
	require.NoError(t, err)
	require.NoError(t, s.AppendSample(ctx, sample("A", domain.CategoryWork, at(9, 0), at(9, 30))))
	require.NoError(t, s.AppendTick(ctx, domain.InputTick{Date: day1, Kind: domain.InputKey, Minute: at(9, 0), Count: 3}))

	require.NoError(t, s.QuarantineDay(ctx, day1, "usage mismatch"))

	_, err = s.GetDay(ctx, day1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetOpenDay(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := s.QuarantineCount(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var payload string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT payload FROM quarantined_days WHERE date = ?`, string(day1)).Scan(&payload))
	assert.Contains(t, payload, `"app_id":"A"`)

	// The date can be reopened fresh.
	open, err := s.OpenDay(ctx, day1, at(12, 0))
	require.NoError(t, err)
	assert.True(t, open.OpenedAt.Equal(at(12, 0)))
	day, err := s.GetDay(ctx, day1)
	require.NoError(t, err)
	assert.Empty(t, day.AppUsages)
	assert.Equal(t, time.Duration(0), day.Tracked())
}
