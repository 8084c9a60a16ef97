package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
)

// ValidateDay checks the invariants of date. App usage totals must be
// non-negative and, while the day is open, equal the sum of its samples.
// Sealed days may have had their samples pruned, so only the non-negative
// check applies to them.
func (s *SQLiteStore) ValidateDay(ctx context.Context, date domain.Date) error {
	if !date.Valid() {
		return fmt.Errorf("%w: unparseable date %q", domain.ErrCorruptState, date)
	}

	return s.read(ctx, func(tx *sql.Tx) error {
		summary, err := loadSummary(ctx, tx, date)
		if err != nil {
			return err
		}
		for _, u := range summary.AppUsages {
			if u.TotalDuration < 0 || u.SessionCount < 0 {
				return fmt.Errorf("%w: %s has negative usage for %s", domain.ErrCorruptState, date, u.AppID)
			}
		}
		if summary.Sealed {
			return nil
		}

		var badSamples int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM activity_samples WHERE date = ? AND end_ms <= start_ms`, string(date),
		).Scan(&badSamples); err != nil {
			return fmt.Errorf("count samples: %w", err)
		}
		if badSamples > 0 {
			return fmt.Errorf("%w: %s has %d samples with non-positive duration", domain.ErrCorruptState, date, badSamples)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT u.app_id, u.total_ms, u.session_count,
			       COALESCE(SUM(s.end_ms - s.start_ms), 0), COUNT(s.id)
			FROM app_usage u
			LEFT JOIN activity_samples s ON s.date = u.date AND s.app_id = u.app_id
			WHERE u.date = ?
			GROUP BY u.app_id, u.total_ms, u.session_count`,
			string(date),
		)
		if err != nil {
			return fmt.Errorf("query usage totals: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var appID string
			var totalMs, sampleMs int64
			var sessions, sampleCount int
			if err := rows.Scan(&appID, &totalMs, &sessions, &sampleMs, &sampleCount); err != nil {
				return fmt.Errorf("scan usage totals: %w", err)
			}
			if totalMs != sampleMs || sessions != sampleCount {
				return fmt.Errorf("%w: %s usage for %s is %dms/%d sessions but samples sum to %dms/%d",
					domain.ErrCorruptState, date, appID, totalMs, sessions, sampleMs, sampleCount)
			}
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate usage totals: %w", err)
		}

		var orphans int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM activity_samples s
			WHERE s.date = ? AND NOT EXISTS (
				SELECT 1 FROM app_usage u WHERE u.date = s.date AND u.app_id = s.app_id
			)`, string(date),
		).Scan(&orphans); err != nil {
			return fmt.Errorf("count orphan samples: %w", err)
		}
		if orphans > 0 {
			return fmt.Errorf("%w: %s has %d samples without app usage", domain.ErrCorruptState, date, orphans)
		}
		return nil
	})
}

type quarantinePayload struct {
	Day struct {
		Sealed    bool   `json:"sealed"`
		OpenedAt  int64  `json:"opened_at"`
		SealedAt  *int64 `json:"sealed_at,omitempty"`
		InputJSON string `json:"input_json,omitempty"`
	} `json:"day"`
	AppUsage []map[string]any `json:"app_usage"`
	Samples  []map[string]any `json:"samples"`
	Ticks    []map[string]any `json:"input_ticks"`
	Report   map[string]any   `json:"report,omitempty"`
}

// QuarantineDay copies every row for date into quarantined_days and removes
// them from the live tables. Nothing is repaired.
func (s *SQLiteStore) QuarantineDay(ctx context.Context, date domain.Date, reason string) error {
	return s.write(ctx, "quarantine day", func(tx *sql.Tx) error {
		var payload quarantinePayload

		var sealedAt sql.NullInt64
		var inputJSON sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT sealed, opened_at, sealed_at, input_json FROM days WHERE date = ?`, string(date),
		).Scan(&payload.Day.Sealed, &payload.Day.OpenedAt, &sealedAt, &inputJSON)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read day: %w", err)
		}
		if sealedAt.Valid {
			payload.Day.SealedAt = &sealedAt.Int64
		}
		payload.Day.InputJSON = inputJSON.String

		if payload.AppUsage, err = dumpRows(ctx, tx,
			`SELECT app_id, category, total_ms, session_count FROM app_usage WHERE date = ?`, date); err != nil {
			return err
		}
		if payload.Samples, err = dumpRows(ctx, tx,
			`SELECT app_id, category, title_hash, start_ms, end_ms FROM activity_samples WHERE date = ? ORDER BY start_ms`, date); err != nil {
			return err
		}
		if payload.Ticks, err = dumpRows(ctx, tx,
			`SELECT minute_ms, kind, count FROM input_ticks WHERE date = ? ORDER BY minute_ms`, date); err != nil {
			return err
		}
		reports, err := dumpRows(ctx, tx,
			`SELECT id, mood_index, stress_index, caption, summary, source, created_at FROM reports WHERE date = ?`, date)
		if err != nil {
			return err
		}
		if len(reports) > 0 {
			payload.Report = reports[0]
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode quarantine payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quarantined_days (date, reason, payload, quarantined_at) VALUES (?, ?, ?, ?)`,
			string(date), reason, string(data), time.Now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert quarantine: %w", err)
		}

		for _, table := range []string{"activity_samples", "input_ticks", "app_usage", "reports", "days"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE date = ?`, string(date)); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		return nil
	})
}

// QuarantineCount returns how many quarantine records exist for date.
func (s *SQLiteStore) QuarantineCount(ctx context.Context, date domain.Date) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quarantined_days WHERE date = ?`, string(date),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quarantine: %w", err)
	}
	return n, nil
}

func dumpRows(ctx context.Context, tx *sql.Tx, query string, date domain.Date) ([]map[string]any, error) {
	rows, err := tx.QueryContext(ctx, query, string(date))
	if err != nil {
		return nil, fmt.Errorf("dump rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dump columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dump scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
