package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
	"github.com/ashureev/dayreview/internal/shared"
	_ "modernc.org/sqlite"
)

const cursorKey = "sampler_cursor"

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // single writer; readers use snapshot transactions
	retry   shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository. Writes that fail with a
// transient SQLite error are retried according to retry.
func NewSQLite(dbPath string, retry shared.RetryPolicy) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets readers run beside the writer; FULL sync makes every
	// committed append durable before the call returns.
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)" +
		"&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: retry}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS days (
		date TEXT PRIMARY KEY,
		sealed INTEGER NOT NULL DEFAULT 0,
		opened_at INTEGER NOT NULL,
		sealed_at INTEGER,
		input_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_days_open ON days(sealed) WHERE sealed = 0;

	CREATE TABLE IF NOT EXISTS app_usage (
		date TEXT NOT NULL,
		app_id TEXT NOT NULL,
		category TEXT NOT NULL,
		total_ms INTEGER NOT NULL DEFAULT 0,
		session_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, app_id)
	);

	CREATE TABLE IF NOT EXISTS activity_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		app_id TEXT NOT NULL,
		category TEXT NOT NULL,
		title_hash TEXT,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_samples_date ON activity_samples(date, start_ms);

	CREATE TABLE IF NOT EXISTS input_ticks (
		date TEXT NOT NULL,
		minute_ms INTEGER NOT NULL,
		kind TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (date, minute_ms, kind)
	);

	CREATE TABLE IF NOT EXISTS reports (
		date TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		mood_index REAL NOT NULL,
		stress_index REAL NOT NULL,
		caption TEXT NOT NULL,
		summary TEXT,
		source TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS engine_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quarantined_days (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		reason TEXT NOT NULL,
		payload TEXT NOT NULL,
		quarantined_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// write runs fn in a write transaction under the writer lock, retrying
// transient failures. Exhausted retries wrap domain.ErrTransientIO and
// domain.ErrFatal.
func (s *SQLiteStore) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := shared.Retry(ctx, s.retry, op, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", op, err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", op, err)
		}
		return nil
	})

	var exhausted *shared.ExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Errorf("%w: %w: %w", domain.ErrTransientIO, domain.ErrFatal, err)
	}
	return err
}

// read runs fn in a read-only transaction so it sees one snapshot.
func (s *SQLiteStore) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	return fn(tx)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// OpenDay creates the day row if needed and returns its handle.
func (s *SQLiteStore) OpenDay(ctx context.Context, date domain.Date, at time.Time) (domain.OpenDay, error) {
	if !date.Valid() {
		return domain.OpenDay{}, fmt.Errorf("open day: invalid date %q", date)
	}

	var open domain.OpenDay
	err := s.write(ctx, "open day", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO days (date, sealed, opened_at) VALUES (?, 0, ?) ON CONFLICT(date) DO NOTHING`,
			string(date), at.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert day: %w", err)
		}

		var sealed bool
		var openedAt int64
		if err := tx.QueryRowContext(ctx,
			`SELECT sealed, opened_at FROM days WHERE date = ?`, string(date),
		).Scan(&sealed, &openedAt); err != nil {
			return fmt.Errorf("read day: %w", err)
		}
		if sealed {
			return fmt.Errorf("open day %s: %w", date, domain.ErrDaySealed)
		}
		open = domain.OpenDay{Date: date, OpenedAt: time.UnixMilli(openedAt)}
		return nil
	})
	return open, err
}

// OpenDays lists every unsealed day, oldest first.
func (s *SQLiteStore) OpenDays(ctx context.Context) ([]domain.OpenDay, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, opened_at FROM days WHERE sealed = 0 ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("query open days: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close open days rows", "error", closeErr)
		}
	}()

	var days []domain.OpenDay
	for rows.Next() {
		var date string
		var openedAt int64
		if err := rows.Scan(&date, &openedAt); err != nil {
			return nil, fmt.Errorf("scan open day: %w", err)
		}
		days = append(days, domain.OpenDay{Date: domain.Date(date), OpenedAt: time.UnixMilli(openedAt)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open days: %w", err)
	}
	return days, nil
}

// GetOpenDay returns the single unsealed day.
func (s *SQLiteStore) GetOpenDay(ctx context.Context) (domain.OpenDay, error) {
	days, err := s.OpenDays(ctx)
	if err != nil {
		return domain.OpenDay{}, err
	}
	switch len(days) {
	case 0:
		return domain.OpenDay{}, domain.ErrNotFound
	case 1:
		return days[0], nil
	default:
		return domain.OpenDay{}, fmt.Errorf("%w: %d open days", domain.ErrCorruptState, len(days))
	}
}

// LatestDay returns the most recent day recorded.
func (s *SQLiteStore) LatestDay(ctx context.Context) (domain.Date, error) {
	var date string
	err := s.db.QueryRowContext(ctx, `SELECT date FROM days ORDER BY date DESC LIMIT 1`).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query latest day: %w", err)
	}
	return domain.Date(date), nil
}

// requireOpen fails unless date exists and is unsealed.
func requireOpen(ctx context.Context, tx *sql.Tx, date domain.Date) error {
	var sealed bool
	err := tx.QueryRowContext(ctx, `SELECT sealed FROM days WHERE date = ?`, string(date)).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("day %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read day: %w", err)
	}
	if sealed {
		return fmt.Errorf("append to %s: %w", date, domain.ErrDaySealed)
	}
	return nil
}

// AppendSample stores a closed sample and folds it into app usage.
func (s *SQLiteStore) AppendSample(ctx context.Context, sample domain.ActivitySample) error {
	if !sample.End.After(sample.Start) {
		return fmt.Errorf("append sample: end %s not after start %s", sample.End, sample.Start)
	}
	if sample.Category == "" {
		sample.Category = domain.CategoryOther
	}

	return s.write(ctx, "append sample", func(tx *sql.Tx) error {
		if err := requireOpen(ctx, tx, sample.Date); err != nil {
			return err
		}

		var titleHash any
		if sample.TitleHash != "" {
			titleHash = sample.TitleHash
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO activity_samples (date, app_id, category, title_hash, start_ms, end_ms)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(sample.Date), sample.AppID, string(sample.Category), titleHash,
			sample.Start.UnixMilli(), sample.End.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO app_usage (date, app_id, category, total_ms, session_count)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(date, app_id) DO UPDATE SET
				category = excluded.category,
				total_ms = app_usage.total_ms + excluded.total_ms,
				session_count = app_usage.session_count + 1`,
			string(sample.Date), sample.AppID, string(sample.Category),
			sample.End.UnixMilli()-sample.Start.UnixMilli(),
		); err != nil {
			return fmt.Errorf("fold app usage: %w", err)
		}
		return nil
	})
}

// AppendTick adds tick.Count to its minute counter.
func (s *SQLiteStore) AppendTick(ctx context.Context, tick domain.InputTick) error {
	if !tick.Kind.Valid() {
		return fmt.Errorf("append tick: unknown input kind %q", tick.Kind)
	}
	if tick.Count < 1 {
		return fmt.Errorf("append tick: count must be positive, got %d", tick.Count)
	}

	return s.write(ctx, "append tick", func(tx *sql.Tx) error {
		if err := requireOpen(ctx, tx, tick.Date); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO input_ticks (date, minute_ms, kind, count) VALUES (?, ?, ?, ?)
			ON CONFLICT(date, minute_ms, kind) DO UPDATE SET count = input_ticks.count + excluded.count`,
			string(tick.Date), tick.Minute.Truncate(time.Minute).UnixMilli(), string(tick.Kind), tick.Count,
		); err != nil {
			return fmt.Errorf("upsert tick: %w", err)
		}
		return nil
	})
}

// SealDay seals date. It is idempotent.
func (s *SQLiteStore) SealDay(ctx context.Context, date domain.Date, at time.Time) (domain.DaySummary, error) {
	var summary domain.DaySummary
	err := s.write(ctx, "seal day", func(tx *sql.Tx) error {
		var sealed bool
		err := tx.QueryRowContext(ctx, `SELECT sealed FROM days WHERE date = ?`, string(date)).Scan(&sealed)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("seal %s: %w", date, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read day: %w", err)
		}

		if !sealed {
			activity, err := tickActivity(ctx, tx, date)
			if err != nil {
				return err
			}
			snapshot, err := encodeActivity(activity)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE days SET sealed = 1, sealed_at = ?, input_json = ? WHERE date = ? AND sealed = 0`,
				at.UnixMilli(), snapshot, string(date),
			); err != nil {
				return fmt.Errorf("seal day: %w", err)
			}
		}

		summary, err = loadSummary(ctx, tx, date)
		return err
	})
	return summary, err
}

// GetDay returns the summary for date.
func (s *SQLiteStore) GetDay(ctx context.Context, date domain.Date) (domain.DaySummary, error) {
	var summary domain.DaySummary
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		summary, err = loadSummary(ctx, tx, date)
		return err
	})
	return summary, err
}

// ListDays returns up to limit summaries, newest first.
func (s *SQLiteStore) ListDays(ctx context.Context, limit int) ([]domain.DaySummary, error) {
	if limit <= 0 {
		limit = 30
	}

	var days []domain.DaySummary
	err := s.read(ctx, func(tx *sql.Tx) error {
		dates, err := listDates(ctx, tx, limit)
		if err != nil {
			return err
		}
		for _, date := range dates {
			summary, err := loadSummary(ctx, tx, date)
			if err != nil {
				return err
			}
			days = append(days, summary)
		}
		return nil
	})
	return days, err
}

func listDates(ctx context.Context, q queryer, limit int) ([]domain.Date, error) {
	rows, err := q.QueryContext(ctx, `SELECT date FROM days ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close days rows", "error", closeErr)
		}
	}()

	var dates []domain.Date
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		dates = append(dates, domain.Date(date))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate days: %w", err)
	}
	return dates, nil
}

// SaveReport inserts report if its date has none yet.
func (s *SQLiteStore) SaveReport(ctx context.Context, report domain.Report) (domain.Report, error) {
	var stored domain.Report
	err := s.write(ctx, "save report", func(tx *sql.Tx) error {
		if err := requireDay(ctx, tx, report.Date); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reports (date, id, mood_index, stress_index, caption, summary, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO NOTHING`,
			reportArgs(report)...,
		); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}

		var err error
		stored, err = loadReport(ctx, tx, report.Date)
		return err
	})
	return stored, err
}

// ReplaceReport overwrites the stored report for report.Date.
func (s *SQLiteStore) ReplaceReport(ctx context.Context, report domain.Report) error {
	return s.write(ctx, "replace report", func(tx *sql.Tx) error {
		if err := requireDay(ctx, tx, report.Date); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reports (date, id, mood_index, stress_index, caption, summary, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				id = excluded.id,
				mood_index = excluded.mood_index,
				stress_index = excluded.stress_index,
				caption = excluded.caption,
				summary = excluded.summary,
				source = excluded.source,
				created_at = excluded.created_at`,
			reportArgs(report)...,
		); err != nil {
			return fmt.Errorf("replace report: %w", err)
		}
		return nil
	})
}

// GetReport returns the report for date.
func (s *SQLiteStore) GetReport(ctx context.Context, date domain.Date) (domain.Report, error) {
	return loadReport(ctx, s.db, date)
}

func requireDay(ctx context.Context, tx *sql.Tx, date domain.Date) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM days WHERE date = ?`, string(date)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("day %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read day: %w", err)
	}
	return nil
}

func reportArgs(r domain.Report) []any {
	return []any{
		string(r.Date), r.ID, r.MoodIndex, r.StressIndex,
		r.Caption, r.Summary, string(r.Source), r.CreatedAt.UnixMilli(),
	}
}

// PruneDetailOlderThan removes detail rows of sealed days before cutoff.
func (s *SQLiteStore) PruneDetailOlderThan(ctx context.Context, cutoff domain.Date) (int64, error) {
	var removed int64
	err := s.write(ctx, "prune detail", func(tx *sql.Tx) error {
		removed = 0
		for _, query := range []string{
			`DELETE FROM activity_samples WHERE date < ? AND date IN (SELECT date FROM days WHERE sealed = 1)`,
			`DELETE FROM input_ticks WHERE date < ? AND date IN (SELECT date FROM days WHERE sealed = 1)`,
		} {
			result, err := tx.ExecContext(ctx, query, string(cutoff))
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("get rows affected: %w", err)
			}
			removed += n
		}
		return nil
	})
	return removed, err
}

// LoadCursor returns the persisted sampler cursor.
func (s *SQLiteStore) LoadCursor(ctx context.Context) (domain.Cursor, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM engine_state WHERE key = ?`, cursorKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cursor{}, nil
	}
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("read cursor: %w", err)
	}

	var cursor domain.Cursor
	if err := json.Unmarshal([]byte(value), &cursor); err != nil {
		return domain.Cursor{}, fmt.Errorf("%w: decode cursor: %v", domain.ErrCorruptState, err)
	}
	return cursor, nil
}

// SaveCursor persists the sampler cursor.
func (s *SQLiteStore) SaveCursor(ctx context.Context, cursor domain.Cursor) error {
	value, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	return s.write(ctx, "save cursor", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO engine_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			cursorKey, string(value), time.Now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
		return nil
	})
}

// ClearCursor removes the persisted cursor.
func (s *SQLiteStore) ClearCursor(ctx context.Context) error {
	return s.write(ctx, "clear cursor", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM engine_state WHERE key = ?`, cursorKey); err != nil {
			return fmt.Errorf("clear cursor: %w", err)
		}
		return nil
	})
}
