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

// minuteRow is the compact form of domain.MinuteActivity kept in the day
// row when a day is sealed.
type minuteRow struct {
	Minute int64 `json:"m"`
	Keys   int64 `json:"k,omitempty"`
	Mouse  int64 `json:"p,omitempty"`
}

func encodeActivity(activity []domain.MinuteActivity) (string, error) {
	rows := make([]minuteRow, 0, len(activity))
	for _, m := range activity {
		rows = append(rows, minuteRow{Minute: m.Minute.UnixMilli(), Keys: m.Keys, Mouse: m.Mouse})
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode input activity: %w", err)
	}
	return string(data), nil
}

func decodeActivity(data string) ([]domain.MinuteActivity, error) {
	var rows []minuteRow
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, fmt.Errorf("%w: decode input activity: %v", domain.ErrCorruptState, err)
	}
	activity := make([]domain.MinuteActivity, 0, len(rows))
	for _, r := range rows {
		activity = append(activity, domain.MinuteActivity{Minute: time.UnixMilli(r.Minute), Keys: r.Keys, Mouse: r.Mouse})
	}
	return activity, nil
}

// tickActivity folds a day's input ticks into ordered per-minute counts.
func tickActivity(ctx context.Context, q queryer, date domain.Date) ([]domain.MinuteActivity, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT minute_ms, kind, count FROM input_ticks WHERE date = ? ORDER BY minute_ms, kind`,
		string(date),
	)
	if err != nil {
		return nil, fmt.Errorf("query input ticks: %w", err)
	}
	defer rows.Close()

	var activity []domain.MinuteActivity
	for rows.Next() {
		var minute, count int64
		var kind string
		if err := rows.Scan(&minute, &kind, &count); err != nil {
			return nil, fmt.Errorf("scan input tick: %w", err)
		}
		if n := len(activity); n == 0 || activity[n-1].Minute.UnixMilli() != minute {
			activity = append(activity, domain.MinuteActivity{Minute: time.UnixMilli(minute)})
		}
		last := &activity[len(activity)-1]
		switch domain.InputKind(kind) {
		case domain.InputKey:
			last.Keys += count
		case domain.InputMouse:
			last.Mouse += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate input ticks: %w", err)
	}
	return activity, nil
}

func appUsages(ctx context.Context, q queryer, date domain.Date) ([]domain.AppUsage, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT app_id, category, total_ms, session_count
		FROM app_usage WHERE date = ?
		ORDER BY total_ms DESC, app_id`,
		string(date),
	)
	if err != nil {
		return nil, fmt.Errorf("query app usage: %w", err)
	}
	defer rows.Close()

	var usages []domain.AppUsage
	for rows.Next() {
		var u domain.AppUsage
		var category string
		var totalMs int64
		if err := rows.Scan(&u.AppID, &category, &totalMs, &u.SessionCount); err != nil {
			return nil, fmt.Errorf("scan app usage: %w", err)
		}
		u.Category = domain.Category(category)
		u.TotalDuration = time.Duration(totalMs) * time.Millisecond
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app usage: %w", err)
	}
	return usages, nil
}

// loadSummary assembles a DaySummary. Sealed days read input activity from
// their snapshot since their ticks may have been pruned.
func loadSummary(ctx context.Context, q queryer, date domain.Date) (domain.DaySummary, error) {
	var sealed bool
	var openedAt int64
	var sealedAt sql.NullInt64
	var inputJSON sql.NullString

	err := q.QueryRowContext(ctx,
		`SELECT sealed, opened_at, sealed_at, input_json FROM days WHERE date = ?`, string(date),
	).Scan(&sealed, &openedAt, &sealedAt, &inputJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DaySummary{}, fmt.Errorf("day %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return domain.DaySummary{}, fmt.Errorf("read day: %w", err)
	}

	summary := domain.DaySummary{
		Date:     date,
		Sealed:   sealed,
		OpenedAt: time.UnixMilli(openedAt),
	}
	if sealedAt.Valid {
		ts := time.UnixMilli(sealedAt.Int64)
		summary.SealedAt = &ts
	}

	if summary.AppUsages, err = appUsages(ctx, q, date); err != nil {
		return domain.DaySummary{}, err
	}

	if sealed && inputJSON.Valid {
		summary.InputActivity, err = decodeActivity(inputJSON.String)
	} else {
		summary.InputActivity, err = tickActivity(ctx, q, date)
	}
	if err != nil {
		return domain.DaySummary{}, err
	}

	report, err := loadReport(ctx, q, date)
	switch {
	case err == nil:
		summary.Report = &report
	case !errors.Is(err, domain.ErrNotFound):
		return domain.DaySummary{}, err
	}

	return summary, nil
}

func loadReport(ctx context.Context, q queryer, date domain.Date) (domain.Report, error) {
	var r domain.Report
	var summary sql.NullString
	var source string
	var createdAt int64

	err := q.QueryRowContext(ctx, `
		SELECT id, mood_index, stress_index, caption, summary, source, created_at
		FROM reports WHERE date = ?`, string(date),
	).Scan(&r.ID, &r.MoodIndex, &r.StressIndex, &r.Caption, &summary, &source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Report{}, fmt.Errorf("report %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Report{}, fmt.Errorf("read report: %w", err)
	}

	r.Date = date
	r.Summary = summary.String
	r.Source = domain.ReportSource(source)
	r.CreatedAt = time.UnixMilli(createdAt)
	return r, nil
}
