// Package domain contains core domain types for the DayReview engine.
package domain

import (
	"sort"
	"time"
)

// Category labels an application for reporting purposes.
type Category string

const (
	CategoryWork          Category = "work"
	CategoryGame          Category = "game"
	CategoryEntertainment Category = "entertainment"
	CategorySocial        Category = "social"
	CategoryBrowse        Category = "browse"
	CategoryOther         Category = "other"
)

// Categories lists the known categories in matching priority order.
var Categories = []Category{
	CategoryGame,
	CategoryWork,
	CategoryEntertainment,
	CategorySocial,
	CategoryBrowse,
	CategoryOther,
}

// InputKind distinguishes keyboard from mouse activity. Only counts are
// ever recorded, never key content.
type InputKind string

const (
	InputKey   InputKind = "key"
	InputMouse InputKind = "mouse"
)

// Valid reports whether k is a known input kind.
func (k InputKind) Valid() bool {
	return k == InputKey || k == InputMouse
}

// ActivitySample is one closed interval of foreground focus on an app.
type ActivitySample struct {
	ID        int64     `json:"id,omitempty"`
	Date      Date      `json:"date"`
	AppID     string    `json:"app_id"`
	Category  Category  `json:"category"`
	TitleHash string    `json:"window_title_hash,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// Duration returns End - Start.
func (s ActivitySample) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// InputTick is a per-minute counter increment for one input kind.
type InputTick struct {
	Date   Date      `json:"date"`
	Kind   InputKind `json:"kind"`
	Minute time.Time `json:"minute_bucket"`
	Count  int64     `json:"count"`
}

// AppUsage is the folded per-day total for one application.
type AppUsage struct {
	AppID         string        `json:"app_id"`
	Category      Category      `json:"category"`
	TotalDuration time.Duration `json:"total_duration"`
	SessionCount  int           `json:"session_count"`
}

// MinuteActivity holds the input counts for one minute bucket.
type MinuteActivity struct {
	Minute time.Time `json:"minute"`
	Keys   int64     `json:"keys"`
	Mouse  int64     `json:"mouse"`
}

// OpenDay is the handle to the single unsealed day. The engine owns it and
// passes it to the sampler and the scheduler.
type OpenDay struct {
	Date     Date      `json:"date"`
	OpenedAt time.Time `json:"opened_at"`
}

// OpenSample is a sample that has started but not yet been closed.
type OpenSample struct {
	Date      Date      `json:"date"`
	AppID     string    `json:"app_id"`
	TitleHash string    `json:"window_title_hash,omitempty"`
	Start     time.Time `json:"start"`
}

// Cursor is the sampler state persisted between runs.
type Cursor struct {
	LastEventAt time.Time   `json:"last_event_at"`
	Open        *OpenSample `json:"open,omitempty"`
}

// DaySummary is everything known about one calendar day.
type DaySummary struct {
	Date          Date             `json:"date"`
	AppUsages     []AppUsage       `json:"app_usages"`
	InputActivity []MinuteActivity `json:"input_activity"`
	Sealed        bool             `json:"sealed"`
	OpenedAt      time.Time        `json:"opened_at"`
	SealedAt      *time.Time       `json:"sealed_at,omitempty"`
	Report        *Report          `json:"report,omitempty"`
}

// CategoryDurations sums app usage per category.
func (d DaySummary) CategoryDurations() map[Category]time.Duration {
	out := make(map[Category]time.Duration)
	for _, u := range d.AppUsages {
		out[u.Category] += u.TotalDuration
	}
	return out
}

// Tracked returns the total folded focus time of the day.
func (d DaySummary) Tracked() time.Duration {
	var total time.Duration
	for _, u := range d.AppUsages {
		total += u.TotalDuration
	}
	return total
}

// KeyTotal returns the day's keyboard count.
func (d DaySummary) KeyTotal() int64 {
	var n int64
	for _, m := range d.InputActivity {
		n += m.Keys
	}
	return n
}

// MouseTotal returns the day's mouse count.
func (d DaySummary) MouseTotal() int64 {
	var n int64
	for _, m := range d.InputActivity {
		n += m.Mouse
	}
	return n
}

// InputTotal returns keyboard plus mouse counts.
func (d DaySummary) InputTotal() int64 {
	return d.KeyTotal() + d.MouseTotal()
}

// TopApps returns up to n app usages ordered by duration, longest first.
func (d DaySummary) TopApps(n int) []AppUsage {
	apps := make([]AppUsage, len(d.AppUsages))
	copy(apps, d.AppUsages)
	sort.SliceStable(apps, func(i, j int) bool {
		if apps[i].TotalDuration == apps[j].TotalDuration {
			return apps[i].AppID < apps[j].AppID
		}
		return apps[i].TotalDuration > apps[j].TotalDuration
	})
	if n > 0 && len(apps) > n {
		apps = apps[:n]
	}
	return apps
}
