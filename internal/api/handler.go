// Package api provides the loopback HTTP API of the DayReview daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
	"github.com/ashureev/dayreview/internal/engine"
	"github.com/ashureev/dayreview/internal/sampler"
)

// Engine is the part of the engine the API drives.
type Engine interface {
	Status() engine.Status
	GetTodayStats(ctx context.Context) (engine.Stats, error)
	GetDay(ctx context.Context, date domain.Date) (domain.DaySummary, error)
	History(ctx context.Context, limit int) ([]domain.DaySummary, error)
	GenerateReportNow(ctx context.Context) (domain.Report, error)
	RegenerateReport(ctx context.Context, date domain.Date) (domain.Report, error)
	PauseMonitoring(ctx context.Context) error
	ResumeMonitoring(ctx context.Context) error
	OnFocusChanged(ctx context.Context, appID, title string, at time.Time) error
	OnInputTick(ctx context.Context, kind domain.InputKind, at time.Time, count int64) error
}

// Handler provides common handler utilities.
type Handler struct {
	engine Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(e Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: e, logger: logger, now: time.Now}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// fail maps an engine error to a status code and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
	}
	Error(w, status, code)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrDayOpen):
		return http.StatusConflict, "day_open"
	case errors.Is(err, domain.ErrDaySealed):
		return http.StatusConflict, "day_sealed"
	case errors.Is(err, sampler.ErrStaleEvent):
		return http.StatusConflict, "stale_event"
	case errors.Is(err, sampler.ErrOutsideDay):
		return http.StatusConflict, "outside_day"
	case errors.Is(err, engine.ErrNotRunning):
		return http.StatusServiceUnavailable, "not_running"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
