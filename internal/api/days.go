package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/dayreview/internal/domain"
)

const (
	defaultHistoryLimit = 7
	maxHistoryLimit     = 366
	maxEventBody        = 64 << 10
)

// RegisterRoutes registers the query and event routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/today", h.GetToday)
		r.Get("/days", h.ListDays)
		r.Get("/days/{date}", h.GetDay)
		r.Post("/report", h.GenerateReport)
		r.Post("/pause", h.Pause)
		r.Post("/resume", h.Resume)
		r.Post("/events/focus", h.FocusEvent)
		r.Post("/events/input", h.InputEvent)
	})
}

// GetStatus returns whether monitoring is running or paused.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.engine.Status())
}

// GetToday returns the live statistics of the open day.
func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetTodayStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}

// GetDay returns the stored summary of one day.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_date")
		return
	}
	day, err := h.engine.GetDay(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, day)
}

// ListDays returns recent days, newest first.
func (h *Handler) ListDays(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	days, err := h.engine.History(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if days == nil {
		days = []domain.DaySummary{}
	}
	JSON(w, http.StatusOK, days)
}

// GenerateReport produces a preview report for today, or regenerates the
// stored report of a sealed day when ?date= is given.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var (
		report domain.Report
		err    error
	)
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, parseErr := domain.ParseDate(raw)
		if parseErr != nil {
			Error(w, http.StatusBadRequest, "invalid_date")
			return
		}
		report, err = h.engine.RegenerateReport(r.Context(), date)
	} else {
		report, err = h.engine.GenerateReportNow(r.Context())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, report)
}

// Pause stops accumulation.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.PauseMonitoring(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.engine.Status())
}

// Resume restarts accumulation.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResumeMonitoring(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.engine.Status())
}

type focusEvent struct {
	AppID string     `json:"app_id"`
	Title string     `json:"title,omitempty"`
	At    *time.Time `json:"at,omitempty"`
}

type inputEvent struct {
	Kind  domain.InputKind `json:"kind"`
	Count int64            `json:"count,omitempty"`
	At    *time.Time       `json:"at,omitempty"`
}

// FocusEvent accepts a focus change from an external hook. An empty app_id
// marks the user idle.
func (h *Handler) FocusEvent(w http.ResponseWriter, r *http.Request) {
	var ev focusEvent
	if err := decodeBody(w, r, &ev); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.OnFocusChanged(r.Context(), ev.AppID, ev.Title, h.eventTime(ev.At)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InputEvent accepts keyboard or mouse counts from an external hook.
func (h *Handler) InputEvent(w http.ResponseWriter, r *http.Request) {
	var ev inputEvent
	if err := decodeBody(w, r, &ev); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ev.Kind.Valid() {
		Error(w, http.StatusBadRequest, "invalid_kind")
		return
	}
	if ev.Count == 0 {
		ev.Count = 1
	}
	if ev.Count < 0 {
		Error(w, http.StatusBadRequest, "invalid_count")
		return
	}
	if err := h.engine.OnInputTick(r.Context(), ev.Kind, h.eventTime(ev.At), ev.Count); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) eventTime(at *time.Time) time.Time {
	if at == nil || at.IsZero() {
		return h.now()
	}
	return *at
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid_body: %w", err)
	}
	return nil
}
