package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/dayreview/internal/api"
	"github.com/ashureev/dayreview/internal/domain"
	"github.com/ashureev/dayreview/internal/engine"
)

func init() {
	color.NoColor = true
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--addr", strings.TrimPrefix(srv.URL, "http://")))
	err := cmd.Execute()
	return out.String(), err
}

func sampleDay() domain.DaySummary {
	sealed := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return domain.DaySummary{
		Date: "2026-03-09",
		AppUsages: []domain.AppUsage{
			{AppID: "code.exe", Category: domain.CategoryWork, TotalDuration: 2*time.Hour + 15*time.Minute, SessionCount: 4},
			{AppID: "steam.exe", Category: domain.CategoryGame, TotalDuration: 45 * time.Minute, SessionCount: 1},
		},
		InputActivity: []domain.MinuteActivity{{Keys: 120, Mouse: 30}},
		Sealed:        true,
		SealedAt:      &sealed,
		Report: &domain.Report{
			Date: "2026-03-09", MoodIndex: 71.3, StressIndex: 38, Caption: "Shipped it", Source: domain.SourceFallback,
		},
	}
}

func TestShowCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/days/2026-03-09", r.URL.Path)
		api.JSON(w, http.StatusOK, sampleDay())
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "show", "2026-03-09")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-03-09 (sealed)")
	assert.Contains(t, out, "tracked 3h00m")
	assert.Contains(t, out, "code.exe")
	assert.Contains(t, out, "2h15m")
	assert.Contains(t, out, "Shipped it")
	assert.Less(t, strings.Index(out, "code.exe"), strings.Index(out, "steam.exe"))
}

func TestShowCmd_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		api.JSON(w, http.StatusOK, sampleDay())
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "show", "2026-03-09", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"date":"2026-03-09"`)
}

func TestShowCmd_RejectsBadDate(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := runCLI(t, srv, "show", "March 9")
	assert.Error(t, err)
}

func TestReportCmd_RegeneratesDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		if r.URL.Query().Get("date") == "2026-03-10" {
			api.Error(w, http.StatusConflict, "day_open")
			return
		}
		api.JSON(w, http.StatusOK, domain.Report{Date: "2026-03-09", MoodIndex: 50, StressIndex: 30, Caption: "Quiet", Source: domain.SourceAI})
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "report", "--date", "2026-03-09")
	require.NoError(t, err)
	assert.Contains(t, out, "Report 2026-03-09")
	assert.Contains(t, out, "Quiet")
	assert.Contains(t, out, "(ai)")

	_, err = runCLI(t, srv, "report", "-d", "2026-03-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "day_open")
}

func TestPauseCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pause", r.URL.Path)
		api.JSON(w, http.StatusOK, engine.Status{Running: true, Paused: true, OpenDay: domain.OpenDay{Date: "2026-03-10"}})
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "pause")
	require.NoError(t, err)
	assert.Equal(t, "Monitoring paused (day 2026-03-10)\n", out)
}

func TestStatsCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		day := sampleDay()
		day.Sealed, day.SealedAt, day.Report = false, nil, nil
		api.JSON(w, http.StatusOK, engine.Stats{
			DaySummary: day,
			Current:    &domain.OpenSample{AppID: "code.exe", Start: time.Date(2026, 3, 9, 14, 0, 0, 0, time.Local)},
		})
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "monitoring")
	assert.Contains(t, out, "keys 120")
	assert.Contains(t, out, "now: code.exe since 14:00")
}

func TestHistoryCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		open := domain.DaySummary{Date: "2026-03-10"}
		api.JSON(w, http.StatusOK, []domain.DaySummary{open, sampleDay()})
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "history", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-03-10")
	assert.Contains(t, out, "(open)")
	assert.Contains(t, out, "Shipped it")
}

func TestClient_DaemonDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := runCLI(t, srv, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not reachable")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m", formatDuration(0))
	assert.Equal(t, "45m", formatDuration(45*time.Minute))
	assert.Equal(t, "1h05m", formatDuration(65*time.Minute+10*time.Second))
}
