package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/ashureev/dayreview/internal/analysis"
	"github.com/ashureev/dayreview/internal/api"
	"github.com/ashureev/dayreview/internal/categorize"
	"github.com/ashureev/dayreview/internal/config"
	"github.com/ashureev/dayreview/internal/engine"
	"github.com/ashureev/dayreview/internal/focus"
	"github.com/ashureev/dayreview/internal/lockfile"
	"github.com/ashureev/dayreview/internal/middleware"
	"github.com/ashureev/dayreview/internal/notify"
	"github.com/ashureev/dayreview/internal/shared"
	"github.com/ashureev/dayreview/internal/store"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the DayReview daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

//nolint:gocognit,funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func runDaemon(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	lock, err := lockfile.Acquire(cfg.LockPath)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			slog.Error("Failed to release lock", "error", releaseErr)
		}
	}()

	slog.Info("Starting daemon", "version", version, "addr", cfg.ListenAddr, "db", cfg.DBPath)

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}

	policy := shared.DefaultRetryPolicy()
	policy.Attempts = cfg.StoreRetries
	repo, err := store.NewSQLite(cfg.DBPath, policy)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(parent); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	cat := categorize.New(rules.Categories)
	slog.Info("Category table compiled", "apps", cat.Len())

	provider, err := analysis.NewProvider(analysis.ProviderConfig{
		Name:    cfg.AI.Provider,
		Model:   cfg.AI.Model,
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
	})
	if err != nil {
		return fmt.Errorf("initialize analysis provider: %w", err)
	}
	if provider == nil {
		slog.Info("AI analysis disabled, using local scoring")
	} else {
		slog.Info("AI analysis enabled", "provider", provider.Name(), "model", cfg.AI.Model)
	}
	pipeline := analysis.NewPipeline(provider, rules.Scoring, cfg.AI.Timeout, logger)

	hub := api.NewReportHub(logger)
	sinks := notify.Multi{hub}
	if cfg.Notify {
		sinks = append(sinks, notify.NewDesktop("DayReview", cfg.Clipboard, logger))
	}

	eng := engine.New(repo, cat, pipeline, sinks, engine.Options{
		Location:      time.Local,
		TickInterval:  cfg.TickInterval,
		RetentionDays: cfg.RetentionDays,
	}, logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.LoopbackOnly(logger))

	api.NewHealthHandler(repo, func() bool { return eng.Status().Running }, 5*time.Second).RegisterHealth(r)
	api.NewHandler(eng, logger).RegisterRoutes(r)
	r.Get("/api/reports/stream", hub.ServeHTTP)

	// The report stream is long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		errCh <- eng.Run(ctx)
	}()

	if cfg.PollInterval > 0 {
		src, err := focus.NewSystemSource()
		switch {
		case errors.Is(err, focus.ErrUnsupported):
			slog.Info("Foreground window polling unavailable, waiting for HTTP events")
		case err != nil:
			slog.Warn("Foreground window polling disabled", "error", err)
		default:
			poller := focus.NewPoller(src, eng, focus.Options{Interval: cfg.PollInterval}, logger)
			go func() {
				if err := poller.Run(ctx); err != nil {
					errCh <- err
				}
			}()
		}
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		if runErr != nil {
			slog.Error("Daemon stopping on error", "error", runErr)
		}
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	// Reports finished during shutdown still reach the desktop sink.
	if err := eng.Close(shutdownCtx); err != nil {
		slog.Error("Engine shutdown incomplete", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	hub.Close()

	if runErr != nil {
		return runErr
	}
	slog.Info("Daemon stopped successfully")
	return nil
}
