// Package notify delivers finished reports to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"

	"github.com/ashureev/dayreview/internal/domain"
)

// Sink receives reports once they are ready.
type Sink interface {
	OnReportReady(ctx context.Context, report domain.Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, report domain.Report) error

// OnReportReady calls f.
func (f SinkFunc) OnReportReady(ctx context.Context, report domain.Report) error {
	return f(ctx, report)
}

// Multi fans a report out to several sinks. Every sink is called even if an
// earlier one fails.
type Multi []Sink

// OnReportReady implements Sink.
func (m Multi) OnReportReady(ctx context.Context, report domain.Report) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.OnReportReady(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Desktop shows a desktop notification and optionally copies the caption
// to the clipboard.
type Desktop struct {
	copyCaption bool
	logger      *slog.Logger

	notify    func(title, message string, icon any) error
	writeClip func(text string) error
}

// NewDesktop creates a desktop sink. appName labels the notifications.
func NewDesktop(appName string, copyCaption bool, logger *slog.Logger) *Desktop {
	if appName != "" {
		beeep.AppName = appName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{
		copyCaption: copyCaption,
		logger:      logger,
		notify:      beeep.Notify,
		writeClip:   clipboard.WriteAll,
	}
}

// OnReportReady implements Sink.
func (d *Desktop) OnReportReady(_ context.Context, report domain.Report) error {
	title, message := Format(report)
	if err := d.notify(title, message, ""); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}

	if d.copyCaption && report.Caption != "" {
		if clipboard.Unsupported {
			d.logger.Debug("clipboard unsupported on this system")
			return nil
		}
		if err := d.writeClip(report.Caption); err != nil {
			return fmt.Errorf("copy caption: %w", err)
		}
	}
	return nil
}

// Format renders a report as a notification title and body.
func Format(report domain.Report) (title, message string) {
	title = "Daily review " + report.Date.String()
	if report.Preview {
		title += " (preview)"
	}
	message = fmt.Sprintf("Mood %.0f · Stress %.0f\n%s", report.MoodIndex, report.StressIndex, report.Caption)
	if report.Summary != "" {
		message += "\n" + report.Summary
	}
	return title, message
}
