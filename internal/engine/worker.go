package engine

import (
	"context"
	"time"
)

// Run drives the scheduler until ctx is done or a fatal error occurs. It
// wakes every tick interval and seals the open day once its date has passed.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	e.logger.Info("rollover worker started", "interval", e.tick)

	for {
		select {
		case <-ticker.C:
			if err := e.Advance(ctx); err != nil {
				e.logger.Error("rollover worker advance failed", "error", err)
			}
		case err := <-e.fatal:
			e.logger.Error("rollover worker stopping on fatal error", "error", err)
			return err
		case <-ctx.Done():
			e.logger.Info("rollover worker shutting down", "reason", ctx.Err())
			return nil
		}
	}
}
