// Package analysis turns a day summary into a scored report, using an AI
// provider when one is configured and a local rule evaluator otherwise.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ashureev/dayreview/internal/domain"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 20 * time.Second

// Pipeline runs the provider with the fallback behind it.
type Pipeline struct {
	provider Provider
	weights  Weights
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline creates a pipeline. provider may be nil, in which case every
// report comes from the fallback.
func NewPipeline(provider Provider, weights Weights, timeout time.Duration, logger *slog.Logger) *Pipeline {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		provider: provider,
		weights:  weights,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Weights returns the fallback weights in use.
func (p *Pipeline) Weights() Weights {
	return p.weights
}

// Analyze produces a report for day. It never fails: provider errors,
// timeouts and cancellation of ctx all fall back to the rule evaluator.
func (p *Pipeline) Analyze(ctx context.Context, day domain.DaySummary) domain.Report {
	result, source := p.score(ctx, day)
	return domain.Report{
		ID:          ulid.Make().String(),
		Date:        day.Date,
		MoodIndex:   result.MoodIndex,
		StressIndex: result.StressIndex,
		Caption:     result.Caption,
		Summary:     result.Summary,
		Source:      source,
		CreatedAt:   p.now().UTC().Truncate(time.Millisecond),
	}
}

func (p *Pipeline) score(ctx context.Context, day domain.DaySummary) (Result, domain.ReportSource) {
	if p.provider == nil {
		return Fallback(day, p.weights), domain.SourceFallback
	}

	result, err := p.callProvider(ctx, day)
	if err != nil {
		p.logger.Warn("analysis provider failed, using fallback",
			"date", day.Date,
			"provider", p.provider.Name(),
			"error", err,
		)
		return Fallback(day, p.weights), domain.SourceFallback
	}
	if result.Summary == "" {
		result.Summary = Fallback(day, p.weights).Summary
	}
	p.logger.Info("analysis completed", "date", day.Date, "provider", p.provider.Name())
	return result, domain.SourceAI
}

func (p *Pipeline) callProvider(ctx context.Context, day domain.DaySummary) (result Result, err error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrAnalysisUnavailable, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: provider panic: %v", domain.ErrAnalysisUnavailable, r)
		}
	}()

	result, err = p.provider.Analyze(callCtx, NewPayload(day))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrAnalysisUnavailable, err)
	}
	return result, nil
}
