package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/dayreview/internal/domain"
)

// Provider scores a day payload using an external model.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, p Payload) (Result, error)
}

// HTTPClient is the subset of http.Client used by providers.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)

func closeBody(body io.Closer, provider string) {
	if closeErr := body.Close(); closeErr != nil {
		slog.Debug("analysis: failed to close response body", "provider", provider, "error", closeErr)
	}
}

// Provider names accepted by NewProvider.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Name    string
	Model   string
	BaseURL string
	APIKey  string
	Client  HTTPClient
}

// NewProvider builds the configured provider. It returns nil, nil for
// ProviderNone so the pipeline runs on the fallback alone.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	switch strings.ToLower(cfg.Name) {
	case "", ProviderNone:
		return nil, nil
	case ProviderAnthropic, "claude":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Client), nil
	case ProviderOpenAI, "gpt":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Client), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Name)
	}
}

const systemPrompt = `You review a person's computer usage for one day and describe how the day likely felt.
You only receive aggregated numbers. Answer with a single JSON object and nothing else:
{"mood_index": <0-100>, "stress_index": <0-100>, "caption_text": "<one short upbeat social-media style line>", "summary": "<one sentence status>"}`

// userPrompt renders the payload as the user message.
func userPrompt(p Payload) (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return "Usage for " + string(p.Date) + " (durations in minutes):\n" + string(data), nil
}

// parseResult decodes a provider answer. The text may wrap the JSON object in
// prose or a code fence; the outermost object is used.
func parseResult(text string) (Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("%w: no JSON object in response", domain.ErrMalformedResponse)
	}

	var raw struct {
		MoodIndex   *float64 `json:"mood_index"`
		StressIndex *float64 `json:"stress_index"`
		Caption     string   `json:"caption_text"`
		Summary     string   `json:"summary"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if raw.MoodIndex == nil || raw.StressIndex == nil {
		return Result{}, fmt.Errorf("%w: missing scores", domain.ErrMalformedResponse)
	}
	if !inRange(*raw.MoodIndex) || !inRange(*raw.StressIndex) {
		return Result{}, fmt.Errorf("%w: scores out of range (%v, %v)", domain.ErrMalformedResponse, *raw.MoodIndex, *raw.StressIndex)
	}
	caption := strings.TrimSpace(raw.Caption)
	if caption == "" {
		return Result{}, fmt.Errorf("%w: empty caption", domain.ErrMalformedResponse)
	}
	return Result{
		MoodIndex:   round1(*raw.MoodIndex),
		StressIndex: round1(*raw.StressIndex),
		Caption:     caption,
		Summary:     strings.TrimSpace(raw.Summary),
	}, nil
}

func inRange(v float64) bool {
	return v >= 0 && v <= 100
}
