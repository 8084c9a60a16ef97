// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	DBPath        string
	ListenAddr    string
	LockPath      string
	RulesFile     string
	TickInterval  time.Duration
	PollInterval  time.Duration // 0 disables the foreground window poller
	RetentionDays int
	StoreRetries  int
	Notify        bool
	Clipboard     bool
	LogLevel      slog.Level
	AI            AIConfig
}

// AIConfig selects and configures the analysis provider.
type AIConfig struct {
	Provider string // "anthropic", "openai" or "none"
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// Enabled reports whether an AI provider is configured.
func (c AIConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != "none"
}

// HomeDir returns the DayReview data directory (~/.dayreview).
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".dayreview")
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	home := HomeDir()

	provider := strings.ToLower(strings.TrimSpace(getEnv("DAYREVIEW_AI_PROVIDER", "none")))
	cfg := &Config{
		DBPath:        getEnv("DAYREVIEW_DB_PATH", filepath.Join(home, "activity.db")),
		ListenAddr:    getEnv("DAYREVIEW_LISTEN_ADDR", "127.0.0.1:7817"),
		LockPath:      getEnv("DAYREVIEW_LOCK_PATH", filepath.Join(home, "dayreview.lock")),
		RulesFile:     getEnv("DAYREVIEW_RULES_FILE", filepath.Join(home, "rules.yaml")),
		TickInterval:  getEnvDuration("DAYREVIEW_TICK_INTERVAL", time.Minute),
		PollInterval:  getEnvDuration("DAYREVIEW_POLL_INTERVAL", 5*time.Second),
		RetentionDays: getEnvInt("DAYREVIEW_RETENTION_DAYS", 30),
		StoreRetries:  getEnvInt("DAYREVIEW_STORE_RETRIES", 5),
		Notify:        getEnvBool("DAYREVIEW_NOTIFY", true),
		Clipboard:     getEnvBool("DAYREVIEW_CLIPBOARD", false),
		LogLevel:      getEnvLevel("DAYREVIEW_LOG_LEVEL", slog.LevelInfo),
		AI: AIConfig{
			Provider: provider,
			Model:    getEnv("DAYREVIEW_AI_MODEL", defaultModel(provider)),
			BaseURL:  getEnv("DAYREVIEW_AI_BASE_URL", ""),
			APIKey:   apiKeyFor(provider),
			Timeout:  getEnvDuration("DAYREVIEW_AI_TIMEOUT", 20*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DAYREVIEW_DB_PATH cannot be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("DAYREVIEW_LISTEN_ADDR cannot be empty")
	}
	if c.LockPath == "" {
		return fmt.Errorf("DAYREVIEW_LOCK_PATH cannot be empty")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("DAYREVIEW_TICK_INTERVAL must be > 0")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("DAYREVIEW_POLL_INTERVAL must be >= 0")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("DAYREVIEW_RETENTION_DAYS must be > 0")
	}
	if c.StoreRetries <= 0 {
		return fmt.Errorf("DAYREVIEW_STORE_RETRIES must be > 0")
	}
	switch c.AI.Provider {
	case "none", "":
	case "anthropic", "openai":
		if c.AI.APIKey == "" {
			return fmt.Errorf("API key for provider %q is not set", c.AI.Provider)
		}
		if c.AI.Timeout <= 0 {
			return fmt.Errorf("DAYREVIEW_AI_TIMEOUT must be > 0")
		}
	default:
		return fmt.Errorf("unknown DAYREVIEW_AI_PROVIDER %q", c.AI.Provider)
	}
	return nil
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-3-5-haiku-20241022"
	case "openai":
		return "gpt-4o-mini"
	}
	return ""
}

func apiKeyFor(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
