// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	env "github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration, populated from environment
// variables.
type Config struct {
	Provider string `env:"ARBITER_PROVIDER" envDefault:"openai"`
	Model    string `env:"ARBITER_MODEL"`
	BaseURL  string `env:"ARBITER_BASE_URL"`

	OpenAIKey    string `env:"OPENAI_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`

	Workers           int  `env:"ARBITER_WORKERS" envDefault:"4"`
	Batch             bool `env:"ARBITER_BATCH"`
	RequestsPerMinute int  `env:"ARBITER_RPM"`

	JudgeModel     string `env:"ARBITER_JUDGE_MODEL"`
	JudgeCachePath string `env:"ARBITER_JUDGE_CACHE"`

	EmbedProvider  string `env:"ARBITER_EMBED_PROVIDER"`
	EmbedModel     string `env:"ARBITER_EMBED_MODEL"`
	EmbedModelPath string `env:"ARBITER_EMBED_MODEL_PATH"`
	EmbedLibPath   string `env:"ARBITER_EMBED_LIB_PATH"`
	EmbedCachePath string `env:"ARBITER_EMBED_CACHE"`
	EmbedCacheMB   int    `env:"ARBITER_EMBED_CACHE_MB" envDefault:"100"`

	ProxyEnabled  bool   `env:"ARBITER_PROXY" envDefault:"false"`
	ProxyMaxCalls int    `env:"ARBITER_PROXY_MAX_CALLS" envDefault:"50"`
	ProxyAddr     string `env:"ARBITER_PROXY_ADDR" envDefault:"127.0.0.1:0"`

	ResultsPath string `env:"ARBITER_RESULTS" envDefault:"results.jsonl"`
	LogLevel    string `env:"ARBITER_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// APIKey returns the credential for the configured provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case "anthropic":
		return c.AnthropicKey
	default:
		return c.OpenAIKey
	}
}

// Logger builds a structured logger honoring LogLevel.
func (c *Config) Logger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
