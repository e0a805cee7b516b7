package config

import (
	"log/slog"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("provider = %q", cfg.Provider)
	}
	if cfg.Workers != 4 {
		t.Errorf("workers = %d", cfg.Workers)
	}
	if cfg.ProxyMaxCalls != 50 {
		t.Errorf("proxy max calls = %d", cfg.ProxyMaxCalls)
	}
	if cfg.ResultsPath != "results.jsonl" {
		t.Errorf("results path = %q", cfg.ResultsPath)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ARBITER_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("ARBITER_WORKERS", "16")
	t.Setenv("ARBITER_BATCH", "true")
	t.Setenv("ARBITER_RPM", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "anthropic" || cfg.Workers != 16 || !cfg.Batch {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RequestsPerMinute != 120 {
		t.Errorf("rpm = %d", cfg.RequestsPerMinute)
	}
	if cfg.APIKey() != "sk-test" {
		t.Errorf("APIKey = %q", cfg.APIKey())
	}
}

func TestAPIKeyFollowsProvider(t *testing.T) {
	cfg := &Config{Provider: "openai", OpenAIKey: "oa", AnthropicKey: "an"}
	if cfg.APIKey() != "oa" {
		t.Errorf("openai key = %q", cfg.APIKey())
	}
	cfg.Provider = "anthropic"
	if cfg.APIKey() != "an" {
		t.Errorf("anthropic key = %q", cfg.APIKey())
	}
}

func TestLoggerLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "bogus"} {
		cfg := &Config{LogLevel: lvl}
		if cfg.Logger() == nil {
			t.Errorf("nil logger for level %q", lvl)
		}
	}
	// Unknown levels fall back to info.
	cfg := &Config{LogLevel: "bogus"}
	if !cfg.Logger().Enabled(t.Context(), slog.LevelInfo) {
		t.Error("info should be enabled by default")
	}
}
