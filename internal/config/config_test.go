package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadRoot_Defaults(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", "pipeline:\n  freshness_hours: 24\n")

	cfg, err := LoadRoot(path)
	if err != nil {
		t.Fatalf("LoadRoot() error = %v", err)
	}
	if cfg.Pipeline.FreshnessHours != 24 {
		t.Errorf("FreshnessHours = %d, want 24", cfg.Pipeline.FreshnessHours)
	}
	if cfg.Pipeline.UnknownDatePolicy != UnknownDateFresh {
		t.Errorf("UnknownDatePolicy = %q, want fresh", cfg.Pipeline.UnknownDatePolicy)
	}
	if !cfg.Pipeline.RelevanceRequired() {
		t.Errorf("relevance filter should be on by default")
	}
	if len(cfg.Buckets) != 2 || cfg.Buckets[0].Name != "funding" || cfg.Buckets[1].Name != "startups" {
		t.Errorf("Buckets = %+v, want funding then startups", cfg.Buckets)
	}
	if cfg.Retention.SentHours != 48 || cfg.Retention.SeenMaxEntries != 5000 {
		t.Errorf("Retention = %+v", cfg.Retention)
	}
	if cfg.State.Backend != BackendFile || cfg.State.Path != "data/state.json" {
		t.Errorf("State = %+v", cfg.State)
	}
}

func TestLoadRoot_ExplicitRelevanceOff(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", "pipeline:\n  require_relevance: false\n")

	cfg, err := LoadRoot(path)
	if err != nil {
		t.Fatalf("LoadRoot() error = %v", err)
	}
	if cfg.Pipeline.RelevanceRequired() {
		t.Errorf("RelevanceRequired() = true, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Root)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Root) {}},
		{
			name:    "bad unknown date policy",
			mutate:  func(r *Root) { r.Pipeline.UnknownDatePolicy = "maybe" },
			wantErr: "unknown_date_policy",
		},
		{
			name:    "seen min below freshness",
			mutate:  func(r *Root) { r.Retention.SeenMinHours = 24 },
			wantErr: "seen_min_hours",
		},
		{
			name:    "duplicate bucket",
			mutate:  func(r *Root) { r.Buckets = append(r.Buckets, r.Buckets[0]) },
			wantErr: "duplicate name",
		},
		{
			name:    "zero limit",
			mutate:  func(r *Root) { r.Buckets[0].Limit = 0 },
			wantErr: "limit must be positive",
		},
		{
			name:    "unknown backend",
			mutate:  func(r *Root) { r.State.Backend = "redis" },
			wantErr: "state.backend",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSources(t *testing.T) {
	path := writeFile(t, "sources.yaml", `sources:
  - name: contxto
    url: https://contxto.com/feed/
    country: MX
    bucket: startups
  - name: old
    url: https://old.example.com/rss
    disabled: true
  - name: lavca
    url: https://lavca.org/feed/
    bucket: funding
`)

	cfg, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources() error = %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("len(Sources) = %d, want 2", len(cfg.Sources))
	}
	if cfg.Sources[0].Name != "contxto" || cfg.Sources[1].Name != "lavca" {
		t.Errorf("order not preserved: %+v", cfg.Sources)
	}
}

func TestLoadSources_MissingURL(t *testing.T) {
	path := writeFile(t, "sources.yaml", "sources:\n  - name: broken\n")
	if _, err := LoadSources(path); err == nil {
		t.Fatal("LoadSources() expected error for missing url")
	}
}

func TestLoadSources_NoEnabled(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty list", content: "sources: []\n"},
		{name: "no key", content: "# nothing here\n"},
		{name: "all disabled", content: "sources:\n  - name: old\n    url: https://old.example.com/rss\n    disabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "sources.yaml", tt.content)
			_, err := LoadSources(path)
			if !errors.Is(err, ErrNotConfigured) {
				t.Fatalf("LoadSources() error = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestRequireTelegram(t *testing.T) {
	env := EnvConfig{TelegramBotToken: "token"}
	err := env.RequireTelegram()
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("RequireTelegram() error = %v, want ErrNotConfigured", err)
	}
	if !strings.Contains(err.Error(), "TELEGRAM_CHAT_ID") {
		t.Errorf("error should name the missing variable: %v", err)
	}

	env.TelegramChatID = "@channel"
	if err := env.RequireTelegram(); err != nil {
		t.Errorf("RequireTelegram() error = %v", err)
	}
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", " token ")
	t.Setenv("TELEGRAM_CHAT_ID", "@latam")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("LOG_LEVEL", "debug")

	env := LoadEnvConfig()
	if env.TelegramBotToken != "token" {
		t.Errorf("TelegramBotToken = %q", env.TelegramBotToken)
	}
	if env.GeminiEnabled() {
		t.Errorf("GeminiEnabled() = true with empty key")
	}
	if env.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", env.LogLevel)
	}
}
