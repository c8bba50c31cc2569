package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvConfigPath, EnvPort, EnvLogLevel, EnvLogFormat, EnvDataDir, EnvCollection,
		EnvFeedURL, EnvFeedBaseURL, EnvYtDlpPath, EnvAcquireTimeout, EnvPollInterval,
		EnvIndexTimeout, EnvAPIToken, EnvSubmitByURL, EnvAPIKey, EnvIndexID, EnvLegacyIndexID, EnvAPIBaseURL,
	} {
		t.Setenv(key, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.FeedURL() != DefaultFeedURL {
		t.Errorf("FeedURL() = %q", cfg.FeedURL())
	}
	if cfg.PollInterval() != 5*time.Second {
		t.Errorf("PollInterval() = %s, want 5s", cfg.PollInterval())
	}
	if cfg.AcquireTimeout() != 120*time.Second {
		t.Errorf("AcquireTimeout() = %s, want 2m0s", cfg.AcquireTimeout())
	}
	if got := cfg.ProgressDir(); got != filepath.Join(DefaultDataDir, "progress") {
		t.Errorf("ProgressDir() = %q", got)
	}
	if len(cfg.Stopwords()) != 3 {
		t.Errorf("Stopwords() = %v, want 3 defaults", cfg.Stopwords())
	}
	if err := cfg.RequireRemote(); err == nil {
		t.Error("RequireRemote() should fail without credentials")
	}
	if !cfg.SubmitByURL() {
		t.Error("SubmitByURL() should default to true")
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, "tlk_test")
	t.Setenv(EnvIndexID, "idx-1")
	t.Setenv(EnvPollInterval, "250ms")
	t.Setenv(EnvAPIBaseURL, "http://localhost:9999/v1.3/")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Errorf("PollInterval() = %s", cfg.PollInterval())
	}
	if cfg.APIBaseURL() != "http://localhost:9999/v1.3" {
		t.Errorf("APIBaseURL() = %q, want trailing slash trimmed", cfg.APIBaseURL())
	}
	if err := cfg.RequireRemote(); err != nil {
		t.Errorf("RequireRemote() = %v", err)
	}
}

func TestNew_LegacyIndexID(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLegacyIndexID, "legacy-idx")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IndexID() != "legacy-idx" {
		t.Errorf("IndexID() = %q, want legacy-idx", cfg.IndexID())
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"port not a number", EnvPort, "abc"},
		{"port out of range", EnvPort, "70000"},
		{"bad duration", EnvIndexTimeout, "forever"},
		{"zero poll interval", EnvPollInterval, "0s"},
		{"bad log format", EnvLogFormat, "xml"},
		{"bad submit flag", EnvSubmitByURL, "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.val)
			if _, err := New(); err == nil {
				t.Errorf("New() with %s=%q should fail", tt.env, tt.val)
			}
		})
	}
}

func TestNew_ConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "adland.yaml")
	content := `
collection: playoffs
feed:
  base_url: https://example.com
  stopwords: [ads, the]
index:
  id: file-index
  timeout: 10m
  max_poll_attempts: 40
  submit_by_url: false
analysis:
  temperature: 0.5
  include_brand: false
tag_rules:
  - label: "2027 Super Bowl LXI"
    title_pattern: "super\\s*bowl"
    marker_pattern: "2027|lxi"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvIndexID, "env-index")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Collection() != "playoffs" {
		t.Errorf("Collection() = %q", cfg.Collection())
	}
	if cfg.FeedBaseURL() != "https://example.com/" {
		t.Errorf("FeedBaseURL() = %q, want trailing slash", cfg.FeedBaseURL())
	}
	if cfg.IndexID() != "env-index" {
		t.Errorf("IndexID() = %q, env should override file", cfg.IndexID())
	}
	if cfg.IndexTimeout() != 10*time.Minute {
		t.Errorf("IndexTimeout() = %s", cfg.IndexTimeout())
	}
	if cfg.MaxPollAttempts() != 40 {
		t.Errorf("MaxPollAttempts() = %d", cfg.MaxPollAttempts())
	}
	if cfg.SubmitByURL() {
		t.Error("SubmitByURL() should follow the file")
	}
	if cfg.AnalyzeTemperature() != 0.5 || cfg.AnalyzeIncludeBrand() {
		t.Errorf("analysis settings not applied: %v %v", cfg.AnalyzeTemperature(), cfg.AnalyzeIncludeBrand())
	}
	rules := cfg.TagRules()
	if len(rules) != 1 || rules[0].Label != "2027 Super Bowl LXI" {
		t.Errorf("TagRules() = %+v", rules)
	}
	if got := cfg.Stopwords(); len(got) != 2 || got[0] != "ads" {
		t.Errorf("Stopwords() = %v", got)
	}
}

func TestNew_ConfigFileErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := New(); err == nil {
		t.Error("New() should fail when the config file is missing")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("index:\n  timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)
	if _, err := New(); err == nil {
		t.Error("New() should fail on an invalid duration")
	}
}
