package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile(t *testing.T) {
	// Create a temp YAML file
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	tmpFile, err := os.CreateTemp("", "test-config-env-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	l := NewLoader(t.TempDir(), quietLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := l.Config()
	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.RateLimit.Limit != 100 || cfg.RateLimit.Window != time.Hour {
		t.Errorf("unexpected rate limit defaults %+v", cfg.RateLimit)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("expected 30m cache ttl, got %v", cfg.Cache.TTL)
	}
	if cfg.Upstream.Model != "openai/gpt-oss-20b" || cfg.Upstream.Temperature != 0.7 {
		t.Errorf("unexpected upstream defaults %+v", cfg.Upstream)
	}
}

func TestLoader_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
actions:
  strict: true
cache:
  backend: none
upstream:
  api_key: "${DENTASSIST_TEST_KEY:sk-local}"
`
	if err := os.WriteFile(filepath.Join(dir, MainFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir, quietLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := l.Config()
	if !cfg.Actions.Strict || cfg.Cache.Backend != "none" {
		t.Errorf("overrides not applied: %+v %+v", cfg.Actions, cfg.Cache)
	}
	if cfg.Upstream.APIKey != "sk-local" {
		t.Errorf("expected env default sk-local, got %q", cfg.Upstream.APIKey)
	}
	if cfg.Actions.DefaultAction != "default" {
		t.Errorf("unset fields must keep defaults, got %q", cfg.Actions.DefaultAction)
	}
}

func TestLoader_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, MainFile), []byte("cache:\n  backend: disk\n"), 0o644)

	if err := NewLoader(dir, quietLogger()).Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad source", func(c *Config) { c.Actions.Source = "s3" }, "actions.source"},
		{"empty default action", func(c *Config) { c.Actions.DefaultAction = " " }, "default_action"},
		{"redis without address", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Redis.Addresses = nil
		}, "redis.addresses"},
		{"zero limit", func(c *Config) { c.RateLimit.Limit = 0 }, "ratelimit.limit"},
		{"zero limit when disabled", func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.Limit = 0
		}, ""},
		{"negative retries", func(c *Config) { c.Upstream.MaxRetries = -1 }, "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "dentassist", User: "app", Password: "p@ss"}
	want := "postgres://app:p%40ss@db:5432/dentassist?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestAuthConfig_Enabled(t *testing.T) {
	if (AuthConfig{}).Enabled() {
		t.Error("empty auth config must be disabled")
	}
	if !(AuthConfig{Keys: []KeyConfig{{Hash: "x"}}}).Enabled() {
		t.Error("a key enables auth")
	}
}

func TestLoader_WatchNotifiesChanges(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(dir, quietLogger())
	if err := l.Load(); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 8)
	l.OnChange(func(path string) { changed <- filepath.Base(path) })

	done := make(chan struct{})
	defer close(done)
	if err := l.Watch(done); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	os.WriteFile(filepath.Join(dir, MainFile), []byte("server:\n  port: 9100\n"), 0o644)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case name := <-changed:
			if name == MainFile && l.Config().Server.Port == 9100 {
				return
			}
		case <-timeout:
			t.Fatal("no change notification for gateway.yaml")
		}
	}
}
