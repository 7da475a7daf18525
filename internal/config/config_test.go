package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "huddle.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Transport.Kind != TransportLocal {
		t.Errorf("Transport = %q, want local", cfg.Transport.Kind)
	}
}

func TestLoadPrecedence(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, `
http:
  addr: ":9000"
  allowed_origins: ["app.example.com"]
database:
  driver: postgres
  dsn: postgres://localhost/huddle
log:
  level: debug
jobs:
  reconcile_schedule: "@daily"
`)
	t.Setenv("HUDDLE_HTTP_ADDR", ":9100")
	t.Setenv("HUDDLE_AUTH_TOKEN_TTL", "2h")
	t.Setenv("HUDDLE_RATE_LIMIT_BURST", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Errorf("Addr = %q, env should win over file", cfg.HTTP.Addr)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://localhost/huddle" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "app.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.PerMinute != 60 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Jobs.ReconcileSchedule != "@daily" {
		t.Errorf("ReconcileSchedule = %q", cfg.Jobs.ReconcileSchedule)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("HUDDLE_LOG_FORMAT=json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HUDDLE_LOG_FORMAT", "")
	os.Unsetenv("HUDDLE_LOG_FORMAT")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Format = %q, want json from .env", cfg.Log.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "htttp:\n  addr: \":1\"\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = " " }, "dsn is required"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"redis without url", func(c *Config) { c.Transport.Kind = TransportRedis }, "redis_url"},
		{"unknown transport", func(c *Config) { c.Transport.Kind = "nats" }, "unknown transport"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "token_ttl"},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }, "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestRequireSecret(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireSecret(); err == nil {
		t.Error("expected error for missing secret")
	}
	cfg.Auth.TokenSecret = strings.Repeat("s", 32)
	if err := cfg.RequireSecret(); err != nil {
		t.Errorf("RequireSecret: %v", err)
	}
}
