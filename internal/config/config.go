// Package config loads runtime settings from defaults, an optional YAML
// file and HUDDLE_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/huddle/internal/database"
)

const EnvPrefix = "huddle"

const (
	TransportLocal = "local"
	TransportRedis = "redis"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http" envconfig:"http"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"db"`
	Log       LogConfig       `yaml:"log" envconfig:"log"`
	Auth      AuthConfig      `yaml:"auth" envconfig:"auth"`
	Transport TransportConfig `yaml:"transport" envconfig:"transport"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"otel"`
	Jobs      JobsConfig      `yaml:"jobs" envconfig:"jobs"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"rate_limit"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" envconfig:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" envconfig:"driver"`
	DSN             string        `yaml:"dsn" envconfig:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"conn_max_lifetime"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"level"`
	Format string `yaml:"format" envconfig:"format"`
}

type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret" envconfig:"token_secret"`
	Issuer      string        `yaml:"issuer" envconfig:"issuer"`
	TokenTTL    time.Duration `yaml:"token_ttl" envconfig:"token_ttl"`
}

type TransportConfig struct {
	Kind          string `yaml:"kind" envconfig:"kind"`
	RedisURL      string `yaml:"redis_url" envconfig:"redis_url"`
	ChannelPrefix string `yaml:"channel_prefix" envconfig:"channel_prefix"`
}

type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" envconfig:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint" envconfig:"endpoint"`
}

type JobsConfig struct {
	// ReconcileSchedule is a cron expression; empty disables the job.
	ReconcileSchedule string `yaml:"reconcile_schedule" envconfig:"reconcile_schedule"`
	// RepairMismatches rewrites drifted balances instead of only reporting.
	RepairMismatches       bool          `yaml:"repair_mismatches" envconfig:"repair_mismatches"`
	LimiterCleanupSchedule string        `yaml:"limiter_cleanup_schedule" envconfig:"limiter_cleanup_schedule"`
	LimiterIdle            time.Duration `yaml:"limiter_idle" envconfig:"limiter_idle"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" envconfig:"per_minute"`
	Burst     int `yaml:"burst" envconfig:"burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: string(database.SQLite),
			DSN:    "huddle.db",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Auth: AuthConfig{
			Issuer:   "huddle",
			TokenTTL: 24 * time.Hour,
		},
		Transport: TransportConfig{Kind: TransportLocal},
		Telemetry: TelemetryConfig{ServiceName: "huddle"},
		Jobs: JobsConfig{
			ReconcileSchedule:      "@every 1h",
			LimiterCleanupSchedule: "@every 5m",
			LimiterIdle:            10 * time.Minute,
		},
		RateLimit: RateLimitConfig{PerMinute: 60, Burst: 20},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first without overriding the real environment; path may be empty.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := database.ParseDialect(c.Database.Driver); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}
	switch c.Transport.Kind {
	case TransportLocal:
	case TransportRedis:
		if c.Transport.RedisURL == "" {
			errs = append(errs, errors.New("transport redis requires redis_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport.Kind))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth token_ttl must be positive"))
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit per_minute and burst must be positive"))
	}
	return errors.Join(errs...)
}

// RequireSecret checks the token secret, which only token-handling
// commands need.
func (c *Config) RequireSecret() error {
	if len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("HUDDLE_AUTH_TOKEN_SECRET must be at least 32 bytes")
	}
	return nil
}

type ctxKey struct{}

// WithContext stores cfg on ctx for command handlers.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext returns the configuration stored by WithContext, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(ctxKey{}).(*Config)
	return cfg
}
