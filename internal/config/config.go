// Package config provides environment-driven configuration for cadence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all application configuration values.
type Config struct {
	DatabaseURL Secret
	DBMaxConns  int
	Port        string
	ListenHost  string
	MetricsPort string
	CORSOrigins []string
	LogLevel    string
	LogFormat   string

	RedisAddr     string
	RedisPassword Secret
	RedisDB       int

	JWTSecret           Secret
	JWTIssuer           string
	InternalJWTSecret   Secret
	InternalTokenTTL    time.Duration
	PlatformAdminEmails []string
	EncryptionKey       Secret

	WebhookReplayTTL          time.Duration
	WebhookTimestampTolerance time.Duration
	WebhookRatePerMinute      int
	WebhookDeliveryTimeout    time.Duration
	RESTPollTimeout           time.Duration

	ETLPollInterval        time.Duration
	AutomationEvalInterval time.Duration
	SchedulerPollInterval  time.Duration
	JobMaxAttempts         int
	JobBackoffBase         time.Duration
	JobHistoryLimit        int
	AuditRetentionDays     int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       Secret(envOrDefault("DATABASE_URL", "")),
		Port:              envOrDefault("PORT", "3030"),
		ListenHost:        envOrDefault("LISTEN_HOST", "127.0.0.1"),
		MetricsPort:       envOrDefault("METRICS_PORT", "9091"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		LogFormat:         envOrDefault("LOG_FORMAT", "text"),
		RedisAddr:         envOrDefault("REDIS_ADDR", ""),
		RedisPassword:     Secret(envOrDefault("REDIS_PASSWORD", "")),
		JWTSecret:         Secret(envOrDefault("JWT_SECRET", "")),
		JWTIssuer:         envOrDefault("JWT_ISSUER", ""),
		InternalJWTSecret: Secret(envOrDefault("INTERNAL_JWT_SECRET", "")),
		EncryptionKey:     Secret(envOrDefault("ENCRYPTION_KEY", "")),
	}

	p := &parser{}
	cfg.DBMaxConns = p.int("DB_MAX_CONNS", 20)
	cfg.RedisDB = p.int("REDIS_DB", 0)
	cfg.InternalTokenTTL = p.duration("INTERNAL_TOKEN_TTL", time.Hour)
	cfg.WebhookReplayTTL = p.seconds("WEBHOOK_REPLAY_TTL_SECONDS", 300)
	cfg.WebhookTimestampTolerance = p.seconds("WEBHOOK_TIMESTAMP_TOLERANCE_SECONDS", 300)
	cfg.WebhookRatePerMinute = p.int("WEBHOOK_RATE_LIMIT_PER_MINUTE", 60)
	cfg.WebhookDeliveryTimeout = p.duration("WEBHOOK_DELIVERY_TIMEOUT", 10*time.Second)
	cfg.RESTPollTimeout = p.duration("REST_POLL_TIMEOUT", 10*time.Second)
	cfg.ETLPollInterval = p.duration("ETL_POLL_INTERVAL", 5*time.Minute)
	cfg.AutomationEvalInterval = p.duration("AUTOMATION_EVAL_INTERVAL", 5*time.Minute)
	cfg.SchedulerPollInterval = p.duration("SCHEDULER_POLL_INTERVAL", time.Second)
	cfg.JobMaxAttempts = p.int("JOB_MAX_ATTEMPTS", 3)
	cfg.JobBackoffBase = p.duration("JOB_BACKOFF_BASE", time.Second)
	cfg.JobHistoryLimit = p.int("JOB_HISTORY_LIMIT", 500)
	cfg.AuditRetentionDays = p.int("AUDIT_RETENTION_DAYS", 90)
	if p.err != nil {
		return nil, p.err
	}

	cfg.CORSOrigins = splitList(envOrDefault("CORS_ORIGINS", "http://localhost:3002"))
	cfg.PlatformAdminEmails = splitList(envOrDefault("PLATFORM_ADMIN_EMAILS", ""))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the listen address of the standalone metrics server,
// or "" when metrics are only served on the API router.
func (c *Config) MetricsAddr() string {
	if c.MetricsPort == "" {
		return ""
	}

	return c.ListenHost + ":" + c.MetricsPort
}

// parser collects the first conversion error while reading numeric keys.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		p.err = fmt.Errorf("%s must be an integer: %w", key, err)
		return fallback
	}

	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		p.err = fmt.Errorf("%s must be a duration such as 30s or 5m: %w", key, err)
		return fallback
	}

	return v
}

func (p *parser) seconds(key string, fallback int) time.Duration {
	return time.Duration(p.int(key, fallback)) * time.Second
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}

	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
