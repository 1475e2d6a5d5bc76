package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// minSecretLen is the shortest accepted HMAC signing secret.
const minSecretLen = 32

func (c *Config) validate() error {
	validators := []func() error{
		c.validateDatabase,
		c.validateNetwork,
		c.validateLogging,
		c.validateCORS,
		c.validateAuth,
		c.validateEncryption,
		c.validateRedis,
		c.validateJobs,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	dbHost := dbURL.Hostname()
	if !isLoopback(dbHost) {
		sslmode := dbURL.Query().Get("sslmode")
		if sslmode == "disable" {
			return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbHost)
		}
	}

	if c.DBMaxConns < 1 || c.DBMaxConns > 200 {
		return fmt.Errorf("DB_MAX_CONNS must be between 1 and 200")
	}

	return nil
}

func (c *Config) validateNetwork() error {
	if err := validatePort("PORT", c.Port); err != nil {
		return err
	}

	if c.MetricsPort != "" {
		if err := validatePort("METRICS_PORT", c.MetricsPort); err != nil {
			return err
		}
		if c.MetricsPort == c.Port {
			return fmt.Errorf("METRICS_PORT must differ from PORT")
		}
	}

	if !isLoopback(c.ListenHost) && c.ListenHost != "0.0.0.0" && c.ListenHost != "::" {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers, got %q", c.ListenHost)
	}

	return nil
}

func validatePort(key, raw string) error {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s must be a valid integer: %w", key, err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", key)
	}

	return nil
}

func (c *Config) validateLogging() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'text' or 'json', got %q", c.LogFormat)
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) validateAuth() error {
	if len(c.JWTSecret.Value()) < minSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLen)
	}

	if len(c.InternalJWTSecret.Value()) < minSecretLen {
		return fmt.Errorf("INTERNAL_JWT_SECRET must be at least %d characters", minSecretLen)
	}

	if c.InternalJWTSecret == c.JWTSecret {
		return fmt.Errorf("INTERNAL_JWT_SECRET must differ from JWT_SECRET")
	}

	if c.InternalTokenTTL < time.Minute || c.InternalTokenTTL > 24*time.Hour {
		return fmt.Errorf("INTERNAL_TOKEN_TTL must be between 1m and 24h")
	}

	for _, email := range c.PlatformAdminEmails {
		if !strings.Contains(email, "@") {
			return fmt.Errorf("PLATFORM_ADMIN_EMAILS contains invalid email %q", email)
		}
	}

	return nil
}

func (c *Config) validateEncryption() error {
	if c.EncryptionKey.Value() == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}

	keyBytes, err := hex.DecodeString(c.EncryptionKey.Value())
	if err != nil {
		return fmt.Errorf("ENCRYPTION_KEY must be valid hex: %w", err)
	}

	if len(keyBytes) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (32 bytes), got %d chars", len(c.EncryptionKey.Value()))
	}

	return nil
}

func (c *Config) validateRedis() error {
	if c.RedisAddr == "" {
		return nil
	}

	if !strings.Contains(c.RedisAddr, ":") {
		return fmt.Errorf("REDIS_ADDR must be host:port, got %q", c.RedisAddr)
	}

	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15")
	}

	return nil
}

func (c *Config) validateJobs() error {
	positive := map[string]time.Duration{
		"WEBHOOK_REPLAY_TTL_SECONDS":          c.WebhookReplayTTL,
		"WEBHOOK_TIMESTAMP_TOLERANCE_SECONDS": c.WebhookTimestampTolerance,
		"WEBHOOK_DELIVERY_TIMEOUT":            c.WebhookDeliveryTimeout,
		"REST_POLL_TIMEOUT":                   c.RESTPollTimeout,
		"SCHEDULER_POLL_INTERVAL":             c.SchedulerPollInterval,
		"JOB_BACKOFF_BASE":                    c.JobBackoffBase,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	if c.ETLPollInterval < time.Minute {
		return fmt.Errorf("ETL_POLL_INTERVAL must be at least 1m")
	}

	if c.AutomationEvalInterval < time.Minute {
		return fmt.Errorf("AUTOMATION_EVAL_INTERVAL must be at least 1m")
	}

	if c.WebhookRatePerMinute < 1 {
		return fmt.Errorf("WEBHOOK_RATE_LIMIT_PER_MINUTE must be at least 1")
	}

	if c.JobMaxAttempts < 1 || c.JobMaxAttempts > 20 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be between 1 and 20")
	}

	if c.JobHistoryLimit < 0 {
		return fmt.Errorf("JOB_HISTORY_LIMIT must not be negative")
	}

	if c.AuditRetentionDays < 1 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be at least 1")
	}

	return nil
}

// isLoopback reports whether host names the local machine.
func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
