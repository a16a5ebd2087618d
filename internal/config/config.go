package config

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/djlord-it/easy-remind/internal/leaderelection"
)

// Config holds all configuration for the easyremind application.
// Values are loaded from environment variables.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	// ScanSchedule is a cron expression ("*/5 * * * *") or descriptor
	// ("@every 5m") driving the periodic reminder scan.
	ScanSchedule string `json:"scan_schedule"`
	ScanTimezone string `json:"scan_timezone"`

	MessageWebhookURL  string `json:"message_webhook_url"`
	FollowUpWebhookURL string `json:"followup_webhook_url,omitempty"`
	WebhookSecret      string `json:"webhook_secret"`

	WebhookTimeout    time.Duration `json:"-"`
	WebhookTimeoutStr string        `json:"webhook_timeout"`

	// FallbackRecipientID receives reminders for events without an
	// assigned recipient. Empty disables the fallback.
	FallbackRecipientID string `json:"fallback_recipient_id,omitempty"`
	DefaultLocale       string `json:"default_locale"`
	DefaultTimezone     string `json:"default_timezone"`

	PollInterval    time.Duration `json:"-"`
	PollIntervalStr string        `json:"poll_interval"`

	RunnerBatchSize int `json:"runner_batch_size"`

	// StaleThreshold must exceed the longest expected job execution.
	StaleThreshold    time.Duration `json:"-"`
	StaleThresholdStr string        `json:"stale_threshold"`

	ExecutorDrainTimeout    time.Duration `json:"-"`
	ExecutorDrainTimeoutStr string        `json:"executor_drain_timeout"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		ScanSchedule:               os.Getenv("SCAN_SCHEDULE"),
		ScanTimezone:               os.Getenv("SCAN_TIMEZONE"),
		MessageWebhookURL:          os.Getenv("MESSAGE_WEBHOOK_URL"),
		FollowUpWebhookURL:         os.Getenv("FOLLOWUP_WEBHOOK_URL"),
		WebhookSecret:              os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeoutStr:          os.Getenv("WEBHOOK_TIMEOUT"),
		FallbackRecipientID:        os.Getenv("FALLBACK_RECIPIENT_ID"),
		DefaultLocale:              os.Getenv("DEFAULT_LOCALE"),
		DefaultTimezone:            os.Getenv("DEFAULT_TIMEZONE"),
		PollIntervalStr:            os.Getenv("POLL_INTERVAL"),
		StaleThresholdStr:          os.Getenv("STALE_THRESHOLD"),
		ExecutorDrainTimeoutStr:    os.Getenv("EXECUTOR_DRAIN_TIMEOUT"),
		CircuitBreakerCooldownStr:  os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		DBOpTimeoutStr:             os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
	}

	if batchStr := os.Getenv("RUNNER_BATCH_SIZE"); batchStr != "" {
		if n, err := parseInt(batchStr); err == nil && n > 0 {
			cfg.RunnerBatchSize = n
		} else {
			log.Printf("config: invalid RUNNER_BATCH_SIZE %q (must be a positive integer), using default 100", batchStr)
		}
	}
	if cfg.RunnerBatchSize == 0 {
		cfg.RunnerBatchSize = 100
	}

	if bufStr := os.Getenv("EVENTBUS_BUFFER_SIZE"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.EventBusBufferSize = n
		} else {
			log.Printf("config: invalid EVENTBUS_BUFFER_SIZE %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.EventBusBufferSize == 0 {
		cfg.EventBusBufferSize = 100
	}

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	} else {
		cfg.CircuitBreakerThreshold = 5
	}

	if lockKeyStr := os.Getenv("LEADER_LOCK_KEY"); lockKeyStr != "" {
		if n, err := parseInt(lockKeyStr); err == nil && n > 0 {
			cfg.LeaderLockKey = int64(n)
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default", lockKeyStr)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = leaderelection.DefaultLockKey
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.ScanSchedule == "" {
		cfg.ScanSchedule = "@every 5m"
	}
	if cfg.ScanTimezone == "" {
		cfg.ScanTimezone = "UTC"
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en_US"
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	if cfg.WebhookTimeoutStr == "" {
		cfg.WebhookTimeoutStr = "30s"
	}
	if cfg.PollIntervalStr == "" {
		cfg.PollIntervalStr = "5s"
	}
	if cfg.StaleThresholdStr == "" {
		cfg.StaleThresholdStr = "10m"
	}
	if cfg.ExecutorDrainTimeoutStr == "" {
		cfg.ExecutorDrainTimeoutStr = "30s"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.WebhookTimeoutStr); err == nil {
		cfg.WebhookTimeout = d
	}
	if d, err := time.ParseDuration(cfg.PollIntervalStr); err == nil {
		cfg.PollInterval = d
	}
	if d, err := time.ParseDuration(cfg.StaleThresholdStr); err == nil {
		cfg.StaleThreshold = d
	}
	if d, err := time.ParseDuration(cfg.ExecutorDrainTimeoutStr); err == nil {
		cfg.ExecutorDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL             string `json:"database_url"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		HTTPAddr                string `json:"http_addr"`
		ScanSchedule            string `json:"scan_schedule"`
		ScanTimezone            string `json:"scan_timezone"`
		MessageWebhookURL       string `json:"message_webhook_url"`
		FollowUpWebhookURL      string `json:"followup_webhook_url,omitempty"`
		WebhookSecret           string `json:"webhook_secret"`
		WebhookTimeout          string `json:"webhook_timeout"`
		FallbackRecipientID     string `json:"fallback_recipient_id,omitempty"`
		DefaultLocale           string `json:"default_locale"`
		DefaultTimezone         string `json:"default_timezone"`
		PollInterval            string `json:"poll_interval"`
		RunnerBatchSize         int    `json:"runner_batch_size"`
		StaleThreshold          string `json:"stale_threshold"`
		ExecutorDrainTimeout    string `json:"executor_drain_timeout"`
		EventBusBufferSize      int    `json:"eventbus_buffer_size"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
	}{
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		HTTPAddr:                c.HTTPAddr,
		ScanSchedule:            c.ScanSchedule,
		ScanTimezone:            c.ScanTimezone,
		MessageWebhookURL:       c.MessageWebhookURL,
		FollowUpWebhookURL:      c.FollowUpWebhookURL,
		WebhookSecret:           maskSecret(c.WebhookSecret),
		WebhookTimeout:          c.WebhookTimeoutStr,
		FallbackRecipientID:     c.FallbackRecipientID,
		DefaultLocale:           c.DefaultLocale,
		DefaultTimezone:         c.DefaultTimezone,
		PollInterval:            c.PollIntervalStr,
		RunnerBatchSize:         c.RunnerBatchSize,
		StaleThreshold:          c.StaleThresholdStr,
		ExecutorDrainTimeout:    c.ExecutorDrainTimeoutStr,
		EventBusBufferSize:      c.EventBusBufferSize,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
