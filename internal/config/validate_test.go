package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DatabaseURL:       "postgres://localhost/remind",
		MessageWebhookURL: "https://hooks.example.com/remind",
		ScanSchedule:      "@every 5m",
		ScanTimezone:      "UTC",
		DefaultTimezone:   "UTC",
		PollIntervalStr:   "5s",
		PollInterval:      5 * time.Second,
		StaleThreshold:    10 * time.Minute,
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate returned error for valid config: %v", err)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.MessageWebhookURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(errs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(errs), errs)
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error should name DATABASE_URL: %v", err)
	}
	if !strings.Contains(err.Error(), "MESSAGE_WEBHOOK_URL") {
		t.Errorf("error should name MESSAGE_WEBHOOK_URL: %v", err)
	}
}

func TestValidate_BadScanSchedule(t *testing.T) {
	cfg := validConfig()
	cfg.ScanSchedule = "not a cron"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "SCAN_SCHEDULE") {
		t.Errorf("expected SCAN_SCHEDULE error, got %v", err)
	}
}

func TestValidate_BadFallbackRecipient(t *testing.T) {
	cfg := validConfig()
	cfg.FallbackRecipientID = "not-a-uuid"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "FALLBACK_RECIPIENT_ID") {
		t.Errorf("expected FALLBACK_RECIPIENT_ID error, got %v", err)
	}
}

func TestValidate_StaleThresholdMustExceedPoll(t *testing.T) {
	cfg := validConfig()
	cfg.PollInterval = time.Minute
	cfg.StaleThreshold = time.Minute

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "STALE_THRESHOLD") {
		t.Errorf("expected STALE_THRESHOLD error, got %v", err)
	}
}

func TestValidate_UnknownDefaultTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultTimezone = "Mars/Olympus"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "DEFAULT_TIMEZONE") {
		t.Errorf("expected DEFAULT_TIMEZONE error, got %v", err)
	}
}
