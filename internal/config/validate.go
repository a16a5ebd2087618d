package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/cron"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	if cfg.MessageWebhookURL == "" {
		errs = append(errs, ValidationError{
			Field:   "MESSAGE_WEBHOOK_URL",
			Message: "required",
		})
	}

	if _, err := cron.NewParser().Parse(cfg.ScanSchedule, cfg.ScanTimezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "SCAN_SCHEDULE",
			Message: err.Error(),
		})
	}

	if cfg.FallbackRecipientID != "" {
		if _, err := uuid.Parse(cfg.FallbackRecipientID); err != nil {
			errs = append(errs, ValidationError{
				Field:   "FALLBACK_RECIPIENT_ID",
				Message: fmt.Sprintf("not a UUID: %v", err),
			})
		}
	}

	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "DEFAULT_TIMEZONE",
			Message: fmt.Sprintf("unknown timezone: %v", err),
		})
	}

	if cfg.PollIntervalStr != "" {
		if d, err := time.ParseDuration(cfg.PollIntervalStr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "POLL_INTERVAL",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "POLL_INTERVAL",
				Message: "must be positive",
			})
		}
	}

	if cfg.StaleThreshold > 0 && cfg.StaleThreshold <= cfg.PollInterval {
		errs = append(errs, ValidationError{
			Field:   "STALE_THRESHOLD",
			Message: "must exceed POLL_INTERVAL",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
