package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func validateCreateEvent(req CreateEventRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if req.StartTime == "" {
		return fmt.Errorf("start_time is required")
	}
	if _, err := time.Parse(time.RFC3339, req.StartTime); err != nil {
		return fmt.Errorf("invalid start_time: %w", err)
	}
	if req.RecipientID != "" {
		if _, err := uuid.Parse(req.RecipientID); err != nil {
			return fmt.Errorf("invalid recipient_id: %w", err)
		}
	}
	return nil
}

func validateUpdateEvent(req UpdateEventRequest) error {
	if req.Name == nil && req.StartTime == nil && req.RecipientID == nil {
		return fmt.Errorf("no fields to update")
	}
	if req.Name != nil && *req.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if req.StartTime != nil {
		if _, err := time.Parse(time.RFC3339, *req.StartTime); err != nil {
			return fmt.Errorf("invalid start_time: %w", err)
		}
	}
	if req.RecipientID != nil && *req.RecipientID != "" {
		if _, err := uuid.Parse(*req.RecipientID); err != nil {
			return fmt.Errorf("invalid recipient_id: %w", err)
		}
	}
	return nil
}

func validateCreateRecipient(req CreateRecipientRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return nil
}
