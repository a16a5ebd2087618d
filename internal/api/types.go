package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/domain"
)

type CreateEventRequest struct {
	Name        string `json:"name"`
	StartTime   string `json:"start_time"` // RFC 3339
	RecipientID string `json:"recipient_id,omitempty"`
}

// UpdateEventRequest is a partial update; absent fields stay unchanged.
type UpdateEventRequest struct {
	Name        *string `json:"name,omitempty"`
	StartTime   *string `json:"start_time,omitempty"` // RFC 3339
	RecipientID *string `json:"recipient_id,omitempty"`
}

type CreateRecipientRequest struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

type EventResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StartTime   string `json:"start_time"`
	Notified    bool   `json:"notified"`
	RecipientID string `json:"recipient_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type RecipientResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
}

type ListRecipientsResponse struct {
	Recipients []RecipientResponse `json:"recipients"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func eventResponse(ev domain.Event) EventResponse {
	resp := EventResponse{
		ID:        ev.ID.String(),
		Name:      ev.Name,
		StartTime: formatTime(ev.StartTime),
		Notified:  ev.Notified,
		CreatedAt: formatTime(ev.CreatedAt),
		UpdatedAt: formatTime(ev.UpdatedAt),
	}
	if ev.RecipientID != uuid.Nil {
		resp.RecipientID = ev.RecipientID.String()
	}
	return resp
}

func recipientResponse(r domain.Recipient) RecipientResponse {
	return RecipientResponse{
		ID:       r.ID.String(),
		Name:     r.Name,
		Timezone: r.Timezone,
		Locale:   r.Locale,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
