package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Event is a scheduled occurrence that gets a one-time reminder shortly
// before its start time.
type Event struct {
	ID        uuid.UUID
	Name      string
	StartTime time.Time

	// Notified flips false->true exactly once per start time. Whenever
	// StartTime changes, the store resets Notified in the same statement.
	Notified bool

	// RecipientID is the responsible recipient; uuid.Nil when unassigned.
	RecipientID uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventPatch is a partial event update; nil fields are left unchanged.
type EventPatch struct {
	Name        *string
	StartTime   *time.Time
	RecipientID *uuid.UUID
}

// Recipient is who a reminder is addressed to.
type Recipient struct {
	ID       uuid.UUID
	Name     string
	Timezone string
	Locale   string
}
