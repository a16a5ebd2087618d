package domain

import (
	"time"

	"github.com/google/uuid"
)

// FiredJob is emitted when a due deferred job has been claimed for
// execution and handed to the executor.
type FiredJob struct {
	JobID       uuid.UUID
	EventID     uuid.UUID
	IdentityKey string
	Context     ExecContext
	RetryCount  int
	MaxRetries  int
	ClaimedAt   time.Time
}

// FireOutcome classifies what the reminder action did when it ran.
type FireOutcome string

const (
	// OutcomeSent: message and follow-up task were emitted.
	OutcomeSent FireOutcome = "sent"
	// OutcomeAlreadySent: the event was already notified; no effect.
	OutcomeAlreadySent FireOutcome = "already_sent"
	// OutcomeStale: the event start fell outside the relevance window
	// by the time the job ran; skipped without marking notified.
	OutcomeStale FireOutcome = "stale"
	// OutcomeOrphaned: the event no longer exists.
	OutcomeOrphaned FireOutcome = "orphaned"
	// OutcomeNoRecipient: neither the event's recipient nor the fallback
	// could be resolved; skipped silently.
	OutcomeNoRecipient FireOutcome = "no_recipient"
)
