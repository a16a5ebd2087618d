package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateIdentity is returned by the store when an ongoing job with
// the same identity key already exists. Callers treat it as "someone else
// already scheduled it", never as a failure.
var ErrDuplicateIdentity = errors.New("ongoing job with identity key already exists")

type JobState string

const (
	JobStatePending  JobState = "pending"
	JobStateEnqueued JobState = "enqueued"
	JobStateWaiting  JobState = "waiting"
	JobStateStarted  JobState = "started"
	JobStateDone     JobState = "done"
	JobStateFailed   JobState = "failed"
)

// OngoingStates are the states during which a job still holds its identity
// key. The store enforces at most one job per identity key across them.
var OngoingStates = []JobState{
	JobStatePending,
	JobStateEnqueued,
	JobStateWaiting,
	JobStateFailed,
	JobStateStarted,
}

// RemovableStates are the states a job may be deleted from when its event
// goes away. A started job is left to finish or fail on its own.
var RemovableStates = []JobState{
	JobStatePending,
	JobStateEnqueued,
	JobStateWaiting,
	JobStateFailed,
}

// ExecContext carries per-job execution settings resolved once at
// submission time. It is never re-resolved at fire time.
type ExecContext struct {
	Locale   string
	Timezone string
}

// DeferredJob is a scheduled future invocation of the reminder action.
type DeferredJob struct {
	ID          uuid.UUID
	IdentityKey string
	EventID     uuid.UUID
	State       JobState
	ETA         time.Time
	Priority    int
	MaxRetries  int

	// RetryCount counts unsuccessful attempts completed so far.
	RetryCount int

	Description string
	Context     ExecContext
	LastError   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeferredJobSpec is a job creation request.
type DeferredJobSpec struct {
	IdentityKey string
	EventID     uuid.UUID
	ETA         time.Time
	Priority    int
	MaxRetries  int
	Description string
	Context     ExecContext
}
