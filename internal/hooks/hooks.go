// Package hooks glues event lifecycle transitions to the reconciliation
// engine. The hooks themselves are thin: create and scan reconcile as-is,
// update reconciles with force-recreate when the start time moved, and
// delete removes outstanding jobs before the events disappear.
package hooks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/djlord-it/easy-remind/internal/domain"
	"github.com/djlord-it/easy-remind/internal/identity"
	"github.com/djlord-it/easy-remind/internal/reconciler"
	"github.com/djlord-it/easy-remind/internal/window"
)

// Reconciler is the scheduling engine invoked by every hook.
type Reconciler interface {
	Reconcile(ctx context.Context, events []domain.Event, opts reconciler.Options) error
}

// JobStore removes deferred jobs by identity key when events are deleted.
type JobStore interface {
	DeleteByIdentity(ctx context.Context, keys []string, states []domain.JobState) (int64, error)
}

// EventStore selects events due for a reminder inside a time window.
type EventStore interface {
	DueUnnotified(ctx context.Context, start, end time.Time) ([]domain.Event, error)
}

// Hooks invokes the reconciliation engine on event lifecycle transitions
// and on the periodic scan.
type Hooks struct {
	engine Reconciler
	jobs   JobStore
	events EventStore
	clock  func() time.Time
}

// New creates lifecycle hooks around the given engine and stores.
func New(engine Reconciler, jobs JobStore, events EventStore) *Hooks {
	return &Hooks{
		engine: engine,
		jobs:   jobs,
		events: events,
		clock:  time.Now,
	}
}

// OnCreated schedules reminders for newly created events.
func (h *Hooks) OnCreated(ctx context.Context, events []domain.Event) error {
	return h.engine.Reconcile(ctx, events, reconciler.Options{})
}

// OnUpdated re-reconciles events after an update. startTimeChanged must be
// true when start_time was among the changed fields; in that case the
// store has already reset notified in the same statement, and any failed
// job is recreated so the new time gets a fresh attempt.
func (h *Hooks) OnUpdated(ctx context.Context, events []domain.Event, startTimeChanged bool) error {
	if !startTimeChanged {
		return nil
	}
	return h.engine.Reconcile(ctx, events, reconciler.Options{ForceRecreate: true})
}

// OnDeleting removes outstanding jobs before events are deleted. Started
// jobs are not touched: an in-flight execution is left to finish or fail
// on its own and self-skips at fire time.
func (h *Hooks) OnDeleting(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	keys := make([]string, len(events))
	for i, ev := range events {
		keys[i] = identity.Key(ev.ID)
	}

	n, err := h.jobs.DeleteByIdentity(ctx, keys, domain.RemovableStates)
	if err != nil {
		return fmt.Errorf("delete outstanding jobs: %w", err)
	}
	if n > 0 {
		log.Printf("hooks: removed %d outstanding jobs for %d deleted events", n, len(events))
	}
	return nil
}

// Scan selects events whose start time falls inside the current
// notification window and have not been notified, and reconciles them.
// Returns how many events were due.
func (h *Hooks) Scan(ctx context.Context) (int, error) {
	start, end := window.Notification(h.clock().UTC())

	events, err := h.events.DueUnnotified(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("select due events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}
	return len(events), h.engine.Reconcile(ctx, events, reconciler.Options{})
}
