// Package reconciler decides, for a batch of events, whether a reminder
// job must be created, rescheduled, recreated, or left alone.
//
// The engine never trusts its own read: the store enforces at most one
// ongoing job per identity key, so a duplicate-identity error on create
// means another reconciliation won the race between our read and our
// insert. That is a benign no-op, not a failure.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/domain"
	"github.com/djlord-it/easy-remind/internal/identity"
	"github.com/djlord-it/easy-remind/internal/window"
)

// Creation parameters fixed for all reminder jobs.
const (
	JobPriority   = 5
	JobMaxRetries = 6
)

// JobStore is the deferred-job repository consumed by the engine.
// The engine only reads jobs and issues create/update/delete commands;
// the store owns the records and the identity-key uniqueness invariant.
type JobStore interface {
	// FindOngoing returns jobs in an ongoing state whose identity key is
	// in keys. Must be a single round-trip regardless of batch size.
	FindOngoing(ctx context.Context, keys []string) ([]domain.DeferredJob, error)

	// Create inserts a new deferred job. Returns domain.ErrDuplicateIdentity
	// when an ongoing job with the same identity key already exists.
	Create(ctx context.Context, spec domain.DeferredJobSpec) (domain.DeferredJob, error)

	UpdateETA(ctx context.Context, jobID uuid.UUID, eta time.Time) error
	Delete(ctx context.Context, jobID uuid.UUID) error
}

// ContextResolver resolves the execution context (locale, timezone) a
// job's notification will run under. Resolved once at submission time.
type ContextResolver interface {
	ExecContext(ctx context.Context, event domain.Event) (domain.ExecContext, error)
}

// MetricsSink defines the interface for recording reconcile metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	ReconcileAction(action string)
}

// Action constants for the ReconcileAction metric.
const (
	ActionScheduled   = "scheduled"
	ActionRescheduled = "rescheduled"
	ActionRecreated   = "recreated"
	ActionSkipped     = "skipped"
	ActionDuplicate   = "duplicate"
)

// Options alter a reconciliation pass.
type Options struct {
	// ForceRecreate deletes a failed job and schedules a fresh one in its
	// place. Used after an event's start time changed.
	ForceRecreate bool
}

// Engine reconciles the desired schedule state of events against the jobs
// the store currently holds for their identity keys.
type Engine struct {
	jobs     JobStore
	resolver ContextResolver
	clock    func() time.Time
	metrics  MetricsSink // optional, nil = disabled
}

// New creates a new Engine.
func New(jobs JobStore, resolver ContextResolver) *Engine {
	return &Engine{
		jobs:     jobs,
		resolver: resolver,
		clock:    time.Now,
	}
}

// WithMetrics attaches a metrics sink to the engine.
func (e *Engine) WithMetrics(sink MetricsSink) *Engine {
	e.metrics = sink
	return e
}

// Reconcile brings the deferred jobs for the given events in line with
// their start times. Identity keys are computed up front and existing
// jobs fetched in one query; a failure on one event does not abort the
// rest. The aggregate of per-event failures is returned at the end.
func (e *Engine) Reconcile(ctx context.Context, events []domain.Event, opts Options) error {
	if len(events) == 0 {
		return nil
	}

	keys := make([]string, 0, len(events))
	byKey := make(map[string]domain.Event, len(events))
	for _, ev := range events {
		key := identity.Key(ev.ID)
		if _, dup := byKey[key]; dup {
			continue
		}
		keys = append(keys, key)
		byKey[key] = ev
	}

	ongoing, err := e.jobs.FindOngoing(ctx, keys)
	if err != nil {
		return fmt.Errorf("find ongoing jobs: %w", err)
	}

	jobsByKey := make(map[string]domain.DeferredJob, len(ongoing))
	for _, job := range ongoing {
		jobsByKey[job.IdentityKey] = job
	}

	var errs []error
	for _, key := range keys {
		if err := e.reconcileOne(ctx, key, byKey[key], jobsByKey, opts); err != nil {
			log.Printf("reconciler: event=%s error: %v", byKey[key].ID, err)
			errs = append(errs, fmt.Errorf("event %s: %w", byKey[key].ID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) reconcileOne(ctx context.Context, key string, ev domain.Event, jobsByKey map[string]domain.DeferredJob, opts Options) error {
	job, found := jobsByKey[key]
	if found {
		switch {
		case job.State == domain.JobStateFailed && opts.ForceRecreate:
			// Clear the failed job so a fresh one can take over the key.
			if err := e.jobs.Delete(ctx, job.ID); err != nil {
				return fmt.Errorf("delete failed job: %w", err)
			}

		case job.State == domain.JobStatePending:
			// Same job, possibly new ETA. Never create a second one.
			eta := window.ETA(ev.StartTime, e.clock().UTC())
			if job.ETA.Equal(eta) {
				e.record(ActionSkipped)
				return nil
			}
			if err := e.jobs.UpdateETA(ctx, job.ID, eta); err != nil {
				return fmt.Errorf("update eta: %w", err)
			}
			e.record(ActionRescheduled)
			log.Printf("reconciler: rescheduled job=%s event=%s eta=%s", job.ID, ev.ID, eta.Format(time.RFC3339))
			return nil

		default:
			// Enqueued, waiting, started, or failed without force: the
			// job is either in flight or needs operator attention.
			e.record(ActionSkipped)
			return nil
		}
	}

	return e.schedule(ctx, key, ev, found)
}

// schedule submits a new reminder job for the event. recreated marks the
// force-recreate path where a failed job was just deleted.
func (e *Engine) schedule(ctx context.Context, key string, ev domain.Event, recreated bool) error {
	if ev.Notified {
		// Callers filter notified events already; tolerated here.
		e.record(ActionSkipped)
		return nil
	}

	execCtx, err := e.resolver.ExecContext(ctx, ev)
	if err != nil {
		return fmt.Errorf("resolve execution context: %w", err)
	}

	spec := domain.DeferredJobSpec{
		IdentityKey: key,
		EventID:     ev.ID,
		ETA:         window.ETA(ev.StartTime, e.clock().UTC()),
		Priority:    JobPriority,
		MaxRetries:  JobMaxRetries,
		Description: "Reminder for " + ev.Name,
		Context:     execCtx,
	}

	if _, err := e.jobs.Create(ctx, spec); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			// Lost the race to a concurrent reconciliation.
			e.record(ActionDuplicate)
			return nil
		}
		return fmt.Errorf("create job: %w", err)
	}

	if recreated {
		e.record(ActionRecreated)
	} else {
		e.record(ActionScheduled)
	}
	log.Printf("reconciler: scheduled event=%s eta=%s", ev.ID, spec.ETA.Format(time.RFC3339))
	return nil
}

func (e *Engine) record(action string) {
	if e.metrics != nil {
		e.metrics.ReconcileAction(action)
	}
}
