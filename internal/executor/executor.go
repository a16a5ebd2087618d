// Package executor runs claimed reminder jobs and owns their state
// transitions: started on pickup, done on success or benign skip,
// pending again with a backed-off ETA on a retryable failure, failed
// once retries are exhausted.
package executor

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/domain"
)

// backoffSchedule spaces retry attempts; the last entry repeats.
var backoffSchedule = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
}

// Store is the job repository consumed by the executor. Implementations
// guard each transition on the expected current state so a job deleted
// or reclaimed mid-flight reports domain.ErrNotFound.
type Store interface {
	MarkStarted(ctx context.Context, jobID uuid.UUID) error
	MarkDone(ctx context.Context, jobID uuid.UUID) error
	// RescheduleRetry returns a failed attempt to pending with a new ETA
	// and increments the retry count.
	RescheduleRetry(ctx context.Context, jobID uuid.UUID, eta time.Time, lastError string) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, lastError string) error
}

// Action is the reminder logic executed per job.
type Action interface {
	Fire(ctx context.Context, fired domain.FiredJob) (domain.FireOutcome, error)
}

// AnalyticsSink records reminder outcomes as a best-effort side effect.
// Implementations handle their own errors; analytics never affects
// execution correctness.
type AnalyticsSink interface {
	RecordOutcome(ctx context.Context, outcome domain.FireOutcome, at time.Time)
}

// MetricsSink defines the interface for recording executor metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	FireOutcome(outcome string)
	RetryScheduled()
	JobsInFlightIncr()
	JobsInFlightDecr()
}

// DefaultDrainTimeout bounds how long shutdown waits for buffered jobs.
const DefaultDrainTimeout = 30 * time.Second

// Executor consumes fired jobs from the bus and executes them.
type Executor struct {
	store        Store
	action       Action
	clock        func() time.Time
	drainTimeout time.Duration
	analytics    AnalyticsSink // optional, nil = disabled
	metrics      MetricsSink   // optional, nil = disabled
}

// New creates a new Executor.
func New(store Store, action Action) *Executor {
	return &Executor{
		store:        store,
		action:       action,
		clock:        time.Now,
		drainTimeout: DefaultDrainTimeout,
	}
}

// WithDrainTimeout overrides the shutdown drain timeout.
func (e *Executor) WithDrainTimeout(d time.Duration) *Executor {
	e.drainTimeout = d
	return e
}

// WithAnalytics attaches an analytics sink to the executor.
func (e *Executor) WithAnalytics(sink AnalyticsSink) *Executor {
	e.analytics = sink
	return e
}

// WithMetrics attaches a metrics sink to the executor.
func (e *Executor) WithMetrics(sink MetricsSink) *Executor {
	e.metrics = sink
	return e
}

// Run processes jobs from the channel until ctx is cancelled, then drains
// remaining buffered jobs with a timeout.
func (e *Executor) Run(ctx context.Context, ch <-chan domain.FiredJob) {
	for {
		select {
		case <-ctx.Done():
			e.drain(ch)
			return
		case fired := <-ch:
			e.process(ctx, fired)
		}
	}
}

// drain processes buffered jobs after the shutdown signal. Uses a fresh
// context since the main one is already cancelled.
func (e *Executor) drain(ch <-chan domain.FiredJob) {
	drainCtx, cancel := context.WithTimeout(context.Background(), e.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			log.Printf("executor: drain timeout, processed %d jobs", count)
			return
		case fired, ok := <-ch:
			if !ok {
				log.Printf("executor: drain complete, processed %d jobs", count)
				return
			}
			e.process(drainCtx, fired)
			count++
		default:
			if count > 0 {
				log.Printf("executor: drain complete, processed %d jobs", count)
			}
			return
		}
	}
}

func (e *Executor) process(ctx context.Context, fired domain.FiredJob) {
	if e.metrics != nil {
		e.metrics.JobsInFlightIncr()
		defer e.metrics.JobsInFlightDecr()
	}

	if err := e.store.MarkStarted(ctx, fired.JobID); err != nil {
		// Deleted or reclaimed since the runner emitted it.
		log.Printf("executor: job=%s not startable: %v", fired.JobID, err)
		return
	}

	outcome, err := e.action.Fire(ctx, fired)
	if err == nil {
		if markErr := e.store.MarkDone(ctx, fired.JobID); markErr != nil {
			log.Printf("executor: job=%s mark done: %v", fired.JobID, markErr)
		}
		e.recordOutcome(ctx, outcome)
		return
	}

	log.Printf("executor: job=%s attempt=%d failed: %v", fired.JobID, fired.RetryCount+1, err)

	if fired.RetryCount >= fired.MaxRetries {
		if markErr := e.store.MarkFailed(ctx, fired.JobID, err.Error()); markErr != nil {
			log.Printf("executor: job=%s mark failed: %v", fired.JobID, markErr)
		}
		if e.metrics != nil {
			e.metrics.FireOutcome("failed")
		}
		log.Printf("executor: job=%s retries exhausted (%d), marked failed", fired.JobID, fired.MaxRetries)
		return
	}

	eta := e.clock().UTC().Add(backoff(fired.RetryCount))
	if markErr := e.store.RescheduleRetry(ctx, fired.JobID, eta, err.Error()); markErr != nil {
		log.Printf("executor: job=%s reschedule retry: %v", fired.JobID, markErr)
		return
	}
	if e.metrics != nil {
		e.metrics.RetryScheduled()
	}
	log.Printf("executor: job=%s retry %d/%d at %s", fired.JobID, fired.RetryCount+1, fired.MaxRetries, eta.Format(time.RFC3339))
}

func (e *Executor) recordOutcome(ctx context.Context, outcome domain.FireOutcome) {
	if e.metrics != nil {
		e.metrics.FireOutcome(string(outcome))
	}
	if e.analytics != nil {
		e.analytics.RecordOutcome(ctx, outcome, e.clock().UTC())
	}
}

// backoff returns the wait before the next attempt after retryCount
// completed failures.
func backoff(retryCount int) time.Duration {
	if retryCount >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[retryCount]
}
