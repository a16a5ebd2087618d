// Package runner claims due deferred jobs from the store and hands them
// to the executor over the event bus. Claiming flips a job from pending
// to enqueued in the same statement, so two runners polling the same
// store never pick up the same job.
package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/djlord-it/easy-remind/internal/domain"
)

// Store is the job repository consumed by the runner.
type Store interface {
	// ClaimDue atomically moves due pending jobs to enqueued and returns
	// them ordered by priority, then ETA. limit caps the batch.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.DeferredJob, error)

	// RequeueStale returns enqueued or started jobs that have not moved
	// since olderThan back to pending. Recovers jobs lost to a crash
	// between claim and completion; the fire-time guards make the
	// resulting re-execution safe.
	RequeueStale(ctx context.Context, olderThan time.Time, limit int) (int64, error)
}

// Emitter hands claimed jobs to the executor.
type Emitter interface {
	Emit(ctx context.Context, fired domain.FiredJob) error
}

// MetricsSink defines the interface for recording runner metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	JobsClaimed(count int)
	StaleJobsRequeued(count int)
}

// Config holds runner configuration.
type Config struct {
	// PollInterval is how often due jobs are claimed. Default: 5s.
	PollInterval time.Duration

	// BatchSize caps how many jobs one poll claims. Default: 100.
	BatchSize int

	// StaleThreshold is the age after which an enqueued/started job is
	// considered lost and requeued. Must exceed the longest expected
	// execution. Default: 10 minutes.
	StaleThreshold time.Duration
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		BatchSize:      100,
		StaleThreshold: 10 * time.Minute,
	}
}

// Runner polls for due jobs and emits them for execution.
type Runner struct {
	config  Config
	store   Store
	emitter Emitter
	clock   func() time.Time
	metrics MetricsSink // optional, nil = disabled
}

// New creates a new Runner.
func New(config Config, store Store, emitter Emitter) *Runner {
	return &Runner{
		config:  config,
		store:   store,
		emitter: emitter,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink to the runner.
func (r *Runner) WithMetrics(sink MetricsSink) *Runner {
	r.metrics = sink
	return r
}

// Run polls until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	log.Printf("runner: started (poll=%s, batch=%d, stale_threshold=%s)",
		r.config.PollInterval, r.config.BatchSize, r.config.StaleThreshold)

	for {
		select {
		case <-ctx.Done():
			log.Println("runner: stopped")
			return
		case <-ticker.C:
			if err := r.pollOnce(ctx); err != nil {
				log.Printf("runner: poll error: %v", err)
			}
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context) error {
	now := r.clock().UTC()

	requeued, err := r.store.RequeueStale(ctx, now.Add(-r.config.StaleThreshold), r.config.BatchSize)
	if err != nil {
		log.Printf("runner: requeue stale jobs: %v", err)
	} else if requeued > 0 {
		log.Printf("runner: requeued %d stale jobs", requeued)
		if r.metrics != nil {
			r.metrics.StaleJobsRequeued(int(requeued))
		}
	}

	jobs, err := r.store.ClaimDue(ctx, now, r.config.BatchSize)
	if err != nil {
		return fmt.Errorf("claim due jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	if r.metrics != nil {
		r.metrics.JobsClaimed(len(jobs))
	}

	for _, job := range jobs {
		fired := domain.FiredJob{
			JobID:       job.ID,
			EventID:     job.EventID,
			IdentityKey: job.IdentityKey,
			Context:     job.Context,
			RetryCount:  job.RetryCount,
			MaxRetries:  job.MaxRetries,
			ClaimedAt:   now,
		}
		if err := r.emitter.Emit(ctx, fired); err != nil {
			// The job stays enqueued; the stale requeue recovers it.
			log.Printf("runner: emit job=%s: %v", job.ID, err)
			continue
		}
	}

	log.Printf("runner: claimed %d due jobs", len(jobs))
	return nil
}
