package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Scanner metrics
	ScanStarted()
	ScanCompleted(duration time.Duration, eventsDue int, err error)

	// Reconciler metrics
	ReconcileAction(action string)

	// Runner metrics
	JobsClaimed(count int)
	StaleJobsRequeued(count int)

	// Executor metrics
	FireOutcome(outcome string)
	RetryScheduled()
	JobsInFlightIncr()
	JobsInFlightDecr()

	// EventBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}
