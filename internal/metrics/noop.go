package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) ScanStarted()                                                   {}
func (n *NoopSink) ScanCompleted(duration time.Duration, eventsDue int, err error) {}
func (n *NoopSink) ReconcileAction(action string)                                  {}
func (n *NoopSink) JobsClaimed(count int)                                          {}
func (n *NoopSink) StaleJobsRequeued(count int)                                    {}
func (n *NoopSink) FireOutcome(outcome string)                                     {}
func (n *NoopSink) RetryScheduled()                                                {}
func (n *NoopSink) JobsInFlightIncr()                                              {}
func (n *NoopSink) JobsInFlightDecr()                                              {}
func (n *NoopSink) BufferSizeUpdate(size int)                                      {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                 {}
func (n *NoopSink) EmitError()                                                     {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                              {}
func (n *NoopSink) LeaderAcquired()                                                {}
func (n *NoopSink) LeaderLost(reason string)                                       {}
