// Package channel provides the in-memory bus carrying fired jobs from
// the runner to the executor.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/djlord-it/easy-remind/internal/domain"
)

// ErrBufferFull is returned when an emit times out on a saturated buffer.
// The job stays enqueued in the store and is recovered by the stale
// requeue, so dropping here loses nothing.
var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink defines the interface for recording bus metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()
}

// Option configures the bus.
type Option func(*EventBus)

// WithEmitTimeout bounds how long Emit blocks on a full buffer.
// Zero (the default) blocks until ctx is cancelled.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) { b.emitTimeout = d }
}

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *EventBus) { b.metrics = sink }
}

// EventBus is a buffered channel with emit semantics.
type EventBus struct {
	ch          chan domain.FiredJob
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled
}

// NewEventBus creates a bus with the given buffer capacity.
func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch: make(chan domain.FiredJob, buffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit places a fired job on the bus. Blocks while the buffer is full,
// up to the emit timeout when one is configured.
func (b *EventBus) Emit(ctx context.Context, fired domain.FiredJob) error {
	var timeout <-chan time.Time
	if b.emitTimeout > 0 {
		timer := time.NewTimer(b.emitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b.ch <- fired:
		if b.metrics != nil {
			b.metrics.BufferSizeUpdate(len(b.ch))
		}
		return nil
	case <-timeout:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ctx.Err()
	}
}

// Channel exposes the consuming side of the bus.
func (b *EventBus) Channel() <-chan domain.FiredJob {
	return b.ch
}
