// Package circuitbreaker keeps the messenger from hammering a dead
// destination. Each destination URL gets its own breaker: closed while
// healthy, open after a run of consecutive failures, and half-open after
// the cooldown, when a single probe request is let through.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while a destination's circuit is open.
var ErrOpen = errors.New("circuit breaker open for destination")

type phase int

const (
	phaseClosed phase = iota
	phaseOpen
	phaseHalfOpen
)

type destination struct {
	phase         phase
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

// Breaker tracks per-destination failure runs.
type Breaker struct {
	mu           sync.Mutex
	destinations map[string]*destination
	threshold    int
	cooldown     time.Duration
	clock        func() time.Time
}

// New creates a Breaker that opens a destination after threshold
// consecutive failures and probes it again after cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		destinations: make(map[string]*destination),
		threshold:    threshold,
		cooldown:     cooldown,
		clock:        time.Now,
	}
}

// Allow reports whether a request to dest may proceed. In half-open
// phase exactly one probe is admitted; everything else gets ErrOpen
// until the probe settles.
func (b *Breaker) Allow(dest string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.destinations[dest]
	if !ok {
		return nil
	}

	switch d.phase {
	case phaseClosed:
		return nil
	case phaseOpen:
		if b.clock().Sub(d.openedAt) < b.cooldown {
			return ErrOpen
		}
		d.phase = phaseHalfOpen
		d.probeInFlight = true
		return nil
	case phaseHalfOpen:
		if d.probeInFlight {
			return ErrOpen
		}
		d.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the circuit for dest.
func (b *Breaker) RecordSuccess(dest string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.destinations[dest]
	if !ok {
		return
	}
	d.phase = phaseClosed
	d.failures = 0
	d.probeInFlight = false
}

// RecordFailure counts a failure for dest, opening the circuit once the
// threshold is reached. A failed half-open probe reopens immediately.
func (b *Breaker) RecordFailure(dest string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.destinations[dest]
	if !ok {
		d = &destination{}
		b.destinations[dest] = d
	}

	if d.phase == phaseHalfOpen {
		d.phase = phaseOpen
		d.openedAt = b.clock()
		d.probeInFlight = false
		return
	}

	d.failures++
	if d.failures >= b.threshold {
		d.phase = phaseOpen
		d.openedAt = b.clock()
	}
}
