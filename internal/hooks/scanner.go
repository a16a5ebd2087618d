package hooks

import (
	"context"
	"log"
	"time"
)

// Schedule yields the next scan time after a given instant. Satisfied by
// the internal/cron wrapper.
type Schedule interface {
	Next(after time.Time) time.Time
}

// MetricsSink defines the interface for recording scan metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	ScanStarted()
	ScanCompleted(duration time.Duration, eventsDue int, err error)
}

// Scanner runs the periodic scan on a cron schedule. Scheduling failures
// never surface beyond the log here: the next cycle retries on its own.
type Scanner struct {
	hooks    *Hooks
	schedule Schedule
	clock    func() time.Time
	metrics  MetricsSink // optional, nil = disabled
}

// NewScanner creates a Scanner driving hooks.Scan on the given schedule.
func NewScanner(h *Hooks, schedule Schedule) *Scanner {
	return &Scanner{
		hooks:    h,
		schedule: schedule,
		clock:    time.Now,
	}
}

// WithMetrics attaches a metrics sink to the scanner.
func (s *Scanner) WithMetrics(sink MetricsSink) *Scanner {
	s.metrics = sink
	return s
}

// Run blocks until ctx is cancelled, scanning at each schedule firing.
func (s *Scanner) Run(ctx context.Context) {
	log.Println("scanner: started")

	for {
		now := s.clock()
		next := s.schedule.Next(now)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			log.Println("scanner: stopped")
			return
		case <-timer.C:
		}

		s.scanOnce(ctx)
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.ScanStarted()
	}
	started := s.clock()

	due, err := s.hooks.Scan(ctx)

	if s.metrics != nil {
		s.metrics.ScanCompleted(s.clock().Sub(started), due, err)
	}
	if err != nil {
		log.Printf("scanner: scan error: %v", err)
		return
	}
	if due > 0 {
		log.Printf("scanner: reconciled %d due events", due)
	}
}
