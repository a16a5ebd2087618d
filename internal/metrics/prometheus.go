package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scanner metrics
	scansTotal      prometheus.Counter
	scanErrorsTotal prometheus.Counter
	eventsDueTotal  prometheus.Counter
	scanDuration    prometheus.Histogram

	// Reconciler metrics
	reconcileActionsTotal *prometheus.CounterVec

	// Runner metrics
	jobsClaimedTotal   prometheus.Counter
	staleRequeuedTotal prometheus.Counter

	// Executor metrics
	fireOutcomesTotal     *prometheus.CounterVec
	retriesScheduledTotal prometheus.Counter
	jobsInFlight          prometheus.Gauge

	// EventBus metrics
	bufferSize      prometheus.Gauge
	bufferCapacity  prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Leader election metrics
	leaderStatus        prometheus.Gauge
	leaderAcquiredTotal prometheus.Counter
	leaderLostTotal     *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initScannerMetrics(reg)
	s.initReconcilerMetrics(reg)
	s.initRunnerMetrics(reg)
	s.initExecutorMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initScannerMetrics(reg prometheus.Registerer) {
	s.scansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyremind_scanner_scans_total",
		Help: "Total number of reminder scans executed.",
	})
	s.scanErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyremind_scanner_scan_errors_total",
		Help: "Total number of scans that ended with an error.",
	})
	s.eventsDueTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyremind_scanner_events_due_total",
		Help: "Total number of events found inside the notification window.",
	})
	s.scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easyremind_scanner_scan_duration_seconds",
		Help:    "Duration of each reminder scan in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	s.register(reg, s.scansTotal, "easyremind_scanner_scans_total")
	s.register(reg, s.scanErrorsTotal, "easyremind_scanner_scan_errors_total")
	s.register(reg, s.eventsDueTotal, "easyremind_scanner_events_due_total")
	s.register(reg, s.scanDuration, "easyremind_scanner_scan_duration_seconds")
}

func (s *PrometheusSink) initReconcilerMetrics(reg prometheus.Registerer) {
	s.reconcileActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easyremind_reconciler_actions_total",
		Help: "Total reconcile decisions per action.",
	}, []string{"action"})

	s.register(reg, s.reconcileActionsTotal, "easyremind_reconciler_actions_total")
}

func (s *PrometheusSink) initRunnerMetrics(reg prometheus.Registerer) {
	s.jobsClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyremind_runner_jobs_claimed_total",
		Help: "Total number of due jobs claimed for execution.",
	})
	s.staleRequeuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyremind_runner_stale_jobs_requeued_total",
		Help: "Total number of stuck jobs returned to pending.",
	})

	s.register(reg, s.jobsClaimedTotal, "easyremind_runner_jobs_claimed_total")
	s.register(reg, s.staleRequeuedTotal, "easyremind_runner_stale_jobs_requeued_total")
}

func (s *PrometheusSink) initExecutorMetrics(reg prometheus.Registerer) {
	s.fireOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easyremind_executor_fire_outcomes_total",
		Help: "Total reminder fire outcomes per class.",
	}, []string{"outcome"})

	s.retriesScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyremind_executor_retries_scheduled_total",
		Help: "Total number of retries scheduled after failed attempts.",
	})

	s.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easyremind_executor_jobs_in_flight",
		Help: "Number of reminder jobs currently executing.",
	})

	s.register(reg, s.fireOutcomesTotal, "easyremind_executor_fire_outcomes_total")
	s.register(reg, s.retriesScheduledTotal, "easyremind_executor_retries_scheduled_total")
	s.register(reg, s.jobsInFlight, "easyremind_executor_jobs_in_flight")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easyremind_eventbus_buffer_size",
		Help: "Current number of fired jobs in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easyremind_eventbus_buffer_capacity",
		Help: "Configured capacity of the event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyremind_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full or cancelled).",
	})

	s.register(reg, s.bufferSize, "easyremind_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "easyremind_eventbus_buffer_capacity")
	s.register(reg, s.emitErrorsTotal, "easyremind_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easyremind_leader_status",
		Help: "1 when this instance holds leadership, 0 otherwise.",
	})
	s.leaderAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyremind_leader_acquired_total",
		Help: "Total number of times leadership was acquired.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easyremind_leader_lost_total",
		Help: "Total number of times leadership was lost, per reason.",
	}, []string{"reason"})

	s.register(reg, s.leaderStatus, "easyremind_leader_status")
	s.register(reg, s.leaderAcquiredTotal, "easyremind_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "easyremind_leader_lost_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scanner metrics implementation

func (s *PrometheusSink) ScanStarted() {
	s.scansTotal.Inc()
}

func (s *PrometheusSink) ScanCompleted(duration time.Duration, eventsDue int, err error) {
	s.scanDuration.Observe(duration.Seconds())
	s.eventsDueTotal.Add(float64(eventsDue))
	if err != nil {
		s.scanErrorsTotal.Inc()
	}
}

// Reconciler metrics implementation

func (s *PrometheusSink) ReconcileAction(action string) {
	s.reconcileActionsTotal.WithLabelValues(action).Inc()
}

// Runner metrics implementation

func (s *PrometheusSink) JobsClaimed(count int) {
	s.jobsClaimedTotal.Add(float64(count))
}

func (s *PrometheusSink) StaleJobsRequeued(count int) {
	s.staleRequeuedTotal.Add(float64(count))
}

// Executor metrics implementation

func (s *PrometheusSink) FireOutcome(outcome string) {
	s.fireOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) RetryScheduled() {
	s.retriesScheduledTotal.Inc()
}

func (s *PrometheusSink) JobsInFlightIncr() {
	s.jobsInFlight.Inc()
}

func (s *PrometheusSink) JobsInFlightDecr() {
	s.jobsInFlight.Dec()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	v := 0.0
	if isLeader {
		v = 1.0
	}
	s.leaderStatus.Set(v)
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquiredTotal.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}

// Verify PrometheusSink implements Sink interface.
var _ Sink = (*PrometheusSink)(nil)
