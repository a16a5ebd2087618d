// Package leaderelection serializes the singleton duties (scan loop and
// job runner) across replicas with a Postgres advisory lock.
//
// The lock is session-scoped and lives as long as its dedicated database
// connection. There is no lease renewal: Postgres releases the lock
// server-side the moment the session dies. The local heartbeat only
// detects that death early so this replica can stop its duties without
// waiting for TCP timeouts.
package leaderelection

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// DefaultLockKey identifies the reminder singleton lock. All replicas of
// one deployment must agree on it.
const DefaultLockKey int64 = 0x72656d696e64 // "remind"

// MetricsSink defines the interface for recording leader election metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string) // reason: "shutdown", "conn_lost"
}

// Elector competes for the advisory lock and runs leader duties while
// holding it.
type Elector struct {
	db                *sql.DB
	lockKey           int64
	retryInterval     time.Duration // follower: how often to attempt the lock
	heartbeatInterval time.Duration // leader: how often to ping the session
	onElected         func(ctx context.Context)
	onDemoted         func()
	metrics           MetricsSink // optional, nil = disabled
}

// New creates a new Elector.
//
// onElected runs in a new goroutine once the lock is acquired; its context
// is cancelled when leadership ends. It should start the leader duties and
// return quickly. onDemoted runs synchronously on loss and must block
// until the duties are stopped; it must be idempotent.
func New(
	db *sql.DB,
	lockKey int64,
	retryInterval, heartbeatInterval time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
) *Elector {
	return &Elector{
		db:                db,
		lockKey:           lockKey,
		retryInterval:     retryInterval,
		heartbeatInterval: heartbeatInterval,
		onElected:         onElected,
		onDemoted:         onDemoted,
	}
}

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run campaigns for leadership until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	log.Printf("leader: campaigning (lock_key=%d, retry=%s, heartbeat=%s)",
		e.lockKey, e.retryInterval, e.heartbeatInterval)

	for ctx.Err() == nil {
		if reason := e.campaign(ctx); reason != "" && ctx.Err() == nil {
			log.Printf("leader: leadership lost (reason=%s), retrying in %s", reason, e.retryInterval)
		}

		select {
		case <-ctx.Done():
		case <-time.After(e.retryInterval):
		}
	}
	log.Println("leader: stopped")
}

// campaign makes one lock attempt and, on success, holds leadership until
// the session dies or ctx ends. Returns why leadership ended, "" when the
// lock was never acquired.
func (e *Elector) campaign(ctx context.Context) string {
	// Session-scoped lock: it must live on one dedicated connection.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		log.Printf("leader: dedicated connection: %v", err)
		return ""
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&acquired); err != nil {
		log.Printf("leader: advisory lock query: %v", err)
		return ""
	}
	if !acquired {
		return ""
	}

	log.Printf("leader: acquired lock %d", e.lockKey)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	leaderCtx, stopDuties := context.WithCancel(ctx)
	go e.onElected(leaderCtx)

	reason := e.watchSession(ctx, conn)

	stopDuties()
	e.onDemoted()

	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}
	log.Printf("leader: released lock %d", e.lockKey)
	return reason
}

// watchSession pings the lock-holding connection until it dies or ctx
// ends. The ping never renews anything; it only notices a dead session.
func (e *Elector) watchSession(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return "shutdown"
				}
				log.Printf("leader: session ping failed: %v", err)
				return "conn_lost"
			}
		}
	}
}
