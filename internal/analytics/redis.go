// Package analytics keeps daily per-outcome counters in Redis. Counters
// are a best-effort side channel for dashboards; losing one increment
// never affects reminder delivery.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/easy-remind/internal/domain"
)

// DefaultRetention is how long a daily counter survives after its last
// increment.
const DefaultRetention = 30 * 24 * time.Hour

// RedisSink counts fire outcomes per day.
type RedisSink struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisSink creates a sink with the default retention.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, retention: DefaultRetention}
}

// WithRetention overrides how long counters are kept.
func (s *RedisSink) WithRetention(d time.Duration) *RedisSink {
	s.retention = d
	return s
}

// RecordOutcome increments the daily counter for the outcome. Errors are
// logged and swallowed.
func (s *RedisSink) RecordOutcome(ctx context.Context, outcome domain.FireOutcome, at time.Time) {
	key := buildKey(outcome, at)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: increment %s: %v", key, err)
	}
}

func buildKey(outcome domain.FireOutcome, t time.Time) string {
	return fmt.Sprintf("remind:%s:%s", outcome, t.UTC().Format("20060102"))
}
