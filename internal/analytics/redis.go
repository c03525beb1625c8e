// Package analytics keeps daily activity counters in Redis. Counters are
// best effort; a write failure is logged and never fails the job that
// produced it.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Retention is how long daily buckets are kept.
const Retention = 90 * 24 * time.Hour

// RedisSink writes per-day counters keyed by site and metric, for example
// pagesched:example.test:events_added:20250107.
type RedisSink struct {
	client *redis.Client
	site   string
	clock  func() time.Time
}

// NewRedisSink creates a sink scoped to one site identifier (owner/repo).
func NewRedisSink(client *redis.Client, site string) *RedisSink {
	return &RedisSink{client: client, site: site, clock: time.Now}
}

// RecordMaterialization counts one materializer run and the events it
// added and removed.
func (s *RedisSink) RecordMaterialization(ctx context.Context, added, removed int) {
	s.incr(ctx, map[string]int64{
		"materialize_runs": 1,
		"events_added":     int64(added),
		"events_removed":   int64(removed),
	})
}

// RecordCleanup counts one cleanup run and what it pruned.
func (s *RedisSink) RecordCleanup(ctx context.Context, eventsPruned, exclusionsPruned int) {
	s.incr(ctx, map[string]int64{
		"cleanup_runs":      1,
		"events_pruned":     int64(eventsPruned),
		"exclusions_pruned": int64(exclusionsPruned),
	})
}

// RecordDeployment counts a deployment outcome ("success" or "timeout").
func (s *RedisSink) RecordDeployment(ctx context.Context, outcome string) {
	s.incr(ctx, map[string]int64{
		"deployments_" + outcome: 1,
	})
}

func (s *RedisSink) incr(ctx context.Context, deltas map[string]int64) {
	bucket := s.clock().UTC().Format("20060102")

	pipe := s.client.Pipeline()
	for metric, delta := range deltas {
		if delta == 0 {
			continue
		}
		key := s.key(metric, bucket)
		pipe.IncrBy(ctx, key, delta)
		pipe.Expire(ctx, key, Retention)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: redis pipeline: %v", err)
	}
}

func (s *RedisSink) key(metric, bucket string) string {
	return fmt.Sprintf("pagesched:%s:%s:%s", s.site, metric, bucket)
}
