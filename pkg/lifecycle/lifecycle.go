// Package lifecycle backs the engine's two optional redis uses: publishing
// job lifecycle transitions (job.started, job.completed, job.failed,
// job.cancelled) for any external subscriber, and a per-tenant advisory
// lock so a future multi-replica deployment's schedulers don't both
// enqueue the same tick. Both are fire-and-forget: nothing in the
// pipeline depends on either succeeding.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the redis pub/sub channel job lifecycle events are published on.
const Channel = "harvest.job.lifecycle"

const (
	EventStarted   = "job.started"
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
	EventCancelled = "job.cancelled"
)

// Event is the JSON payload published for a single job transition.
type Event struct {
	Type     string `json:"type"`
	TenantID int64  `json:"tenant_id"`
	QueryID  string `json:"query_id"`
}

// Publisher publishes job lifecycle events. Publish must not block the
// caller meaningfully long or return an error the pipeline has to handle —
// a dropped event is a missed notification, never a reason to fail a job.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Noop discards every event. Used when no redis client is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) {}

// RedisPublisher publishes events as JSON on Channel.
type RedisPublisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisPublisher creates a Publisher backed by rdb.
func NewRedisPublisher(rdb *redis.Client, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, logger: logger}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshaling lifecycle event", "type", event.Type, "error", err)
		return
	}
	if err := p.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		p.logger.Error("publishing lifecycle event", "type", event.Type, "error", err)
	}
}

// tickLockKeyPrefix namespaces tick-lock keys from any other use of the
// same redis instance.
const tickLockKeyPrefix = "harvest:tick:"

// TickLock provides a per-tenant advisory lock over a single scheduler
// tick, so that a future multi-replica deployment's schedulers don't both
// enqueue a job for the same due tick. AcquireTick reports whether the
// caller won the lock.
type TickLock interface {
	AcquireTick(ctx context.Context, tenantID int64, ttl time.Duration) (bool, error)
}

// NoopTickLock always grants the lock. Used when no redis client is
// configured, which is correct for a single-process deployment: there is
// no other scheduler to race against.
type NoopTickLock struct{}

// AcquireTick implements TickLock.
func (NoopTickLock) AcquireTick(context.Context, int64, time.Duration) (bool, error) {
	return true, nil
}

// RedisTickLock acquires the lock with SETNX, so only the first scheduler
// to reach a given tenant's tick within the TTL window wins it.
type RedisTickLock struct {
	rdb *redis.Client
}

// NewRedisTickLock creates a TickLock backed by rdb.
func NewRedisTickLock(rdb *redis.Client) *RedisTickLock {
	return &RedisTickLock{rdb: rdb}
}

// AcquireTick implements TickLock.
func (l *RedisTickLock) AcquireTick(ctx context.Context, tenantID int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s%d", tickLockKeyPrefix, tenantID)
	ok, err := l.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring tick lock for tenant %d: %w", tenantID, err)
	}
	return ok, nil
}
