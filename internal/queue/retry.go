package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sand/forex-wallet-app/backend/internal/core/ports"
)

const (
	scheduledKey = "forex:retry:scheduled"
	readyKey     = "forex:retry:ready"
	trackedKey   = "forex:retry:tracked"

	dispatchBatchSize = 100
)

// dispatchScript atomically moves every due job from the scheduled set
// to the ready list so that no two dispatchers deliver the same job from
// the schedule.
var dispatchScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ` + fmt.Sprint(dispatchBatchSize) + `)
for i, job in ipairs(due) do
    redis.call('RPUSH', KEYS[2], job)
    redis.call('ZREM', KEYS[1], job)
end
return #due
`)

// RetryQueue is a durable delayed work queue on redis. Producers schedule
// jobs with an exponential delay; a dispatcher loop promotes due jobs to
// a ready list that workers block on. Delivery is at-least-once: handlers
// must be idempotent.
type RetryQueue struct {
	logger      *slog.Logger
	client      *redis.Client
	baseBackoff time.Duration

	now func() time.Time
}

// NewRetryQueue creates a retry queue over the given redis client.
func NewRetryQueue(logger *slog.Logger, client *redis.Client, baseBackoff time.Duration) *RetryQueue {
	if baseBackoff <= 0 {
		baseBackoff = ports.DefaultRetryBackoff
	}
	return &RetryQueue{
		logger:      logger,
		client:      client,
		baseBackoff: baseBackoff,
		now:         time.Now,
	}
}

// Enqueue schedules a retry job. The delay grows exponentially with the
// attempt number carried on the job: base, 2*base, 4*base, ...
func (q *RetryQueue) Enqueue(ctx context.Context, job ports.RetryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal retry job: %w", err)
	}

	readyAt := q.now().Add(q.BackoffFor(job.Attempt))
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, scheduledKey, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: payload,
	})
	pipe.SAdd(ctx, trackedKey, job.OrderID.String())
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule retry job: %w", err)
	}

	q.logger.Info("retry job scheduled",
		"order_id", job.OrderID, "attempt", job.Attempt, "ready_at", readyAt.UTC().Format(time.RFC3339))

	return nil
}

// BackoffFor returns the delay applied before the given attempt is
// redelivered.
func (q *RetryQueue) BackoffFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	return q.baseBackoff << uint(attempt)
}

// Dispatch promotes all currently due jobs to the ready list and returns
// how many were moved.
func (q *RetryQueue) Dispatch(ctx context.Context) (int, error) {
	moved, err := dispatchScript.Run(ctx, q.client,
		[]string{scheduledKey, readyKey},
		q.now().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to dispatch due retry jobs: %w", err)
	}
	return moved, nil
}

// Dequeue blocks for up to the dequeue timeout waiting for a ready job.
// Returns nil when nothing became ready. Undecodable payloads are logged
// and dropped rather than poisoning the queue.
func (q *RetryQueue) Dequeue(ctx context.Context) (*ports.RetryJob, error) {
	res, err := q.client.BRPop(ctx, ports.QueueDequeueTimeout, readyKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop retry job: %w", err)
	}

	// BRPop returns [key, value].
	var job ports.RetryJob
	if err = json.Unmarshal([]byte(res[1]), &job); err != nil {
		q.logger.Error("discarding malformed retry job", "payload", res[1], "error", err)
		return nil, nil
	}

	// The job leaves the queue here; if the handler dies mid-flight the
	// sweeper schedules a fresh one.
	if err = q.client.SRem(ctx, trackedKey, job.OrderID.String()).Err(); err != nil {
		q.logger.Warn("failed to untrack delivered retry job", "order_id", job.OrderID, "error", err)
	}

	return &job, nil
}

// Pending reports whether a job for the order is still sitting in the
// queue, scheduled or ready.
func (q *RetryQueue) Pending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	pending, err := q.client.SIsMember(ctx, trackedKey, orderID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check tracked retry jobs: %w", err)
	}
	return pending, nil
}

// Run drives the dispatcher loop until the context is cancelled.
func (q *RetryQueue) Run(ctx context.Context) {
	q.logger.Info("retry queue dispatcher started", "interval", ports.QueueDispatchInterval.String())

	ticker := time.NewTicker(ports.QueueDispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("retry queue dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := q.Dispatch(ctx); err != nil && ctx.Err() == nil {
				q.logger.Error("retry dispatch failed", "error", err)
			}
		}
	}
}
