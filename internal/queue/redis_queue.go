// Package queue is the Redis-backed task transport between the webhook
// receiver and the worker pool. Tasks are serialized whole into the message,
// so a worker needs nothing but the message to run them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sevigo/release-warden/internal/dispatch"
)

const (
	readyKey     = "warden:tasks:ready"
	scheduledKey = "warden:tasks:scheduled"
	deadKey      = "warden:tasks:dead"
)

// RedisQueue coordinates the ready list and the scheduled set. It implements
// both dispatch.Enqueuer and dispatch.Rescheduler.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue wraps an existing Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

var (
	_ dispatch.Enqueuer     = (*RedisQueue)(nil)
	_ dispatch.Rescheduler  = (*RedisQueue)(nil)
	_ dispatch.DeadLetterer = (*RedisQueue)(nil)
)

// Enqueue pushes a task onto the ready list for immediate delivery.
func (q *RedisQueue) Enqueue(ctx context.Context, task dispatch.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", task.Name, err)
	}
	return q.client.RPush(ctx, readyKey, body).Err()
}

// Schedule places a task into the scheduled set, keyed by its delivery time.
func (q *RedisQueue) Schedule(ctx context.Context, task dispatch.Task, runAt time.Time) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", task.Name, err)
	}
	return q.client.ZAdd(ctx, scheduledKey, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: body,
	}).Err()
}

// PromoteDue moves scheduled tasks whose delivery time has passed onto the
// ready list. It returns how many were promoted.
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	max := fmt.Sprintf("%d", now.UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, m := range members {
		pipe.ZRem(ctx, scheduledKey, m)
		pipe.RPush(ctx, readyKey, m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(members), nil
}

// Dequeue blocks up to timeout for the next ready task. A zero task and nil
// error means the timeout elapsed with nothing to do.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (dispatch.Task, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, readyKey).Result()
	if err == redis.Nil {
		return dispatch.Task{}, false, nil
	}
	if err != nil {
		return dispatch.Task{}, false, err
	}
	// BLPop returns [key, value].
	var task dispatch.Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return dispatch.Task{}, false, fmt.Errorf("decoding task: %w", err)
	}
	return task, true, nil
}

// DeadLetter stores a terminally failed task on the dead list for inspection.
// Nothing consumes the list automatically; it is an operator surface.
func (q *RedisQueue) DeadLetter(ctx context.Context, task dispatch.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", task.Name, err)
	}
	return q.client.RPush(ctx, deadKey, body).Err()
}

// Depth returns the number of tasks waiting on the ready list.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, readyKey).Result()
}

// ScheduledDepth returns the number of tasks waiting in the scheduled set.
func (q *RedisQueue) ScheduledDepth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, scheduledKey).Result()
}

// DeadDepth returns the number of tasks on the dead-letter list.
func (q *RedisQueue) DeadDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, deadKey).Result()
}
