package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
)

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client)
}

func sampleTask(id string) dispatch.Task {
	return dispatch.Task{
		ID:      id,
		Name:    "task.run-build",
		Attempt: 1,
		Payload: dispatch.Payload{
			Event: core.Event{
				Kind:       core.KindPullRequest,
				ProjectURL: "https://github.com/acme/widget",
				CommitSHA:  "0123456789abcdef0123456789abcdef01234567",
			},
			Resume: map[string]string{dispatch.ResumeRunID: "run-1"},
		},
	}
}

func TestEnqueueDequeueRoundtrip(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	want := sampleTask("t-1")
	require.NoError(t, q.Enqueue(ctx, want))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	got, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Attempt, got.Attempt)
	assert.Equal(t, want.Payload.Event.CommitSHA, got.Payload.Event.CommitSHA)
	assert.Equal(t, "run-1", got.Payload.Resume[dispatch.ResumeRunID])
}

func TestDequeuePreservesOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, sampleTask("t-1")))
	require.NoError(t, q.Enqueue(ctx, sampleTask("t-2")))

	first, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "t-1", first.ID)
	assert.Equal(t, "t-2", second.ID)
}

func TestDequeueTimeoutReturnsNothing(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, ok, err := q.Dequeue(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPromoteDueMovesOnlyDueTasks(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	require.NoError(t, q.Schedule(ctx, sampleTask("due"), now.Add(-time.Minute)))
	require.NoError(t, q.Schedule(ctx, sampleTask("future"), now.Add(time.Hour)))

	scheduled, err := q.ScheduledDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), scheduled)

	promoted, err := q.PromoteDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	got, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "due", got.ID)

	scheduled, err = q.ScheduledDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), scheduled, "the future task stays scheduled")

	promoted, err = q.PromoteDue(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, promoted)
}

func TestDeadLetterKeepsTaskOutOfDelivery(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	require.NoError(t, q.DeadLetter(ctx, sampleTask("t-dead")))

	depth, err := q.DeadDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	// Dead-lettered tasks are never redelivered.
	_, ok, err := q.Dequeue(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}
