// Package worker runs queued handler invocations. All retry decisions live in
// the dispatch package; the worker only moves tasks from the queue into the
// dispatcher.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/release-warden/internal/dispatch"
	"github.com/sevigo/release-warden/internal/queue"
	"github.com/sevigo/release-warden/internal/telemetry"
)

const (
	dequeueTimeout  = 2 * time.Second
	promoteInterval = 5 * time.Second
)

// Pool polls the queue and executes tasks on a fixed number of goroutines.
type Pool struct {
	queue      *queue.RedisQueue
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	size       int
}

// NewPool wires a worker pool. size <= 0 selects a single worker.
func NewPool(q *queue.RedisQueue, dispatcher *dispatch.Dispatcher, size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		queue:      q,
		dispatcher: dispatcher,
		logger:     logger,
		size:       size,
	}
}

// Run starts the workers and the scheduled-task promoter, blocking until the
// context is cancelled.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.promoteLoop(ctx)
	}()

	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.workLoop(ctx, worker)
		}(i)
	}

	wg.Wait()
}

// promoteLoop periodically moves due scheduled tasks onto the ready list and
// refreshes the queue depth gauge.
func (p *Pool) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if n, err := p.queue.PromoteDue(ctx, time.Now()); err != nil {
			p.logger.Error("promoting scheduled tasks failed", "error", err)
		} else if n > 0 {
			p.logger.Debug("scheduled tasks promoted", "count", n)
		}

		if depth, err := p.queue.Depth(ctx); err == nil {
			telemetry.QueueDepth.Set(float64(depth))
		}
		if depth, err := p.queue.DeadDepth(ctx); err == nil {
			telemetry.DeadLetterDepth.Set(float64(depth))
		}
	}
}

func (p *Pool) workLoop(ctx context.Context, worker int) {
	log := p.logger.With("worker", worker)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", "error", err)
			time.Sleep(dequeueTimeout)
			continue
		}
		if !ok {
			continue
		}

		result := p.dispatcher.RunTask(ctx, task)
		if !result.Success {
			log.Warn("task finished unsuccessfully",
				"task", task.Name,
				"attempt", task.Attempt,
				"message", result.Message,
			)
		}
	}
}
