package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	// DefaultRetryLimit is the number of redeliveries an invocation gets
	// beyond its first attempt.
	DefaultRetryLimit = 2

	// RetryLimitEnvVar overrides DefaultRetryLimit for the whole process.
	RetryLimitEnvVar = "WARDEN_RETRY_LIMIT"

	backoffBase = 120 * time.Second
)

// ErrRetriesExhausted wraps the causing error when Retry is called on the
// last try. The caller must treat the cause as terminal.
var ErrRetriesExhausted = errors.New("dispatch: retries exhausted")

// Backoff returns the default delay before the next attempt: 120s doubled
// per attempt already made (120s, 240s, 480s, ...).
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return backoffBase << attempt
}

// RetryOptions tune a single Retry call.
type RetryOptions struct {
	// Delay overrides the default exponential backoff when positive.
	Delay time.Duration

	// MaxRetries overrides the controller's retry limit when positive.
	MaxRetries int

	// Resume is merged into the next attempt's resume state.
	Resume map[string]string
}

// Controller wraps one task attempt with the retry policy. The attempt count
// lives in the task message; the queue owns it, the controller only reads it.
type Controller struct {
	task      Task
	scheduler Rescheduler
	limit     int
	logger    *slog.Logger
	now       func() time.Time

	scheduled bool
}

// NewController builds a controller for the given attempt. limit is the
// configured retry limit; RetryLimitEnvVar overrides it, and a non-positive
// value falls back to DefaultRetryLimit.
func NewController(task Task, scheduler Rescheduler, limit int, logger *slog.Logger) *Controller {
	return &Controller{
		task:      task,
		scheduler: scheduler,
		limit:     resolveRetryLimit(limit),
		logger:    logger,
		now:       time.Now,
	}
}

func resolveRetryLimit(configured int) int {
	if raw := os.Getenv(RetryLimitEnvVar); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit >= 0 {
			return limit
		}
	}
	if configured > 0 {
		return configured
	}
	return DefaultRetryLimit
}

// Attempt returns the zero-based attempt count of the wrapped invocation.
func (c *Controller) Attempt() int { return c.task.Attempt }

// RetryLimit returns the resolved retry limit.
func (c *Controller) RetryLimit() int { return c.limit }

// IsLastTry reports whether the current attempt is the final one: no further
// retry will be scheduled for it.
func (c *Controller) IsLastTry() bool {
	return c.task.Attempt >= c.limit
}

// Scheduled reports whether this controller already scheduled the next
// attempt. Used to suppress duplicate scheduling when an error bubbles up
// after an explicit Retry call.
func (c *Controller) Scheduled() bool { return c.scheduled }

// Retry schedules the next attempt of the wrapped task after a backoff and
// returns nil; the invocation itself continues and should wind down normally.
// Called on the last try it schedules nothing and returns the cause wrapped
// in ErrRetriesExhausted so the caller records a terminal failure instead.
func (c *Controller) Retry(ctx context.Context, cause error, opts RetryOptions) error {
	limit := c.limit
	if opts.MaxRetries > 0 {
		limit = opts.MaxRetries
	}
	if c.task.Attempt >= limit {
		return fmt.Errorf("%w: %w", ErrRetriesExhausted, cause)
	}
	if c.scheduled {
		return nil
	}

	delay := opts.Delay
	if delay <= 0 {
		delay = Backoff(c.task.Attempt)
	}

	next := c.task
	next.Attempt++
	next.Payload.Resume = mergeResume(c.task.Payload.Resume, opts.Resume)

	if err := c.scheduler.Schedule(ctx, next, c.now().Add(delay)); err != nil {
		return fmt.Errorf("scheduling retry of %s: %w", c.task.Name, err)
	}
	c.scheduled = true
	c.logger.Info("retry scheduled",
		"task", c.task.Name,
		"attempt", next.Attempt,
		"delay", delay,
		"cause", cause,
	)
	return nil
}

func mergeResume(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
