// Package dispatch decides which handlers run for an incoming event, in what
// order, and with what retry policy. It owns the classification registry, the
// dependency resolver, the retry controller, and the top-level dispatcher.
package dispatch

import (
	"context"
	"time"

	"github.com/sevigo/release-warden/internal/core"
)

// Payload is the body of one queued handler invocation. Everything the worker
// needs to rebuild the invocation travels in the message itself.
type Payload struct {
	PackageConfig core.PackageConfig `json:"package_config"`
	JobConfig     *core.JobConfig    `json:"job_config,omitempty"`
	Event         core.Event         `json:"event"`

	// CommandArgs are the tokens following a comment command's name, e.g.
	// the "rawhide" of "/warden build rawhide". Handlers use them to narrow
	// the configured targets.
	CommandArgs []string `json:"command_args,omitempty"`

	// Resume carries state from a failed attempt into the next one, e.g.
	// the run id so a retried invocation resumes instead of recreating
	// work.
	Resume map[string]string `json:"resume,omitempty"`
}

// ResumeRunID is the resume key under which a retried invocation finds the
// run it should pick up.
const ResumeRunID = "run_id"

// Task is one queued handler invocation. Attempt is supplied by the execution
// environment: it starts at zero and the queue increments it on every
// redelivery scheduled through a Rescheduler.
type Task struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Attempt int     `json:"attempt"`
	Payload Payload `json:"payload"`
}

// Enqueuer accepts tasks for immediate delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Rescheduler accepts tasks for deferred delivery. The retry controller uses
// it to schedule the next attempt after a backoff.
type Rescheduler interface {
	Schedule(ctx context.Context, task Task, runAt time.Time) error
}

// DeadLetterer keeps tasks that failed terminally for inspection. Queues that
// implement it receive every invocation whose error survived the retry limit.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, task Task) error
}
