package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/telemetry"
)

// Dispatcher is the top-level entry point: it turns a normalized event into
// queued handler invocations and executes queued invocations under the retry
// controller.
type Dispatcher struct {
	registry   *Registry
	queue      Enqueuer
	scheduler  Rescheduler
	retryLimit int
	logger     *slog.Logger
	newID      func() string
}

// NewDispatcher wires a dispatcher. queue receives fresh invocations;
// scheduler receives retried ones. retryLimit is passed through to the retry
// controllers; zero selects the default.
func NewDispatcher(registry *Registry, queue Enqueuer, scheduler Rescheduler, retryLimit int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		queue:      queue,
		scheduler:  scheduler,
		retryLimit: retryLimit,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// ProcessEvent classifies the event and enqueues one task per applicable
// (handler, job config) pair. It returns how many tasks were enqueued.
func (d *Dispatcher) ProcessEvent(ctx context.Context, event core.Event, pkg core.PackageConfig) (int, error) {
	telemetry.EventsReceived.WithLabelValues(string(event.Kind)).Inc()

	matches := d.registry.HandlersFor(event, pkg)
	if len(matches) == 0 {
		d.logger.Debug("no handlers for event", "kind", event.Kind, "project", event.ProjectURL)
		return 0, nil
	}
	args := d.registry.CommandArgs(event)

	for _, m := range matches {
		task := d.taskFor(m, event, pkg, args)
		if err := d.queue.Enqueue(ctx, task); err != nil {
			return 0, err
		}
		telemetry.TasksEnqueued.Inc()
		d.logger.Info("handler invocation enqueued",
			"task", task.Name,
			"job", m.Job.Type,
			"synthesized", m.Job.Synthesized,
			"project", event.ProjectURL,
		)
	}
	return len(matches), nil
}

// RunTask executes one queued invocation: pre-check gate, handler run, and
// retry policy for errors that escape the per-target boundary.
func (d *Dispatcher) RunTask(ctx context.Context, task Task) Result {
	desc := d.registry.Lookup(task.Name)
	if desc == nil {
		d.logger.Error("unknown task name", "task", task.Name)
		telemetry.HandlerRuns.WithLabelValues(task.Name, "unknown").Inc()
		return Result{Success: false, Message: "unknown task name " + task.Name}
	}

	ctrl := NewController(task, d.scheduler, d.retryLimit, d.logger)
	handler := desc.New(task, ctrl)

	if !handler.PreCheck(ctx) {
		d.logger.Info("invocation skipped by pre-check", "task", task.Name)
		telemetry.HandlerRuns.WithLabelValues(task.Name, "skipped").Inc()
		return Result{Success: true, Message: "skipped by pre-check"}
	}

	result, err := handler.Run(ctx)
	if err != nil {
		// Unclassified failure of the whole invocation. Retry it unless
		// this was the last try or the handler already scheduled one.
		if !ctrl.Scheduled() && !ctrl.IsLastTry() {
			if retryErr := ctrl.Retry(ctx, err, RetryOptions{}); retryErr == nil {
				telemetry.RetriesScheduled.Inc()
				telemetry.HandlerRuns.WithLabelValues(task.Name, "retried").Inc()
				return Result{Success: false, Message: "invocation failed, retry scheduled: " + err.Error()}
			}
		}
		d.logger.Error("handler invocation failed terminally",
			"task", task.Name,
			"attempt", task.Attempt,
			"error", err,
		)
		d.deadLetter(ctx, task)
		telemetry.HandlerRuns.WithLabelValues(task.Name, "error").Inc()
		return Result{Success: false, Message: err.Error()}
	}

	if ctrl.Scheduled() {
		telemetry.RetriesScheduled.Inc()
	}
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	telemetry.HandlerRuns.WithLabelValues(task.Name, outcome).Inc()
	return result
}

// RunLocal resolves and executes every applicable handler synchronously,
// bypassing the queue for the initial attempt. The reconciliation loop uses
// it to replay lost completion callbacks through the exact same code path the
// live flow takes; retries scheduled during execution still go through the
// queue.
func (d *Dispatcher) RunLocal(ctx context.Context, event core.Event, pkg core.PackageConfig) []Result {
	telemetry.EventsReceived.WithLabelValues(string(event.Kind)).Inc()

	matches := d.registry.HandlersFor(event, pkg)
	args := d.registry.CommandArgs(event)
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, d.RunTask(ctx, d.taskFor(m, event, pkg, args)))
	}
	return results
}

func (d *Dispatcher) deadLetter(ctx context.Context, task Task) {
	dl, ok := d.queue.(DeadLetterer)
	if !ok {
		return
	}
	if err := dl.DeadLetter(ctx, task); err != nil {
		d.logger.Error("dead-lettering task failed", "task", task.Name, "error", err)
	}
}

func (d *Dispatcher) taskFor(m Match, event core.Event, pkg core.PackageConfig, args []string) Task {
	job := m.Job
	return Task{
		ID:   d.newID(),
		Name: m.Descriptor.TaskName,
		Payload: Payload{
			PackageConfig: pkg,
			JobConfig:     &job,
			Event:         event,
			CommandArgs:   args,
		},
	}
}
