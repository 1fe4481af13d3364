package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/release-warden/internal/core"
)

type recordingQueue struct {
	tasks []Task
}

func (q *recordingQueue) Enqueue(_ context.Context, task Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

type scriptedHandler struct {
	precheck bool
	result   Result
	err      error
	runs     *int
}

func (h *scriptedHandler) PreCheck(context.Context) bool { return h.precheck }

func (h *scriptedHandler) Run(context.Context) (Result, error) {
	if h.runs != nil {
		*h.runs++
	}
	return h.result, h.err
}

func scriptedRegistry(t *testing.T, h *scriptedHandler) *Registry {
	t.Helper()
	r := NewRegistry("/warden")
	require.NoError(t, r.Register(&Descriptor{
		TaskName:     "task.run-build",
		ConfiguredAs: []core.JobType{core.JobTypeBuild},
		ReactsTo:     []core.EventKind{core.KindPullRequest},
		New:          func(Task, *Controller) Handler { return h },
	}))
	return r
}

func TestProcessEventEnqueuesTasks(t *testing.T) {
	queue := &recordingQueue{}
	sched := &recordingScheduler{}
	h := &scriptedHandler{precheck: true, result: Result{Success: true}}
	d := NewDispatcher(scriptedRegistry(t, h), queue, sched, 0, discardLogger())

	pkg := core.PackageConfig{Jobs: []core.JobConfig{
		{Type: core.JobTypeBuild, Trigger: core.TriggerPullRequest, Targets: []string{"fedora-40"}},
	}}
	count, err := d.ProcessEvent(context.Background(), core.Event{Kind: core.KindPullRequest}, pkg)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, queue.tasks, 1)

	task := queue.tasks[0]
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "task.run-build", task.Name)
	assert.Equal(t, 0, task.Attempt)
	require.NotNil(t, task.Payload.JobConfig)
	assert.Equal(t, core.JobTypeBuild, task.Payload.JobConfig.Type)
}

func TestProcessEventCarriesCommandArgs(t *testing.T) {
	queue := &recordingQueue{}
	h := &scriptedHandler{precheck: true, result: Result{Success: true}}
	r := NewRegistry("/warden")
	require.NoError(t, r.Register(&Descriptor{
		TaskName:     "task.run-build",
		ConfiguredAs: []core.JobType{core.JobTypeBuild},
		ReactsTo:     []core.EventKind{core.KindComment},
		Commands:     []string{"build"},
		New:          func(Task, *Controller) Handler { return h },
	}))
	d := NewDispatcher(r, queue, &recordingScheduler{}, 0, discardLogger())

	pkg := core.PackageConfig{Jobs: []core.JobConfig{
		{Type: core.JobTypeBuild, Trigger: core.TriggerPullRequest, Targets: []string{"fedora-40", "rawhide"}},
	}}
	event := core.Event{Kind: core.KindPRComment, Comment: "/warden build rawhide verbose dropped"}
	count, err := d.ProcessEvent(context.Background(), event, pkg)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// The third token is beyond the argument cap.
	assert.Equal(t, []string{"rawhide", "verbose"}, queue.tasks[0].Payload.CommandArgs)
}

func TestRunTaskPreCheckGate(t *testing.T) {
	runs := 0
	h := &scriptedHandler{precheck: false, runs: &runs}
	d := NewDispatcher(scriptedRegistry(t, h), &recordingQueue{}, &recordingScheduler{}, 0, discardLogger())

	result := d.RunTask(context.Background(), Task{Name: "task.run-build"})
	assert.True(t, result.Success)
	assert.Equal(t, 0, runs, "pre-check must prevent the run")
}

func TestRunTaskUnknownTask(t *testing.T) {
	h := &scriptedHandler{precheck: true}
	d := NewDispatcher(scriptedRegistry(t, h), &recordingQueue{}, &recordingScheduler{}, 0, discardLogger())

	result := d.RunTask(context.Background(), Task{Name: "task.nope"})
	assert.False(t, result.Success)
}

func TestRunTaskRetriesUnclassifiedError(t *testing.T) {
	sched := &recordingScheduler{}
	h := &scriptedHandler{precheck: true, err: errors.New("farm unreachable")}
	d := NewDispatcher(scriptedRegistry(t, h), &recordingQueue{}, sched, 0, discardLogger())

	result := d.RunTask(context.Background(), Task{Name: "task.run-build", Attempt: 0})
	assert.False(t, result.Success)
	require.Len(t, sched.tasks, 1)
	assert.Equal(t, 1, sched.tasks[0].Attempt)
}

func TestRunTaskErrorOnLastTryIsTerminal(t *testing.T) {
	sched := &recordingScheduler{}
	h := &scriptedHandler{precheck: true, err: errors.New("farm unreachable")}
	d := NewDispatcher(scriptedRegistry(t, h), &recordingQueue{}, sched, 0, discardLogger())

	result := d.RunTask(context.Background(), Task{Name: "task.run-build", Attempt: DefaultRetryLimit})
	assert.False(t, result.Success)
	assert.Empty(t, sched.tasks)
}

func TestRunTaskHonorsConfiguredRetryLimit(t *testing.T) {
	sched := &recordingScheduler{}
	h := &scriptedHandler{precheck: true, err: errors.New("farm unreachable")}
	d := NewDispatcher(scriptedRegistry(t, h), &recordingQueue{}, sched, 1, discardLogger())

	d.RunTask(context.Background(), Task{Name: "task.run-build", Attempt: 0})
	require.Len(t, sched.tasks, 1)

	// Attempt 1 is the last try under the configured limit of 1.
	d.RunTask(context.Background(), Task{Name: "task.run-build", Attempt: 1})
	assert.Len(t, sched.tasks, 1)
}

type deadLetterQueue struct {
	recordingQueue
	dead []Task
}

func (q *deadLetterQueue) DeadLetter(_ context.Context, task Task) error {
	q.dead = append(q.dead, task)
	return nil
}

func TestRunTaskDeadLettersTerminalFailures(t *testing.T) {
	queue := &deadLetterQueue{}
	h := &scriptedHandler{precheck: true, err: errors.New("farm unreachable")}
	d := NewDispatcher(scriptedRegistry(t, h), queue, &recordingScheduler{}, 0, discardLogger())

	// A retriable failure is rescheduled, not dead-lettered.
	d.RunTask(context.Background(), Task{Name: "task.run-build", Attempt: 0})
	assert.Empty(t, queue.dead)

	d.RunTask(context.Background(), Task{Name: "task.run-build", Attempt: DefaultRetryLimit})
	require.Len(t, queue.dead, 1)
	assert.Equal(t, DefaultRetryLimit, queue.dead[0].Attempt)
}

func TestRunLocalExecutesSynchronously(t *testing.T) {
	runs := 0
	h := &scriptedHandler{precheck: true, result: Result{Success: true}, runs: &runs}
	d := NewDispatcher(scriptedRegistry(t, h), &recordingQueue{}, &recordingScheduler{}, 0, discardLogger())

	pkg := core.PackageConfig{Jobs: []core.JobConfig{
		{Type: core.JobTypeBuild, Trigger: core.TriggerPullRequest},
	}}
	results := d.RunLocal(context.Background(), core.Event{Kind: core.KindPullRequest}, pkg)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 1, runs)
}
