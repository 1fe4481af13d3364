package handlers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
	"github.com/sevigo/release-warden/internal/storage"
)

var testClock = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	mu     sync.Mutex
	tasks  []dispatch.Task
	runAts []time.Time
}

func (s *fakeScheduler) Schedule(_ context.Context, task dispatch.Task, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	s.runAts = append(s.runAts, runAt)
	return nil
}

type statusReport struct {
	Check string
	State core.ReportState
}

type fakeReporter struct {
	mu       sync.Mutex
	statuses []statusReport
	issues   map[string][]string
}

func (r *fakeReporter) ReportStatus(_ context.Context, _ core.Event, checkName string, state core.ReportState, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusReport{Check: checkName, State: state})
	return nil
}

func (r *fakeReporter) CreateIssueIfNeeded(_ context.Context, _, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.issues == nil {
		r.issues = make(map[string][]string)
	}
	r.issues[title] = append(r.issues[title], body)
	return nil
}

type fakeExecutor struct {
	syncRelease     func(branch, tag string) (string, error)
	submitBuild     func(ref string, chroots []string) (string, string, error)
	submitTests     func(ref, target string) (string, error)
	downstreamBuild func(branch string) error
}

func (e *fakeExecutor) SyncRelease(_ context.Context, _ core.PackageConfig, branch, tag string) (string, error) {
	return e.syncRelease(branch, tag)
}

func (e *fakeExecutor) SubmitBuild(_ context.Context, _ core.PackageConfig, ref string, chroots []string, _ bool) (string, string, error) {
	return e.submitBuild(ref, chroots)
}

func (e *fakeExecutor) SubmitTests(_ context.Context, _ core.PackageConfig, ref, target string) (string, error) {
	return e.submitTests(ref, target)
}

func (e *fakeExecutor) SubmitDownstreamBuild(_ context.Context, _ core.PackageConfig, branch string, _ bool) error {
	return e.downstreamBuild(branch)
}

type testEnv struct {
	store    *storage.MemoryStore
	reporter *fakeReporter
	executor *fakeExecutor
	sched    *fakeScheduler
	deps     Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    storage.NewMemoryStore(),
		reporter: &fakeReporter{},
		executor: &fakeExecutor{},
		sched:    &fakeScheduler{},
	}
	env.deps = Deps{
		Store:    env.store,
		Reporter: env.reporter,
		Executor: env.executor,
		Logger:   slog.New(slog.DiscardHandler),
		Now:      func() time.Time { return testClock },
	}
	return env
}

// invoke builds the handler the way the dispatcher does and runs it through
// the pre-check gate.
func (env *testEnv) invoke(t *testing.T, factory dispatch.Factory, task dispatch.Task) (dispatch.Result, error) {
	t.Helper()
	ctrl := dispatch.NewController(task, env.sched, 0, env.deps.Logger)
	h := factory(task, ctrl)
	if !h.PreCheck(context.Background()) {
		t.Fatalf("pre-check unexpectedly rejected task %s", task.Name)
	}
	return h.Run(context.Background())
}

func taskFor(name string, pkg core.PackageConfig, job core.JobConfig, event core.Event) dispatch.Task {
	return dispatch.Task{
		ID:   "task-1",
		Name: name,
		Payload: dispatch.Payload{
			PackageConfig: pkg,
			JobConfig:     &job,
			Event:         event,
		},
	}
}
