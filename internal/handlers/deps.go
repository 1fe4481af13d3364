// Package handlers implements the executable units of logic the dispatcher
// selects for an event: release syncing, build and test submission, result
// processing, and downstream builds.
package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
)

// Stable queue task names, one per handler kind.
const (
	TaskReleaseSync     = "task.run-release-sync"
	TaskBuild           = "task.run-build"
	TaskBuildResult     = "task.process-build-result"
	TaskTests           = "task.run-tests"
	TaskTestResult      = "task.process-test-result"
	TaskDownstreamBuild = "task.run-downstream-build"
)

// Deps bundles the collaborators every handler needs.
type Deps struct {
	Store    core.Store
	Reporter core.Reporter
	Executor core.Executor
	Logger   *slog.Logger

	// Now is the clock; nil means time.Now. Tests inject a fixed one.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// base carries the per-invocation context shared by all handlers.
type base struct {
	deps  Deps
	task  dispatch.Task
	ctrl  *dispatch.Controller
	pkg   core.PackageConfig
	job   core.JobConfig
	event core.Event
	log   *slog.Logger
}

func newBase(deps Deps, task dispatch.Task, ctrl *dispatch.Controller) base {
	job := core.JobConfig{}
	if task.Payload.JobConfig != nil {
		job = *task.Payload.JobConfig
	}
	return base{
		deps:  deps,
		task:  task,
		ctrl:  ctrl,
		pkg:   task.Payload.PackageConfig,
		job:   job,
		event: task.Payload.Event,
		log:   deps.Logger.With("task", task.Name, "attempt", task.Attempt),
	}
}

// checkName builds the published status name for one target, e.g.
// "build:fedora-40-x86_64" or "release-sync:f40:nightly" when the job has an
// identifier.
func (b *base) checkName(target string) string {
	parts := []string{string(b.job.Type), target}
	if b.job.Identifier != "" {
		parts = append(parts, b.job.Identifier)
	}
	return strings.Join(parts, ":")
}

// report publishes a status. Reporting is fire-and-forget: failures are
// logged, never retried, and never fail the invocation.
func (b *base) report(ctx context.Context, target string, state core.ReportState, description, url string) {
	if b.deps.Reporter == nil {
		return
	}
	if err := b.deps.Reporter.ReportStatus(ctx, b.event, b.checkName(target), state, description, url); err != nil {
		b.log.Warn("status report failed", "target", target, "state", state, "error", err)
	}
}

// targetRef picks the source reference the executor should operate on.
func (b *base) targetRef() string {
	if b.event.CommitSHA != "" {
		return b.event.CommitSHA
	}
	return b.event.ReleaseTag
}

// jobTargets returns the configured fan-out targets, defaulting to main.
// Comment command arguments narrow the set: "/warden build fedora-40" runs
// only the targets matching fedora-40. Arguments matching nothing are
// ignored so a typo still re-runs the full set.
func (b *base) jobTargets() []string {
	targets := b.job.Targets
	if len(targets) == 0 {
		targets = []string{"main"}
	}
	if args := b.task.Payload.CommandArgs; len(args) > 0 {
		if narrowed := matchTargets(targets, args); len(narrowed) > 0 {
			return narrowed
		}
	}
	return targets
}

// matchTargets keeps targets equal to or prefixed by any of the given names.
func matchTargets(targets, names []string) []string {
	var out []string
	for _, target := range targets {
		for _, name := range names {
			if target == name || strings.HasPrefix(target, name) {
				out = append(out, target)
				break
			}
		}
	}
	return out
}

// triggerMatches reports whether the job's configured trigger accepts the
// event. Comments, check re-runs, and result callbacks re-trigger any job.
func triggerMatches(trigger core.TriggerType, kind core.EventKind) bool {
	if kind.IsComment() || kind.IsCheckRerun() {
		return true
	}
	switch kind {
	case core.KindRelease:
		return trigger == core.TriggerRelease
	case core.KindPullRequest:
		return trigger == core.TriggerPullRequest
	case core.KindPush:
		return trigger == core.TriggerPush
	}
	return true
}

// enterRunning moves a target into running and stamps its start time. A
// target already running (e.g. after a crashed attempt) is left as is; a
// target moved to a terminal status by a concurrent writer is reported as not
// enterable.
func (b *base) enterRunning(ctx context.Context, t *core.Target) (bool, error) {
	if t.Status != core.TargetStatusRunning {
		moved, err := b.deps.Store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusRunning,
			core.TargetStatusNew, core.TargetStatusQueued, core.TargetStatusRetry)
		if err != nil {
			return false, err
		}
		if !moved {
			return false, nil
		}
		t.Status = core.TargetStatusRunning
	}
	if t.StartedAt == nil {
		now := b.deps.now()
		if err := b.deps.Store.SetTargetStartedAt(ctx, t.ID, now); err != nil {
			return false, err
		}
		t.StartedAt = &now
	}
	return true, nil
}

// finishRun recomputes and persists the aggregate run status from the stored
// targets, stamping the finish time when the run settles.
func (b *base) finishRun(ctx context.Context, runID string) error {
	targets, err := b.deps.Store.TargetsForRun(ctx, runID)
	if err != nil {
		return err
	}
	statuses := make([]core.TargetStatus, len(targets))
	for i, t := range targets {
		statuses[i] = t.Status
	}
	status := core.AggregateRunStatus(statuses)
	if err := b.deps.Store.SetRunStatus(ctx, runID, status); err != nil {
		return err
	}
	if status != core.RunStatusRunning {
		return b.deps.Store.SetRunFinishedAt(ctx, runID, b.deps.now())
	}
	return nil
}
