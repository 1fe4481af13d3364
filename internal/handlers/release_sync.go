package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
)

// ReleaseSyncHandler syncs a tagged upstream release to every configured
// downstream branch as a pull request. It is retriable: when the upstream
// archive is not published yet the whole invocation is rescheduled, carrying
// the run id so the next attempt resumes the same run instead of creating a
// new one.
type ReleaseSyncHandler struct {
	base
}

// NewReleaseSyncHandler builds the handler for one task attempt.
func NewReleaseSyncHandler(deps Deps) dispatch.Factory {
	return func(task dispatch.Task, ctrl *dispatch.Controller) dispatch.Handler {
		return &ReleaseSyncHandler{base: newBase(deps, task, ctrl)}
	}
}

// PreCheck requires a release tag to sync. Comment-triggered invocations may
// carry the tag in the raw payload instead.
func (h *ReleaseSyncHandler) PreCheck(_ context.Context) bool {
	if h.releaseTag() == "" {
		h.log.Info("no release tag to sync, skipping")
		return false
	}
	return true
}

func (h *ReleaseSyncHandler) releaseTag() string {
	if h.event.ReleaseTag != "" {
		return h.event.ReleaseTag
	}
	return h.event.Payload["release_tag"]
}

func (h *ReleaseSyncHandler) Run(ctx context.Context) (dispatch.Result, error) {
	run, targets, err := h.resumeOrCreateRun(ctx)
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("preparing release-sync run: %w", err)
	}

	tag := h.releaseTag()
	branchErrors := make(map[string]string)

	for _, t := range targets {
		if !t.Status.Processable() {
			h.log.Debug("skipping already processed branch", "branch", t.Key, "status", t.Status)
			continue
		}
		retryScheduled, err := h.syncTarget(ctx, run, t, tag, branchErrors)
		if err != nil {
			return dispatch.Result{}, err
		}
		if retryScheduled {
			// Remaining targets stay queued; the rescheduled attempt
			// picks them up together with this one.
			return dispatch.Result{Success: true, Message: "archive not ready, attempt rescheduled"}, nil
		}
	}

	if err := h.finishRun(ctx, run.ID); err != nil {
		return dispatch.Result{}, err
	}

	if len(branchErrors) > 0 {
		h.notifyFailures(ctx, tag, branchErrors)
		return dispatch.Result{Success: false, Message: "release sync failed for some branches"}, nil
	}
	return dispatch.Result{Success: true}, nil
}

// syncTarget processes one branch. Errors inside the branch are recorded on
// its target and never abort the loop; only store failures propagate.
func (h *ReleaseSyncHandler) syncTarget(ctx context.Context, run *core.Run, t *core.Target, tag string, branchErrors map[string]string) (retryScheduled bool, err error) {
	store := h.deps.Store

	entered, err := h.enterRunning(ctx, t)
	if err != nil {
		return false, err
	}
	if !entered {
		h.log.Debug("branch picked up by a concurrent writer", "branch", t.Key)
		return false, nil
	}

	// Finish time and captured logs are set on every exit path.
	var logLines []string
	defer func() {
		if ferr := store.SetTargetFinishedAt(ctx, t.ID, h.deps.now()); ferr != nil && err == nil {
			err = ferr
		}
		if len(logLines) > 0 {
			if lerr := store.SetTargetLogs(ctx, t.ID, strings.Join(logLines, "\n")); lerr != nil && err == nil {
				err = lerr
			}
		}
	}()

	h.report(ctx, t.Key, core.ReportRunning, "Starting release sync...", "")
	logLines = append(logLines, fmt.Sprintf("syncing %s to %s", tag, t.Key))

	prURL, syncErr := h.deps.Executor.SyncRelease(ctx, h.pkg, t.Key, tag)
	switch {
	case syncErr == nil:
		if err := store.SetTargetResultURL(ctx, t.ID, prURL); err != nil {
			return false, err
		}
		if _, err := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusSubmitted, core.TargetStatusRunning); err != nil {
			return false, err
		}
		logLines = append(logLines, "downstream pull request created")
		h.report(ctx, t.Key, core.ReportSuccess, "Release sync finished successfully.", prURL)
		return false, nil

	case errors.Is(syncErr, core.ErrArchiveNotReady):
		retryErr := h.ctrl.Retry(ctx, syncErr, dispatch.RetryOptions{
			Resume: map[string]string{dispatch.ResumeRunID: run.ID},
		})
		if retryErr == nil {
			if _, err := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusRetry, core.TargetStatusRunning); err != nil {
				return false, err
			}
			logLines = append(logLines, "upstream archive not available yet, retry scheduled")
			h.report(ctx, t.Key, core.ReportPending,
				"Release sync is waiting for the upstream archive to be published.", "")
			return true, nil
		}
		// Last try: the transient condition is now terminal.
		syncErr = retryErr
		fallthrough

	default:
		logLines = append(logLines, "release sync failed: "+syncErr.Error())
		if err := store.SetTargetError(ctx, t.ID, syncErr.Error()); err != nil {
			return false, err
		}
		if _, err := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusError, core.TargetStatusRunning); err != nil {
			return false, err
		}
		h.report(ctx, t.Key, core.ReportFailure, "Release sync failed: "+syncErr.Error(), "")
		branchErrors[t.Key] = syncErr.Error()
		return false, nil
	}
}

// resumeOrCreateRun loads the run named by the resume state, or creates a new
// run with one queued target per configured branch.
func (h *ReleaseSyncHandler) resumeOrCreateRun(ctx context.Context) (*core.Run, []*core.Target, error) {
	store := h.deps.Store

	if runID := h.task.Payload.Resume[dispatch.ResumeRunID]; runID != "" {
		run, err := store.GetRun(ctx, runID)
		if err != nil {
			return nil, nil, fmt.Errorf("resuming run %s: %w", runID, err)
		}
		targets, err := store.TargetsForRun(ctx, runID)
		if err != nil {
			return nil, nil, err
		}
		h.log.Info("resuming release-sync run", "run_id", runID)
		return run, targets, nil
	}

	now := h.deps.now()
	run := &core.Run{
		ID:            uuid.NewString(),
		JobType:       core.JobTypeReleaseSync,
		Status:        core.RunStatusRunning,
		PackageConfig: h.pkg,
		TriggerEvent:  h.event,
		CreatedAt:     now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return nil, nil, err
	}

	var targets []*core.Target
	for _, branch := range h.jobTargets() {
		t := &core.Target{
			ID:     uuid.NewString(),
			RunID:  run.ID,
			Kind:   core.TargetKindOneShot,
			Key:    branch,
			Status: core.TargetStatusQueued,
		}
		if err := store.CreateTarget(ctx, t); err != nil {
			return nil, nil, err
		}
		targets = append(targets, t)
	}
	return run, targets, nil
}

// notifyFailures files (or updates) a notification issue listing the failed
// branches, when the job names an issue repository.
func (h *ReleaseSyncHandler) notifyFailures(ctx context.Context, tag string, branchErrors map[string]string) {
	if h.deps.Reporter == nil || h.job.IssueRepository == "" {
		return
	}

	branches := make([]string, 0, len(branchErrors))
	for branch := range branchErrors {
		branches = append(branches, branch)
	}
	sort.Strings(branches)

	var sb strings.Builder
	sb.WriteString("Release sync failed to create pull requests:\n\n")
	sb.WriteString("| branch | error |\n| ------ | ----- |\n")
	for _, branch := range branches {
		fmt.Fprintf(&sb, "| `%s` | `%s` |\n", branch, strings.ReplaceAll(branchErrors[branch], "\n", " "))
	}

	title := "Release sync failed for release " + tag
	if err := h.deps.Reporter.CreateIssueIfNeeded(ctx, h.job.IssueRepository, title, sb.String()); err != nil {
		h.log.Warn("failed to file failure notification issue", "error", err)
	}
}
