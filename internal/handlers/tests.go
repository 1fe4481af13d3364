package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
)

// TestHandler submits one test pipeline per configured target to the external
// test farm. Results arrive later through TestResultHandler or the
// reconciliation loop.
type TestHandler struct {
	base
}

// NewTestHandler builds the handler for one task attempt.
func NewTestHandler(deps Deps) dispatch.Factory {
	return func(task dispatch.Task, ctrl *dispatch.Controller) dispatch.Handler {
		return &TestHandler{base: newBase(deps, task, ctrl)}
	}
}

func (h *TestHandler) PreCheck(_ context.Context) bool {
	if !triggerMatches(h.job.Trigger, h.event.Kind) {
		h.log.Info("job trigger does not accept this event", "trigger", h.job.Trigger, "kind", h.event.Kind)
		return false
	}
	if h.targetRef() == "" {
		h.log.Info("no source ref to test, skipping")
		return false
	}
	return true
}

func (h *TestHandler) Run(ctx context.Context) (dispatch.Result, error) {
	store := h.deps.Store
	now := h.deps.now()

	run := &core.Run{
		ID:            uuid.NewString(),
		JobType:       core.JobTypeTests,
		Status:        core.RunStatusRunning,
		PackageConfig: h.pkg,
		TriggerEvent:  h.event,
		CreatedAt:     now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return dispatch.Result{}, err
	}

	failed := 0
	for _, target := range h.jobTargets() {
		t := &core.Target{
			ID:     uuid.NewString(),
			RunID:  run.ID,
			Kind:   core.TargetKindTest,
			Key:    target,
			Status: core.TargetStatusNew,
		}
		if err := store.CreateTarget(ctx, t); err != nil {
			return dispatch.Result{}, err
		}

		pipelineID, err := h.deps.Executor.SubmitTests(ctx, h.pkg, h.targetRef(), target)
		if err != nil {
			if !core.IsRequestError(err) {
				return dispatch.Result{}, fmt.Errorf("submitting tests for %s: %w", target, err)
			}
			// Permanent rejection fails this target only; siblings
			// keep going.
			if serr := store.SetTargetError(ctx, t.ID, err.Error()); serr != nil {
				return dispatch.Result{}, serr
			}
			if _, serr := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusError, core.TargetStatusNew); serr != nil {
				return dispatch.Result{}, serr
			}
			h.report(ctx, target, core.ReportFailure, "Test submission rejected: "+err.Error(), "")
			failed++
			continue
		}

		if err := store.SetTargetCorrelationID(ctx, t.ID, pipelineID); err != nil {
			return dispatch.Result{}, err
		}
		if err := store.SetTargetSubmittedAt(ctx, t.ID, h.deps.now()); err != nil {
			return dispatch.Result{}, err
		}
		if _, err := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusQueued, core.TargetStatusNew); err != nil {
			return dispatch.Result{}, err
		}
		h.report(ctx, target, core.ReportPending, "Tests submitted, waiting for the test farm.", "")
	}

	if failed > 0 {
		if err := h.finishRun(ctx, run.ID); err != nil {
			return dispatch.Result{}, err
		}
		return dispatch.Result{Success: false, Message: "some test pipelines were rejected"}, nil
	}
	return dispatch.Result{Success: true}, nil
}

// TestResultHandler processes one test pipeline result, whether delivered by
// the live callback or replayed by the reconciliation loop.
type TestResultHandler struct {
	base
}

// NewTestResultHandler builds the handler for one task attempt.
func NewTestResultHandler(deps Deps) dispatch.Factory {
	return func(task dispatch.Task, ctrl *dispatch.Controller) dispatch.Handler {
		return &TestResultHandler{base: newBase(deps, task, ctrl)}
	}
}

func (h *TestResultHandler) PreCheck(_ context.Context) bool {
	if h.event.CorrelationID == "" {
		h.log.Info("test result without correlation id, skipping")
		return false
	}
	return true
}

func (h *TestResultHandler) Run(ctx context.Context) (dispatch.Result, error) {
	store := h.deps.Store

	targets, err := store.TargetsByCorrelationID(ctx, h.event.CorrelationID)
	if err != nil {
		return dispatch.Result{}, err
	}

	runID := ""
	for _, t := range targets {
		if t.Kind != core.TargetKindTest || t.Status.Terminal() {
			continue
		}
		runID = t.RunID

		entered, err := h.enterRunning(ctx, t)
		if err != nil {
			return dispatch.Result{}, err
		}
		if !entered {
			continue
		}

		state := h.event.Result["state"]
		resultURL := h.event.Result["url"]
		if state == "passed" {
			if resultURL != "" {
				if err := store.SetTargetResultURL(ctx, t.ID, resultURL); err != nil {
					return dispatch.Result{}, err
				}
			}
			if _, err := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusSubmitted, core.TargetStatusRunning); err != nil {
				return dispatch.Result{}, err
			}
			h.report(ctx, t.Key, core.ReportSuccess, "Tests passed.", resultURL)
		} else {
			if err := store.SetTargetError(ctx, t.ID, "tests ended in state "+state); err != nil {
				return dispatch.Result{}, err
			}
			if _, err := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusError, core.TargetStatusRunning); err != nil {
				return dispatch.Result{}, err
			}
			h.report(ctx, t.Key, core.ReportFailure, "Tests failed ("+state+").", resultURL)
		}
		if err := store.SetTargetFinishedAt(ctx, t.ID, h.deps.now()); err != nil {
			return dispatch.Result{}, err
		}
	}

	if runID != "" {
		if err := h.finishRun(ctx, runID); err != nil {
			return dispatch.Result{}, err
		}
	}
	return dispatch.Result{Success: true}, nil
}
