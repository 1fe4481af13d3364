package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
)

// BuildHandler submits one build covering all configured chroots to the
// external build farm. The build is accepted, not finished: completion
// arrives later through BuildResultHandler or the reconciliation loop.
type BuildHandler struct {
	base
}

// NewBuildHandler builds the handler for one task attempt.
func NewBuildHandler(deps Deps) dispatch.Factory {
	return func(task dispatch.Task, ctrl *dispatch.Controller) dispatch.Handler {
		return &BuildHandler{base: newBase(deps, task, ctrl)}
	}
}

// PreCheck gates on the configured trigger and on having a source ref.
func (h *BuildHandler) PreCheck(_ context.Context) bool {
	if !triggerMatches(h.job.Trigger, h.event.Kind) {
		h.log.Info("job trigger does not accept this event", "trigger", h.job.Trigger, "kind", h.event.Kind)
		return false
	}
	if h.targetRef() == "" {
		h.log.Info("no source ref to build, skipping")
		return false
	}
	return true
}

func (h *BuildHandler) Run(ctx context.Context) (dispatch.Result, error) {
	store := h.deps.Store
	now := h.deps.now()
	chroots := h.jobTargets()

	run := &core.Run{
		ID:            uuid.NewString(),
		JobType:       core.JobTypeBuild,
		Status:        core.RunStatusRunning,
		PackageConfig: h.pkg,
		TriggerEvent:  h.event,
		CreatedAt:     now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return dispatch.Result{}, err
	}

	targets := make([]*core.Target, 0, len(chroots))
	for _, chroot := range chroots {
		t := &core.Target{
			ID:     uuid.NewString(),
			RunID:  run.ID,
			Kind:   core.TargetKindBuild,
			Key:    chroot,
			Status: core.TargetStatusQueued,
		}
		if err := store.CreateTarget(ctx, t); err != nil {
			return dispatch.Result{}, err
		}
		targets = append(targets, t)
	}

	correlationID, resultURL, err := h.deps.Executor.SubmitBuild(ctx, h.pkg, h.targetRef(), chroots, h.job.Scratch)
	if err != nil {
		if !core.IsRequestError(err) {
			// Unclassified failure: hand the whole invocation to the
			// retry controller.
			return dispatch.Result{}, fmt.Errorf("submitting build: %w", err)
		}
		for _, t := range targets {
			if serr := store.SetTargetError(ctx, t.ID, err.Error()); serr != nil {
				return dispatch.Result{}, serr
			}
			if _, serr := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusError, core.TargetStatusQueued); serr != nil {
				return dispatch.Result{}, serr
			}
			h.report(ctx, t.Key, core.ReportFailure, "Build submission rejected: "+err.Error(), "")
		}
		if err := h.finishRun(ctx, run.ID); err != nil {
			return dispatch.Result{}, err
		}
		return dispatch.Result{Success: false, Message: "build submission rejected"}, nil
	}

	for _, t := range targets {
		if err := store.SetTargetCorrelationID(ctx, t.ID, correlationID); err != nil {
			return dispatch.Result{}, err
		}
		if err := store.SetTargetSubmittedAt(ctx, t.ID, h.deps.now()); err != nil {
			return dispatch.Result{}, err
		}
		if _, err := h.enterRunning(ctx, t); err != nil {
			return dispatch.Result{}, err
		}
		if err := store.SetTargetResultURL(ctx, t.ID, resultURL); err != nil {
			return dispatch.Result{}, err
		}
		h.report(ctx, t.Key, core.ReportRunning, "Build submitted, waiting for the build farm.", resultURL)
	}

	h.log.Info("build submitted", "correlation_id", correlationID, "chroots", len(chroots))
	return dispatch.Result{Success: true, Message: "build " + correlationID + " submitted"}, nil
}

// BuildResultHandler processes one build completion, whether delivered by the
// live callback or replayed by the reconciliation loop. It claims the same
// job type as BuildHandler: the two are the start and end of the same
// pipeline, not mutually exclusive.
type BuildResultHandler struct {
	base
}

// NewBuildResultHandler builds the handler for one task attempt.
func NewBuildResultHandler(deps Deps) dispatch.Factory {
	return func(task dispatch.Task, ctrl *dispatch.Controller) dispatch.Handler {
		return &BuildResultHandler{base: newBase(deps, task, ctrl)}
	}
}

func (h *BuildResultHandler) PreCheck(_ context.Context) bool {
	if h.event.CorrelationID == "" {
		h.log.Info("build result without correlation id, skipping")
		return false
	}
	return true
}

func (h *BuildResultHandler) Run(ctx context.Context) (dispatch.Result, error) {
	store := h.deps.Store

	targets, err := store.TargetsByCorrelationID(ctx, h.event.CorrelationID)
	if err != nil {
		return dispatch.Result{}, err
	}
	if len(targets) == 0 {
		h.log.Info("no targets for build", "correlation_id", h.event.CorrelationID)
		return dispatch.Result{Success: true, Message: "no targets for build"}, nil
	}

	runID := ""
	for _, t := range targets {
		if t.Kind != core.TargetKindBuild {
			continue
		}
		runID = t.RunID
		if t.Status.Terminal() {
			// A duplicate callback or a concurrent sweep got here first.
			continue
		}
		if err := h.completeTarget(ctx, t); err != nil {
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

func (h *BuildResultHandler) completeTarget(ctx context.Context, t *core.Target) error {
	store := h.deps.Store

	entered, err := h.enterRunning(ctx, t)
	if err != nil {
		return err
	}
	if !entered {
		return nil
	}

	state := h.event.Result[t.Key]
	if state == "" {
		state = h.event.Result["state"]
	}
	resultURL := h.event.Result["url"]
	if resultURL == "" {
		resultURL = t.ResultURL
	}

	if state == "succeeded" {
		if resultURL != "" {
			if err := store.SetTargetResultURL(ctx, t.ID, resultURL); err != nil {
				return err
			}
		}
		if _, err := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusSubmitted, core.TargetStatusRunning); err != nil {
			return err
		}
		h.report(ctx, t.Key, core.ReportSuccess, "Build finished successfully.", resultURL)
	} else {
		if err := store.SetTargetError(ctx, t.ID, "build ended in state "+state); err != nil {
			return err
		}
		if _, err := store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusError, core.TargetStatusRunning); err != nil {
			return err
		}
		h.report(ctx, t.Key, core.ReportFailure, "Build failed ("+state+").", resultURL)
	}
	return store.SetTargetFinishedAt(ctx, t.ID, h.deps.now())
}
