package handlers

import (
	"context"
	"fmt"
	"slices"

	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
)

// DownstreamBuildHandler triggers a build in the downstream build system for
// a dist-git branch. It is gated on the configured branches and on committer
// and PR-author allow-lists.
type DownstreamBuildHandler struct {
	base
}

// NewDownstreamBuildHandler builds the handler for one task attempt.
func NewDownstreamBuildHandler(deps Deps) dispatch.Factory {
	return func(task dispatch.Task, ctrl *dispatch.Controller) dispatch.Handler {
		return &DownstreamBuildHandler{base: newBase(deps, task, ctrl)}
	}
}

// PreCheck skips pushes to unconfigured branches and actors outside the
// allow-lists. A false return is a silent no-op by design: nothing is
// recorded for disallowed triggers.
func (h *DownstreamBuildHandler) PreCheck(_ context.Context) bool {
	if h.event.Kind == core.KindPush {
		if !slices.Contains(h.jobTargets(), h.event.GitRef) {
			h.log.Info("downstream build not configured for branch", "branch", h.event.GitRef)
			return false
		}
		if prAuthor := h.event.Payload["pr_author"]; prAuthor != "" {
			if !slices.Contains(h.job.AllowedPRAuthors, prAuthor) {
				h.log.Info("pr author not allowed for downstream build", "author", prAuthor)
				return false
			}
		} else if h.event.Committer != "" {
			if !slices.Contains(h.job.AllowedCommitters, h.event.Committer) {
				h.log.Info("committer not allowed for downstream build", "committer", h.event.Committer)
				return false
			}
		}
		return true
	}

	if h.event.Kind.IsComment() {
		if len(h.job.AllowedPRAuthors) > 0 && !slices.Contains(h.job.AllowedPRAuthors, h.event.Actor) {
			h.log.Info("comment author not allowed to trigger downstream build", "actor", h.event.Actor)
			return false
		}
	}
	return true
}

func (h *DownstreamBuildHandler) Run(ctx context.Context) (dispatch.Result, error) {
	branch := h.event.GitRef
	if branch == "" {
		branch = h.jobTargets()[0]
	}

	err := h.deps.Executor.SubmitDownstreamBuild(ctx, h.pkg, branch, h.job.Scratch)
	if err == nil {
		h.log.Info("downstream build triggered", "branch", branch)
		return dispatch.Result{Success: true}, nil
	}

	if !core.IsRequestError(err) {
		return dispatch.Result{}, fmt.Errorf("triggering downstream build on %s: %w", branch, err)
	}

	// Permanent rejection. Retries will not help; notify the user through
	// the configured issue repository if there is one.
	if h.job.IssueRepository != "" && h.deps.Reporter != nil {
		body := fmt.Sprintf("Downstream build on `%s` failed to be triggered:\n```\n%s\n```", branch, err)
		if ierr := h.deps.Reporter.CreateIssueIfNeeded(ctx, h.job.IssueRepository,
			"Downstream build failed to be triggered", body); ierr != nil {
			h.log.Warn("failed to file failure notification issue", "error", ierr)
		}
	}
	return dispatch.Result{Success: false, Message: err.Error()}, nil
}
