// Package handler provides the HTTP handlers of the webhook receiver. Its job
// is normalization only: GitHub payloads are turned into core events and
// handed to the dispatcher, which decides what runs.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/release-warden/internal/config"
	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
)

// WebhookHandler processes incoming webhooks from GitHub.
type WebhookHandler struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	configs    core.ConfigProvider
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler with the given configuration and dispatcher.
func NewWebhookHandler(cfg *config.Config, dispatcher *dispatch.Dispatcher, configs core.ConfigProvider, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		cfg:        cfg,
		dispatcher: dispatcher,
		configs:    configs,
		logger:     logger,
	}
}

// Handle processes GitHub webhook requests.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, []byte(h.cfg.GitHub.WebhookSecret))
	if err != nil {
		h.logger.Error("invalid webhook payload signature", "error", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	raw, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		http.Error(w, "Could not parse webhook", http.StatusBadRequest)
		return
	}

	event, ok := h.normalize(raw)
	if !ok {
		h.logger.Debug("ignoring unhandled webhook event", "type", github.WebHookType(r))
		_, _ = fmt.Fprint(w, "Event type not handled")
		return
	}

	h.process(r.Context(), w, event)
}

func (h *WebhookHandler) process(ctx context.Context, w http.ResponseWriter, event core.Event) {
	pkg, err := h.configs.PackageConfig(ctx, event.ProjectURL, event.CommitSHA)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			h.logger.Debug("project not onboarded", "project", event.ProjectURL)
			_, _ = fmt.Fprint(w, "Project not configured")
			return
		}
		h.logger.Error("failed to load package config", "project", event.ProjectURL, "error", err)
		http.Error(w, "Failed to load package config", http.StatusInternalServerError)
		return
	}

	count, err := h.dispatcher.ProcessEvent(ctx, event, pkg)
	if err != nil {
		h.logger.Error("failed to enqueue handler invocations", "project", event.ProjectURL, "error", err)
		http.Error(w, "Failed to enqueue tasks", http.StatusInternalServerError)
		return
	}

	h.logger.Info("event accepted", "kind", event.Kind, "project", event.ProjectURL, "tasks", count)
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "%d tasks enqueued", count)
}

// normalize maps a parsed GitHub payload onto a core event. The second return
// reports whether the payload is one the service reacts to at all.
func (h *WebhookHandler) normalize(raw any) (core.Event, bool) {
	switch e := raw.(type) {
	case *github.ReleaseEvent:
		if e.GetAction() != "published" {
			return core.Event{}, false
		}
		return core.Event{
			Kind:       core.KindRelease,
			ProjectURL: e.GetRepo().GetHTMLURL(),
			ReleaseTag: e.GetRelease().GetTagName(),
			CommitSHA:  e.GetRelease().GetTargetCommitish(),
			Actor:      e.GetSender().GetLogin(),
		}, true

	case *github.PushEvent:
		return core.Event{
			Kind:       core.KindPush,
			ProjectURL: e.GetRepo().GetHTMLURL(),
			GitRef:     strings.TrimPrefix(e.GetRef(), "refs/heads/"),
			CommitSHA:  e.GetAfter(),
			Committer:  e.GetHeadCommit().GetAuthor().GetLogin(),
			Actor:      e.GetSender().GetLogin(),
		}, true

	case *github.PullRequestEvent:
		switch e.GetAction() {
		case "opened", "reopened", "synchronize":
		default:
			return core.Event{}, false
		}
		return core.Event{
			Kind:       core.KindPullRequest,
			ProjectURL: e.GetRepo().GetHTMLURL(),
			PRNumber:   e.GetNumber(),
			CommitSHA:  e.GetPullRequest().GetHead().GetSHA(),
			GitRef:     e.GetPullRequest().GetHead().GetRef(),
			Actor:      e.GetPullRequest().GetUser().GetLogin(),
		}, true

	case *github.IssueCommentEvent:
		if e.GetAction() != "created" {
			return core.Event{}, false
		}
		kind := core.KindIssueComment
		if e.GetIssue().IsPullRequest() {
			kind = core.KindPRComment
		}
		return core.Event{
			Kind:       kind,
			ProjectURL: e.GetRepo().GetHTMLURL(),
			PRNumber:   e.GetIssue().GetNumber(),
			Comment:    e.GetComment().GetBody(),
			Actor:      e.GetComment().GetUser().GetLogin(),
		}, true

	case *github.CheckRunEvent:
		if e.GetAction() != "rerequested" {
			return core.Event{}, false
		}
		checkName := strings.TrimPrefix(e.GetCheckRun().GetName(), "release-warden/")
		kind := core.KindCheckRerunCommit
		if strings.HasPrefix(checkName, string(core.JobTypeReleaseSync)) {
			kind = core.KindCheckRerunRelease
		}
		return core.Event{
			Kind:       kind,
			ProjectURL: e.GetRepo().GetHTMLURL(),
			CommitSHA:  e.GetCheckRun().GetHeadSHA(),
			CheckName:  checkName,
			Actor:      e.GetSender().GetLogin(),
		}, true
	}
	return core.Event{}, false
}
