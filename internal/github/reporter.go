// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/release-warden/internal/core"
)

// statusContextPrefix namespaces commit status contexts so they are
// recognizable next to other CI systems on the same commit.
const statusContextPrefix = "release-warden/"

type reporter struct {
	client Client
	logger *slog.Logger
}

// NewReporter returns a core.Reporter publishing commit statuses and failure
// notification issues through the GitHub API.
func NewReporter(client Client, logger *slog.Logger) core.Reporter {
	return &reporter{client: client, logger: logger}
}

// ReportStatus sets one commit status per target check. Running and pending
// both map to the "pending" commit state; GitHub has no separate running
// state.
func (r *reporter) ReportStatus(ctx context.Context, event core.Event, checkName string, state core.ReportState, description, url string) error {
	if event.CommitSHA == "" {
		r.logger.Debug("no commit to report status on", "check", checkName)
		return nil
	}
	owner, repo, err := SplitRepoURL(event.ProjectURL)
	if err != nil {
		return err
	}

	status := &github.RepoStatus{
		State:       github.Ptr(commitState(state)),
		Context:     github.Ptr(statusContextPrefix + checkName),
		Description: github.Ptr(truncateDescription(description)),
	}
	if url != "" {
		status.TargetURL = github.Ptr(url)
	}
	return r.client.CreateCommitStatus(ctx, owner, repo, event.CommitSHA, status)
}

// CreateIssueIfNeeded files a notification issue, or comments on an existing
// open issue carrying the same title so repeated failures do not flood the
// tracker.
func (r *reporter) CreateIssueIfNeeded(ctx context.Context, repoURL, title, body string) error {
	owner, repo, err := SplitRepoURL(repoURL)
	if err != nil {
		return err
	}

	issues, err := r.client.ListOpenIssues(ctx, owner, repo)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		if issue.GetTitle() == title {
			return r.client.CreateIssueComment(ctx, owner, repo, issue.GetNumber(), body)
		}
	}

	issue, err := r.client.CreateIssue(ctx, owner, repo, title, body)
	if err != nil {
		return err
	}
	r.logger.Info("failure notification issue created", "repo", repoURL, "issue", issue.GetNumber())
	return nil
}

func commitState(state core.ReportState) string {
	switch state {
	case core.ReportSuccess:
		return "success"
	case core.ReportFailure:
		return "failure"
	default:
		return "pending"
	}
}

// truncateDescription keeps descriptions under GitHub's 140-character limit.
// The cut lands on a rune boundary so multi-byte text stays valid UTF-8.
func truncateDescription(s string) string {
	const limit = 140
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
