// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
)

// Client defines the GitHub operations the service needs: commit statuses for
// per-target reporting and issues for failure notifications.
type Client interface {
	CreateCommitStatus(ctx context.Context, owner, repo, sha string, status *github.RepoStatus) error
	ListOpenIssues(ctx context.Context, owner, repo string) ([]*github.Issue, error)
	CreateIssue(ctx context.Context, owner, repo, title, body string) (*github.Issue, error)
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
}

type gitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubClient wraps the official go-github client to provide a focused,
// testable interface for application-specific GitHub operations.
func NewGitHubClient(client *github.Client, logger *slog.Logger) Client {
	return &gitHubClient{client: client, logger: logger}
}

// NewPATClient creates a new GitHub client authenticated with a Personal Access Token (PAT).
// This is useful for CLI tools or local development where an App installation is not available.
func NewPATClient(ctx context.Context, token string, logger *slog.Logger) Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)
	return &gitHubClient{client: client, logger: logger}
}

// CreateCommitStatus sets a status on a commit.
func (g *gitHubClient) CreateCommitStatus(ctx context.Context, owner, repo, sha string, status *github.RepoStatus) error {
	_, _, err := g.client.Repositories.CreateStatus(ctx, owner, repo, sha, status)
	if err != nil {
		g.logger.Error("failed to create commit status", "owner", owner, "repo", repo, "sha", sha, "error", err)
	}
	return err
}

// ListOpenIssues retrieves all open issues in a repository, following
// pagination.
func (g *gitHubClient) ListOpenIssues(ctx context.Context, owner, repo string) ([]*github.Issue, error) {
	var all []*github.Issue
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		issues, resp, err := g.client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			g.logger.Error("failed to list issues", "owner", owner, "repo", repo, "error", err)
			return nil, err
		}
		all = append(all, issues...)
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return all, nil
}

// CreateIssue opens a new issue.
func (g *gitHubClient) CreateIssue(ctx context.Context, owner, repo, title, body string) (*github.Issue, error) {
	issue, _, err := g.client.Issues.Create(ctx, owner, repo, &github.IssueRequest{
		Title: &title,
		Body:  &body,
	})
	if err != nil {
		g.logger.Error("failed to create issue", "owner", owner, "repo", repo, "error", err)
		return nil, err
	}
	return issue, nil
}

// CreateIssueComment adds a comment to an existing issue.
func (g *gitHubClient) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	comment := &github.IssueComment{Body: &body}
	_, _, err := g.client.Issues.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		g.logger.Error("failed to create issue comment", "owner", owner, "repo", repo, "issue", number, "error", err)
	}
	return err
}

// SplitRepoURL extracts owner and repository name from a project URL such as
// https://github.com/owner/repo.
func SplitRepoURL(projectURL string) (string, string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(projectURL, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("cannot parse repository URL %q", projectURL)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}
