package handler

import (
	"log/slog"
	"testing"

	"github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/release-warden/internal/config"
	"github.com/sevigo/release-warden/internal/core"
)

func testHandler() *WebhookHandler {
	return NewWebhookHandler(&config.Config{}, nil, nil, slog.New(slog.DiscardHandler))
}

func repo() *github.Repository {
	return &github.Repository{HTMLURL: github.Ptr("https://github.com/acme/widget")}
}

func TestNormalizeReleaseEvent(t *testing.T) {
	h := testHandler()

	event, ok := h.normalize(&github.ReleaseEvent{
		Action: github.Ptr("published"),
		Repo:   repo(),
		Release: &github.RepositoryRelease{
			TagName:         github.Ptr("v1.2.0"),
			TargetCommitish: github.Ptr("abc123"),
		},
		Sender: &github.User{Login: github.Ptr("alice")},
	})
	require.True(t, ok)
	assert.Equal(t, core.KindRelease, event.Kind)
	assert.Equal(t, "https://github.com/acme/widget", event.ProjectURL)
	assert.Equal(t, "v1.2.0", event.ReleaseTag)
	assert.Equal(t, "alice", event.Actor)

	// Draft and edited releases are ignored.
	_, ok = h.normalize(&github.ReleaseEvent{Action: github.Ptr("created"), Repo: repo()})
	assert.False(t, ok)
}

func TestNormalizePushEvent(t *testing.T) {
	h := testHandler()

	event, ok := h.normalize(&github.PushEvent{
		Repo:  &github.PushEventRepository{HTMLURL: github.Ptr("https://github.com/acme/widget")},
		Ref:   github.Ptr("refs/heads/f40"),
		After: github.Ptr("abc123"),
		HeadCommit: &github.HeadCommit{
			Author: &github.CommitAuthor{Login: github.Ptr("alice")},
		},
	})
	require.True(t, ok)
	assert.Equal(t, core.KindPush, event.Kind)
	assert.Equal(t, "f40", event.GitRef)
	assert.Equal(t, "abc123", event.CommitSHA)
	assert.Equal(t, "alice", event.Committer)
}

func TestNormalizePullRequestEvent(t *testing.T) {
	h := testHandler()

	pr := &github.PullRequest{
		Head: &github.PullRequestBranch{
			SHA: github.Ptr("abc123"),
			Ref: github.Ptr("feature"),
		},
		User: &github.User{Login: github.Ptr("alice")},
	}

	for _, action := range []string{"opened", "reopened", "synchronize"} {
		event, ok := h.normalize(&github.PullRequestEvent{
			Action:      github.Ptr(action),
			Repo:        repo(),
			Number:      github.Ptr(12),
			PullRequest: pr,
		})
		require.True(t, ok, action)
		assert.Equal(t, core.KindPullRequest, event.Kind)
		assert.Equal(t, 12, event.PRNumber)
		assert.Equal(t, "abc123", event.CommitSHA)
	}

	_, ok := h.normalize(&github.PullRequestEvent{Action: github.Ptr("closed"), Repo: repo(), PullRequest: pr})
	assert.False(t, ok)
}

func TestNormalizeCommentEvent(t *testing.T) {
	h := testHandler()

	event, ok := h.normalize(&github.IssueCommentEvent{
		Action: github.Ptr("created"),
		Repo:   repo(),
		Issue: &github.Issue{
			Number:           github.Ptr(12),
			PullRequestLinks: &github.PullRequestLinks{},
		},
		Comment: &github.IssueComment{
			Body: github.Ptr("/warden rebuild"),
			User: &github.User{Login: github.Ptr("alice")},
		},
	})
	require.True(t, ok)
	assert.Equal(t, core.KindPRComment, event.Kind)
	assert.Equal(t, "/warden rebuild", event.Comment)

	// A comment on a plain issue is still an event, just a different kind.
	event, ok = h.normalize(&github.IssueCommentEvent{
		Action:  github.Ptr("created"),
		Repo:    repo(),
		Issue:   &github.Issue{Number: github.Ptr(3)},
		Comment: &github.IssueComment{Body: github.Ptr("ping")},
	})
	require.True(t, ok)
	assert.Equal(t, core.KindIssueComment, event.Kind)

	_, ok = h.normalize(&github.IssueCommentEvent{Action: github.Ptr("edited"), Repo: repo()})
	assert.False(t, ok)
}

func TestNormalizeCheckRerunEvent(t *testing.T) {
	h := testHandler()

	event, ok := h.normalize(&github.CheckRunEvent{
		Action: github.Ptr("rerequested"),
		Repo:   repo(),
		CheckRun: &github.CheckRun{
			Name:    github.Ptr("release-warden/build:fedora-40-x86_64"),
			HeadSHA: github.Ptr("abc123"),
		},
	})
	require.True(t, ok)
	assert.Equal(t, core.KindCheckRerunCommit, event.Kind)
	// The reporter's namespace prefix is stripped before matching.
	assert.Equal(t, "build:fedora-40-x86_64", event.CheckName)

	event, ok = h.normalize(&github.CheckRunEvent{
		Action: github.Ptr("rerequested"),
		Repo:   repo(),
		CheckRun: &github.CheckRun{
			Name:    github.Ptr("release-warden/release-sync:f40"),
			HeadSHA: github.Ptr("abc123"),
		},
	})
	require.True(t, ok)
	assert.Equal(t, core.KindCheckRerunRelease, event.Kind)

	_, ok = h.normalize(&github.CheckRunEvent{Action: github.Ptr("created"), Repo: repo()})
	assert.False(t, ok)
}

func TestNormalizeIgnoresUnknownPayloads(t *testing.T) {
	h := testHandler()
	_, ok := h.normalize(&github.WatchEvent{})
	assert.False(t, ok)
}
