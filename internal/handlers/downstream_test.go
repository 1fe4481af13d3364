package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/release-warden/internal/core"
)

func downstreamPkg(branches ...string) (core.PackageConfig, core.JobConfig) {
	job := core.JobConfig{
		Type:    core.JobTypeDownstreamBuild,
		Trigger: core.TriggerPush,
		Targets: branches,
	}
	return core.PackageConfig{
		ProjectURL: "https://github.com/acme/widget",
		Jobs:       []core.JobConfig{job},
	}, job
}

func pushEvent(branch, committer string) core.Event {
	return core.Event{
		Kind:       core.KindPush,
		ProjectURL: "https://github.com/acme/widget",
		CommitSHA:  "0123456789abcdef0123456789abcdef01234567",
		GitRef:     branch,
		Committer:  committer,
	}
}

func TestDownstreamBuildPreCheckGating(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		modify  func(*core.JobConfig, *core.Event)
		allowed bool
	}{
		{
			name:    "push to configured branch with no allow-lists",
			modify:  func(*core.JobConfig, *core.Event) {},
			allowed: true,
		},
		{
			name: "push to unconfigured branch",
			modify: func(_ *core.JobConfig, e *core.Event) {
				e.GitRef = "epel9"
			},
			allowed: false,
		},
		{
			name: "committer on the allow-list",
			modify: func(j *core.JobConfig, _ *core.Event) {
				j.AllowedCommitters = []string{"alice"}
			},
			allowed: true,
		},
		{
			name: "committer not on the allow-list",
			modify: func(j *core.JobConfig, _ *core.Event) {
				j.AllowedCommitters = []string{"bob"}
			},
			allowed: false,
		},
		{
			name: "pr author checked instead of committer",
			modify: func(j *core.JobConfig, e *core.Event) {
				j.AllowedCommitters = []string{"bob"}
				j.AllowedPRAuthors = []string{"alice"}
				e.Payload = map[string]string{"pr_author": "alice"}
			},
			allowed: true,
		},
		{
			name: "pr author not allowed",
			modify: func(j *core.JobConfig, e *core.Event) {
				j.AllowedPRAuthors = []string{"bob"}
				e.Payload = map[string]string{"pr_author": "alice"}
			},
			allowed: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pkg, job := downstreamPkg("f40")
			event := pushEvent("f40", "alice")
			tc.modify(&job, &event)

			h := NewDownstreamBuildHandler(env.deps)(taskFor(TaskDownstreamBuild, pkg, job, event), nil)
			assert.Equal(t, tc.allowed, h.PreCheck(context.Background()))
		})
	}
}

func TestDownstreamBuildCommentActorGating(t *testing.T) {
	env := newTestEnv(t)
	pkg, job := downstreamPkg("f40")
	job.AllowedPRAuthors = []string{"alice"}

	event := core.Event{
		Kind:       core.KindPRComment,
		ProjectURL: "https://github.com/acme/widget",
		Comment:    "/warden downstream-build",
		Actor:      "mallory",
	}
	h := NewDownstreamBuildHandler(env.deps)(taskFor(TaskDownstreamBuild, pkg, job, event), nil)
	assert.False(t, h.PreCheck(context.Background()))

	event.Actor = "alice"
	h = NewDownstreamBuildHandler(env.deps)(taskFor(TaskDownstreamBuild, pkg, job, event), nil)
	assert.True(t, h.PreCheck(context.Background()))
}

func TestDownstreamBuildTriggers(t *testing.T) {
	env := newTestEnv(t)
	var triggered []string
	env.executor.downstreamBuild = func(branch string) error {
		triggered = append(triggered, branch)
		return nil
	}

	pkg, job := downstreamPkg("f40")
	result, err := env.invoke(t, NewDownstreamBuildHandler(env.deps), taskFor(TaskDownstreamBuild, pkg, job, pushEvent("f40", "alice")))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"f40"}, triggered)
}

func TestDownstreamBuildRejectionFilesIssue(t *testing.T) {
	env := newTestEnv(t)
	env.executor.downstreamBuild = func(string) error {
		return &core.RequestError{Operation: "downstream build", Reason: "package is orphaned"}
	}

	pkg, job := downstreamPkg("f40")
	job.IssueRepository = "https://github.com/acme/notifications"

	result, err := env.invoke(t, NewDownstreamBuildHandler(env.deps), taskFor(TaskDownstreamBuild, pkg, job, pushEvent("f40", "alice")))
	require.NoError(t, err)
	assert.False(t, result.Success)

	bodies := env.reporter.issues["Downstream build failed to be triggered"]
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "`f40`")
	assert.Contains(t, bodies[0], "package is orphaned")
}

func TestDownstreamBuildUnclassifiedErrorPropagates(t *testing.T) {
	env := newTestEnv(t)
	env.executor.downstreamBuild = func(string) error {
		return context.DeadlineExceeded
	}

	pkg, job := downstreamPkg("f40")
	_, err := env.invoke(t, NewDownstreamBuildHandler(env.deps), taskFor(TaskDownstreamBuild, pkg, job, pushEvent("f40", "alice")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downstream build")
}
