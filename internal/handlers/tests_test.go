package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/release-warden/internal/core"
)

func testsPkg(targets ...string) (core.PackageConfig, core.JobConfig) {
	job := core.JobConfig{
		Type:    core.JobTypeTests,
		Trigger: core.TriggerPullRequest,
		Targets: targets,
	}
	return core.PackageConfig{
		ProjectURL: "https://github.com/acme/widget",
		Jobs:       []core.JobConfig{job},
	}, job
}

func TestTestSubmissionFansOutPerTarget(t *testing.T) {
	env := newTestEnv(t)
	pipelines := map[string]string{
		"fedora-40-x86_64": "tf-1",
		"fedora-41-x86_64": "tf-2",
	}
	env.executor.submitTests = func(ref, target string) (string, error) {
		return pipelines[target], nil
	}

	pkg, job := testsPkg("fedora-40-x86_64", "fedora-41-x86_64")
	result, err := env.invoke(t, NewTestHandler(env.deps), taskFor(TaskTests, pkg, job, prEvent()))
	require.NoError(t, err)
	assert.True(t, result.Success)

	targets := runTargets(t, env, singleRunID(t, env, core.TargetKindTest))
	require.Len(t, targets, 2)
	for target, tgt := range targets {
		assert.Equal(t, core.TargetStatusQueued, tgt.Status, target)
		assert.Equal(t, pipelines[target], tgt.CorrelationID)
		assert.NotNil(t, tgt.SubmittedAt)
	}
}

func TestTestSubmissionRejectionIsIsolated(t *testing.T) {
	env := newTestEnv(t)
	env.executor.submitTests = func(ref, target string) (string, error) {
		if target == "fedora-40-x86_64" {
			return "", &core.RequestError{Operation: "test submission", Reason: "unsupported arch"}
		}
		return "tf-9", nil
	}

	pkg, job := testsPkg("fedora-40-x86_64", "fedora-41-x86_64")
	result, err := env.invoke(t, NewTestHandler(env.deps), taskFor(TaskTests, pkg, job, prEvent()))
	require.NoError(t, err)
	assert.False(t, result.Success)

	targets := runTargets(t, env, singleRunID(t, env, core.TargetKindTest))
	assert.Equal(t, core.TargetStatusError, targets["fedora-40-x86_64"].Status)
	assert.Contains(t, targets["fedora-40-x86_64"].ErrorText, "unsupported arch")
	// The sibling target is submitted despite the rejection.
	assert.Equal(t, core.TargetStatusQueued, targets["fedora-41-x86_64"].Status)
}

func TestTestResultSettlesPipeline(t *testing.T) {
	env := newTestEnv(t)

	run := &core.Run{
		ID:            "run-tests",
		JobType:       core.JobTypeTests,
		Status:        core.RunStatusRunning,
		PackageConfig: core.PackageConfig{ProjectURL: "https://github.com/acme/widget"},
		TriggerEvent:  prEvent(),
		CreatedAt:     testClock,
	}
	require.NoError(t, env.store.CreateRun(context.Background(), run))
	submitted := testClock
	require.NoError(t, env.store.CreateTarget(context.Background(), &core.Target{
		ID:            "tgt-1",
		RunID:         run.ID,
		Kind:          core.TargetKindTest,
		Key:           "fedora-40-x86_64",
		Status:        core.TargetStatusQueued,
		CorrelationID: "tf-1",
		SubmittedAt:   &submitted,
	}))

	event := prEvent()
	event.Kind = core.KindTestResult
	event.CorrelationID = "tf-1"
	event.Result = map[string]string{"state": "passed", "url": "https://tf.example/runs/tf-1"}

	_, job := testsPkg("fedora-40-x86_64")
	result, err := env.invoke(t, NewTestResultHandler(env.deps), taskFor(TaskTestResult, core.PackageConfig{}, job, event))
	require.NoError(t, err)
	assert.True(t, result.Success)

	targets := runTargets(t, env, run.ID)
	tgt := targets["fedora-40-x86_64"]
	assert.Equal(t, core.TargetStatusSubmitted, tgt.Status)
	assert.Equal(t, "https://tf.example/runs/tf-1", tgt.ResultURL)
	assert.NotNil(t, tgt.FinishedAt)

	got, err := env.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFinished, got.Status)

	event.Result = map[string]string{"state": "error"}
	_, err = env.invoke(t, NewTestResultHandler(env.deps), taskFor(TaskTestResult, core.PackageConfig{}, job, event))
	require.NoError(t, err)
	// The settled target is left untouched by the late duplicate.
	targets = runTargets(t, env, run.ID)
	assert.Equal(t, core.TargetStatusSubmitted, targets["fedora-40-x86_64"].Status)
}

func TestTestResultFailureRecordsState(t *testing.T) {
	env := newTestEnv(t)

	run := &core.Run{
		ID:           "run-tests",
		JobType:      core.JobTypeTests,
		Status:       core.RunStatusRunning,
		TriggerEvent: prEvent(),
		CreatedAt:    testClock,
	}
	require.NoError(t, env.store.CreateRun(context.Background(), run))
	require.NoError(t, env.store.CreateTarget(context.Background(), &core.Target{
		ID: "tgt-1", RunID: run.ID, Kind: core.TargetKindTest, Key: "fedora-40-x86_64",
		Status: core.TargetStatusRunning, CorrelationID: "tf-1",
	}))

	event := prEvent()
	event.Kind = core.KindTestResult
	event.CorrelationID = "tf-1"
	event.Result = map[string]string{"state": "failed"}

	_, job := testsPkg("fedora-40-x86_64")
	_, err := env.invoke(t, NewTestResultHandler(env.deps), taskFor(TaskTestResult, core.PackageConfig{}, job, event))
	require.NoError(t, err)

	targets := runTargets(t, env, run.ID)
	assert.Equal(t, core.TargetStatusError, targets["fedora-40-x86_64"].Status)
	assert.Contains(t, targets["fedora-40-x86_64"].ErrorText, "failed")

	got, err := env.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusError, got.Status)
}
