package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/release-warden/internal/core"
)

const sampleConfig = `
downstream_package: widget
jobs:
  - job: build
    trigger: pull_request
    targets:
      - fedora-40-x86_64
      - fedora-41-x86_64
  - job: release-sync
    trigger: release
    targets:
      - f40
      - f41
    issue_repository: https://github.com/acme/notifications
  - job: downstream-build
    trigger: commit
    targets:
      - f40
    allowed_committers:
      - alice
`

func TestParsePackageConfig(t *testing.T) {
	pkg, err := ParsePackageConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "widget", pkg.DownstreamPackage)
	require.Len(t, pkg.Jobs, 3)

	build := pkg.Jobs[0]
	assert.Equal(t, core.JobTypeBuild, build.Type)
	assert.Equal(t, core.TriggerPullRequest, build.Trigger)
	assert.Equal(t, []string{"fedora-40-x86_64", "fedora-41-x86_64"}, build.Targets)

	sync := pkg.Jobs[1]
	assert.Equal(t, core.JobTypeReleaseSync, sync.Type)
	assert.Equal(t, "https://github.com/acme/notifications", sync.IssueRepository)

	downstream := pkg.Jobs[2]
	assert.Equal(t, core.JobTypeDownstreamBuild, downstream.Type)
	assert.Equal(t, []string{"alice"}, downstream.AllowedCommitters)
}

func TestParsePackageConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "invalid yaml",
			yaml: "jobs: [",
		},
		{
			name: "unknown job type",
			yaml: "jobs:\n  - job: deploy\n    trigger: release\n",
		},
		{
			name: "unknown trigger",
			yaml: "jobs:\n  - job: build\n    trigger: cron\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePackageConfig([]byte(tc.yaml))
			assert.ErrorIs(t, err, ErrConfigParsing)
		})
	}
}

func TestLoadPackageConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PackageConfigFileName), []byte(sampleConfig), 0o644))

	pkg, err := LoadPackageConfig(dir)
	require.NoError(t, err)
	assert.Len(t, pkg.Jobs, 3)

	_, err = LoadPackageConfig(t.TempDir())
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestDirConfigProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.yml"), []byte(sampleConfig), 0o644))

	provider := &DirConfigProvider{Dir: dir}

	pkg, err := provider.PackageConfig(context.Background(), "https://github.com/acme/widget", "")
	require.NoError(t, err)
	assert.Len(t, pkg.Jobs, 3)
	// A config without project_url inherits it from the lookup.
	assert.Equal(t, "https://github.com/acme/widget", pkg.ProjectURL)

	// Trailing slash and .git suffix do not change the resolved name.
	_, err = provider.PackageConfig(context.Background(), "https://github.com/acme/widget.git", "")
	require.NoError(t, err)
	_, err = provider.PackageConfig(context.Background(), "https://github.com/acme/widget/", "")
	require.NoError(t, err)

	_, err = provider.PackageConfig(context.Background(), "https://github.com/acme/unknown", "")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}
