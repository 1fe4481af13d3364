package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sevigo/release-warden/internal/core"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParsing  = errors.New("config parsing failed")
)

// PackageConfigFileName is the per-package configuration file looked up in a
// repository checkout or in the package config directory.
const PackageConfigFileName = ".release-warden.yml"

// LoadPackageConfig loads and parses a .release-warden.yml file from a
// repository path.
func LoadPackageConfig(repoPath string) (core.PackageConfig, error) {
	configPath := filepath.Join(repoPath, PackageConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return core.PackageConfig{}, ErrConfigNotFound
		}
		return core.PackageConfig{}, fmt.Errorf("failed to read %s: %w", PackageConfigFileName, err)
	}
	return ParsePackageConfig(data)
}

// ParsePackageConfig parses package configuration YAML and validates the
// configured jobs.
func ParsePackageConfig(data []byte) (core.PackageConfig, error) {
	var pkg core.PackageConfig
	if err := yaml.Unmarshal(data, &pkg); err != nil {
		return core.PackageConfig{}, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}
	for i, job := range pkg.Jobs {
		if err := validateJob(job); err != nil {
			return core.PackageConfig{}, fmt.Errorf("%w: job %d: %w", ErrConfigParsing, i, err)
		}
	}
	return pkg, nil
}

func validateJob(job core.JobConfig) error {
	switch job.Type {
	case core.JobTypeBuild, core.JobTypeTests, core.JobTypeReleaseSync, core.JobTypeDownstreamBuild:
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
	switch job.Trigger {
	case core.TriggerRelease, core.TriggerPullRequest, core.TriggerPush:
	default:
		return fmt.Errorf("unknown trigger %q", job.Trigger)
	}
	return nil
}

// DirConfigProvider resolves package configuration from a local directory of
// YAML files named after the repository, e.g. packages/my-repo.yml.
type DirConfigProvider struct {
	Dir string
}

var _ core.ConfigProvider = (*DirConfigProvider)(nil)

func (p *DirConfigProvider) PackageConfig(_ context.Context, projectURL, _ string) (core.PackageConfig, error) {
	name := repoName(projectURL)
	if name == "" {
		return core.PackageConfig{}, fmt.Errorf("cannot derive package name from %q", projectURL)
	}

	data, err := os.ReadFile(filepath.Join(p.Dir, name+".yml"))
	if err != nil {
		if os.IsNotExist(err) {
			return core.PackageConfig{}, ErrConfigNotFound
		}
		return core.PackageConfig{}, err
	}

	pkg, err := ParsePackageConfig(data)
	if err != nil {
		return core.PackageConfig{}, err
	}
	if pkg.ProjectURL == "" {
		pkg.ProjectURL = projectURL
	}
	return pkg, nil
}

func repoName(projectURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(projectURL, "/"), ".git")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return ""
	}
	return trimmed[idx+1:]
}
