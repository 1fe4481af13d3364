package core

// JobType names one kind of configurable job.
type JobType string

const (
	JobTypeBuild           JobType = "build"
	JobTypeTests           JobType = "tests"
	JobTypeReleaseSync     JobType = "release-sync"
	JobTypeDownstreamBuild JobType = "downstream-build"
)

// TriggerType names the kind of trigger a job is configured to run on.
type TriggerType string

const (
	TriggerRelease     TriggerType = "release"
	TriggerPullRequest TriggerType = "pull_request"
	TriggerPush        TriggerType = "commit"
)

// JobConfig is one configured job of a package. A package may configure
// multiple jobs of the same type, disambiguated by Identifier.
type JobConfig struct {
	Type    JobType     `yaml:"job" json:"job"`
	Trigger TriggerType `yaml:"trigger" json:"trigger"`

	// Targets are the destination branches or build chroots the job fans
	// out to. Each target becomes one Target record at run time.
	Targets []string `yaml:"targets,omitempty" json:"targets,omitempty"`

	Identifier string `yaml:"identifier,omitempty" json:"identifier,omitempty"`

	AllowedPRAuthors  []string `yaml:"allowed_pr_authors,omitempty" json:"allowed_pr_authors,omitempty"`
	AllowedCommitters []string `yaml:"allowed_committers,omitempty" json:"allowed_committers,omitempty"`

	// Scratch requests a scratch (throwaway) build instead of a real one.
	Scratch bool `yaml:"scratch,omitempty" json:"scratch,omitempty"`

	// IssueRepository, when set, names the repository where failure
	// notification issues are filed.
	IssueRepository string `yaml:"issue_repository,omitempty" json:"issue_repository,omitempty"`

	// Synthesized marks a job config injected by the dependency resolver
	// rather than written by the user. Never set in configuration files.
	Synthesized bool `yaml:"-" json:"synthesized,omitempty"`
}

// Clone returns a copy of the job config with its own slices.
func (j JobConfig) Clone() JobConfig {
	c := j
	c.Targets = append([]string(nil), j.Targets...)
	c.AllowedPRAuthors = append([]string(nil), j.AllowedPRAuthors...)
	c.AllowedCommitters = append([]string(nil), j.AllowedCommitters...)
	return c
}

// PackageConfig is the per-package service configuration, usually loaded from
// a .release-warden.yml file in the package repository.
type PackageConfig struct {
	ProjectURL        string      `yaml:"project_url,omitempty" json:"project_url,omitempty"`
	DownstreamPackage string      `yaml:"downstream_package,omitempty" json:"downstream_package,omitempty"`
	Jobs              []JobConfig `yaml:"jobs" json:"jobs"`
}

// JobsOfType returns the configured jobs of the given type in declaration
// order.
func (p PackageConfig) JobsOfType(t JobType) []JobConfig {
	var out []JobConfig
	for _, j := range p.Jobs {
		if j.Type == t {
			out = append(out, j)
		}
	}
	return out
}

// HasJobOfType reports whether any job of the given type is configured.
func (p PackageConfig) HasJobOfType(t JobType) bool {
	for _, j := range p.Jobs {
		if j.Type == t {
			return true
		}
	}
	return false
}
