package dispatch

import "github.com/sevigo/release-warden/internal/core"

// supplementalJobs implements the job dependency resolution over the
// required-for axis: when a configured job type has prerequisite handlers
// registered (e.g. a build must happen before tests) and no job of a
// prerequisite's own type is configured, a job config for it is synthesized
// by cloning the dependent job's settings.
//
// A prerequisite is injected at most once per job type, never when its job
// type is already configured explicitly, and only when its handler is among
// the event's candidates.
func (r *Registry) supplementalJobs(pkg core.PackageConfig, candidates []*Descriptor) []core.JobConfig {
	var out []core.JobConfig
	injected := make(map[core.JobType]bool)

	for _, job := range pkg.Jobs {
		for _, d := range r.requiredFor[job.Type] {
			if !contains(candidates, d) || len(d.ConfiguredAs) == 0 {
				continue
			}
			// The synthesized job runs under the handler's primary job type.
			primary := d.ConfiguredAs[0]
			if injected[primary] {
				continue
			}
			if anyConfigured(pkg, d.ConfiguredAs) {
				continue
			}
			supplement := job.Clone()
			supplement.Type = primary
			supplement.Synthesized = true
			out = append(out, supplement)
			injected[primary] = true
		}
	}
	return out
}

func anyConfigured(pkg core.PackageConfig, types []core.JobType) bool {
	for _, t := range types {
		if pkg.HasJobOfType(t) {
			return true
		}
	}
	return false
}
