package handlers

import (
	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
)

// RegisterAll registers every handler descriptor into the registry. It is
// called exactly once at process start, before any event is dispatched; the
// registry is immutable afterwards.
func RegisterAll(reg *dispatch.Registry, deps Deps) error {
	descriptors := []*dispatch.Descriptor{
		{
			TaskName:           TaskReleaseSync,
			ConfiguredAs:       []core.JobType{core.JobTypeReleaseSync},
			ReactsTo:           []core.EventKind{core.KindRelease, core.KindComment, core.KindCheckRerunRelease},
			Commands:           []string{"release-sync", "update"},
			CheckRerunPrefixes: []string{"release-sync"},
			New:                NewReleaseSyncHandler(deps),
		},
		{
			TaskName:           TaskBuild,
			ConfiguredAs:       []core.JobType{core.JobTypeBuild},
			RequiredFor:        []core.JobType{core.JobTypeTests},
			ReactsTo:           []core.EventKind{core.KindPullRequest, core.KindPush, core.KindRelease, core.KindComment, core.KindCheckRerunCommit},
			Commands:           []string{"build", "rebuild"},
			CheckRerunPrefixes: []string{"build"},
			New:                NewBuildHandler(deps),
		},
		{
			// Same job type as TaskBuild: start and end of the same
			// pipeline, distinguished by the event kinds they react to.
			TaskName:     TaskBuildResult,
			ConfiguredAs: []core.JobType{core.JobTypeBuild},
			RequiredFor:  []core.JobType{core.JobTypeTests},
			ReactsTo:     []core.EventKind{core.KindBuildResult},
			New:          NewBuildResultHandler(deps),
		},
		{
			TaskName:           TaskTests,
			ConfiguredAs:       []core.JobType{core.JobTypeTests},
			ReactsTo:           []core.EventKind{core.KindPullRequest, core.KindComment, core.KindCheckRerunCommit},
			Commands:           []string{"test", "retest"},
			CheckRerunPrefixes: []string{"testing"},
			New:                NewTestHandler(deps),
		},
		{
			TaskName:     TaskTestResult,
			ConfiguredAs: []core.JobType{core.JobTypeTests},
			ReactsTo:     []core.EventKind{core.KindTestResult},
			New:          NewTestResultHandler(deps),
		},
		{
			TaskName:     TaskDownstreamBuild,
			ConfiguredAs: []core.JobType{core.JobTypeDownstreamBuild},
			ReactsTo:     []core.EventKind{core.KindPush, core.KindPRComment},
			Commands:     []string{"downstream-build"},
			New:          NewDownstreamBuildHandler(deps),
		},
	}

	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}
