// Package reconcile recovers from lost completion notifications: it
// periodically re-queries the external systems of record for targets stuck in
// a non-terminal status and drives them to a terminal one, either through the
// normal completion path or by forcing a failure after a staleness cutoff.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
	"github.com/sevigo/release-warden/internal/telemetry"
)

// DefaultStalenessCutoff is how long after submission an unfinished external
// job is declared lost.
const DefaultStalenessCutoff = 14 * 24 * time.Hour

// Babysitter runs the reconciliation sweeps. It holds no locks: every status
// write is conditioned on the target's current status, so a live callback
// racing a sweep always wins.
type Babysitter struct {
	store      core.Store
	builds     core.BuildSystem
	tests      core.TestSystem
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	cutoff     time.Duration
	now        func() time.Time
}

// New wires a babysitter. cutoff <= 0 selects DefaultStalenessCutoff.
func New(store core.Store, builds core.BuildSystem, tests core.TestSystem, dispatcher *dispatch.Dispatcher, cutoff time.Duration, logger *slog.Logger) *Babysitter {
	if cutoff <= 0 {
		cutoff = DefaultStalenessCutoff
	}
	return &Babysitter{
		store:      store,
		builds:     builds,
		tests:      tests,
		dispatcher: dispatcher,
		logger:     logger,
		cutoff:     cutoff,
		now:        time.Now,
	}
}

// SweepBuilds reconciles build targets stuck in a non-terminal status. The
// build farm is queried once per distinct correlation id, not once per
// target.
func (b *Babysitter) SweepBuilds(ctx context.Context) error {
	targets, err := b.store.TargetsByStatus(ctx, core.TargetKindBuild,
		core.TargetStatusNew, core.TargetStatusQueued, core.TargetStatusRunning, core.TargetStatusRetry)
	if err != nil {
		return fmt.Errorf("listing pending build targets: %w", err)
	}

	groups := make(map[string][]*core.Target)
	for _, t := range targets {
		if t.CorrelationID == "" {
			// Never submitted; the live invocation still owns it.
			continue
		}
		groups[t.CorrelationID] = append(groups[t.CorrelationID], t)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := b.reconcileBuildGroup(ctx, id, groups[id]); err != nil {
			b.logger.Error("build reconciliation failed", "correlation_id", id, "error", err)
		}
	}
	return nil
}

func (b *Babysitter) reconcileBuildGroup(ctx context.Context, correlationID string, group []*core.Target) error {
	result, err := b.builds.QueryBuild(ctx, correlationID)
	if err != nil {
		return fmt.Errorf("querying build farm: %w", err)
	}

	switch result.Outcome {
	case core.QueryNotFound:
		// The external job was lost or expired.
		for _, t := range group {
			b.forceError(ctx, "builds", t, "build "+correlationID+" no longer exists in the build farm")
		}
		return nil

	case core.QueryCompleted:
		// Fan the result out through the same completion path the live
		// callback takes.
		return b.replayBuildCompletion(ctx, correlationID, group, result)

	default:
		// Still pending. Force failure for anything past the cutoff so
		// a job the farm will never finish does not pin its run open.
		for _, t := range group {
			if b.stale(t) {
				b.forceError(ctx, "builds", t, "build did not finish within the staleness window")
			}
		}
		return nil
	}
}

func (b *Babysitter) replayBuildCompletion(ctx context.Context, correlationID string, group []*core.Target, result core.BuildQueryResult) error {
	run, err := b.store.GetRun(ctx, group[0].RunID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", group[0].RunID, err)
	}

	payload := make(map[string]string, len(result.ChrootStates)+1)
	for chroot, state := range result.ChrootStates {
		payload[chroot] = state
	}
	if result.ResultURL != "" {
		payload["url"] = result.ResultURL
	}

	event := core.Event{
		Kind:          core.KindBuildResult,
		ProjectURL:    run.TriggerEvent.ProjectURL,
		CommitSHA:     run.TriggerEvent.CommitSHA,
		CorrelationID: correlationID,
		Result:        payload,
	}
	b.dispatcher.RunLocal(ctx, event, run.PackageConfig)
	telemetry.TargetsReconciled.WithLabelValues("builds", "replayed").Add(float64(len(group)))
	return nil
}

// SweepTests reconciles test targets stuck in new, queued, or running. Stale
// targets are failed without querying: the farm has already discarded the
// record and the query would only burn quota.
func (b *Babysitter) SweepTests(ctx context.Context) error {
	targets, err := b.store.TargetsByStatus(ctx, core.TargetKindTest,
		core.TargetStatusNew, core.TargetStatusQueued, core.TargetStatusRunning)
	if err != nil {
		return fmt.Errorf("listing pending test targets: %w", err)
	}

	for _, t := range targets {
		if b.stale(t) {
			b.forceError(ctx, "tests", t, "test pipeline did not finish within the staleness window")
			continue
		}
		if t.CorrelationID == "" {
			continue
		}

		result, err := b.tests.QueryTestRun(ctx, t.CorrelationID)
		if err != nil {
			b.logger.Error("test farm query failed", "correlation_id", t.CorrelationID, "error", err)
			continue
		}
		if result.Outcome == core.QueryNotFound {
			b.forceError(ctx, "tests", t, "test pipeline "+t.CorrelationID+" no longer exists in the test farm")
			continue
		}
		if result.Outcome != core.QueryCompleted {
			continue
		}

		run, err := b.store.GetRun(ctx, t.RunID)
		if err != nil {
			b.logger.Error("loading run for test replay failed", "run_id", t.RunID, "error", err)
			continue
		}
		event := core.Event{
			Kind:          core.KindTestResult,
			ProjectURL:    run.TriggerEvent.ProjectURL,
			CommitSHA:     run.TriggerEvent.CommitSHA,
			CorrelationID: t.CorrelationID,
			Result:        map[string]string{"state": result.State, "url": result.ResultURL},
		}
		b.dispatcher.RunLocal(ctx, event, run.PackageConfig)
		telemetry.TargetsReconciled.WithLabelValues("tests", "replayed").Inc()
	}
	return nil
}

func (b *Babysitter) stale(t *core.Target) bool {
	if t.SubmittedAt == nil {
		return false
	}
	return b.now().Sub(*t.SubmittedAt) > b.cutoff
}

// forceError drives a target to error, conditioned on it still being
// non-terminal. A target finished by a live callback in the meantime is left
// untouched.
func (b *Babysitter) forceError(ctx context.Context, sweep string, t *core.Target, reason string) {
	moved, err := b.store.SetTargetStatusIf(ctx, t.ID, core.TargetStatusError,
		core.TargetStatusNew, core.TargetStatusQueued, core.TargetStatusRunning, core.TargetStatusRetry)
	if err != nil {
		b.logger.Error("forcing target failure failed", "target", t.ID, "error", err)
		return
	}
	if !moved {
		return
	}
	if err := b.store.SetTargetError(ctx, t.ID, reason); err != nil {
		b.logger.Error("recording forced failure reason failed", "target", t.ID, "error", err)
	}
	if err := b.store.SetTargetFinishedAt(ctx, t.ID, b.now()); err != nil {
		b.logger.Error("stamping forced failure time failed", "target", t.ID, "error", err)
	}
	telemetry.TargetsReconciled.WithLabelValues(sweep, "forced_error").Inc()
	b.logger.Info("target force-failed by reconciliation", "target", t.ID, "key", t.Key, "reason", reason)
}
