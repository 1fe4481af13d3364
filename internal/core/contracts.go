package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores for missing runs or targets.
var ErrNotFound = errors.New("core: not found")

// Store persists runs and targets. Implementations must make every write
// conditional on the target's current status where the method signature asks
// for it; that conditioning is the sole concurrency-safety mechanism between
// live handlers and the reconciliation loop.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	SetRunStatus(ctx context.Context, id string, status RunStatus) error
	SetRunFinishedAt(ctx context.Context, id string, at time.Time) error

	CreateTarget(ctx context.Context, target *Target) error
	GetTarget(ctx context.Context, id string) (*Target, error)
	TargetsForRun(ctx context.Context, runID string) ([]*Target, error)
	TargetsByStatus(ctx context.Context, kind TargetKind, statuses ...TargetStatus) ([]*Target, error)
	TargetsByCorrelationID(ctx context.Context, correlationID string) ([]*Target, error)

	// SetTargetStatusIf moves the target to the given status only when its
	// current status is one of from, and reports whether the update was
	// applied. A target already moved on by a concurrent writer is left
	// untouched and false is returned.
	SetTargetStatusIf(ctx context.Context, id string, to TargetStatus, from ...TargetStatus) (bool, error)

	SetTargetCorrelationID(ctx context.Context, id, correlationID string) error
	SetTargetSubmittedAt(ctx context.Context, id string, at time.Time) error
	SetTargetStartedAt(ctx context.Context, id string, at time.Time) error
	SetTargetFinishedAt(ctx context.Context, id string, at time.Time) error
	SetTargetResultURL(ctx context.Context, id, url string) error
	SetTargetLogs(ctx context.Context, id, logs string) error
	SetTargetError(ctx context.Context, id, errText string) error
}

// ReportState is the status published to the code-review system.
type ReportState string

const (
	ReportRunning ReportState = "running"
	ReportPending ReportState = "pending"
	ReportSuccess ReportState = "success"
	ReportFailure ReportState = "failure"
)

// Reporter publishes statuses and failure notifications to the code-review
// system. Reporting is fire-and-forget: callers log failures and move on.
type Reporter interface {
	ReportStatus(ctx context.Context, event Event, checkName string, state ReportState, description, url string) error

	// CreateIssueIfNeeded files a notification issue in the given
	// repository, or comments on an existing open issue with the same
	// title.
	CreateIssueIfNeeded(ctx context.Context, repoURL, title, body string) error
}

// ErrArchiveNotReady is the recognized transient executor failure: the
// upstream artifact has not been published yet and the attempt should be
// retried later.
var ErrArchiveNotReady = errors.New("core: upstream archive not yet available")

// RequestError is a permanent, domain-level rejection from the operation
// executor. It fails the target but never the sibling targets.
type RequestError struct {
	Operation string
	Reason    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Operation, e.Reason)
}

// IsRequestError reports whether err is a permanent executor rejection.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// Executor performs the actual source-control and packaging operations. The
// core interprets only success, ErrArchiveNotReady, and RequestError; every
// other failure is unclassified and handled by the retry controller.
type Executor interface {
	// SyncRelease creates a downstream pull request syncing the tagged
	// release to the given branch. Returns the pull request URL.
	SyncRelease(ctx context.Context, pkg PackageConfig, branch, tag string) (string, error)

	// SubmitBuild submits one build covering all chroots and returns the
	// external correlation id and a result URL.
	SubmitBuild(ctx context.Context, pkg PackageConfig, ref string, chroots []string, scratch bool) (string, string, error)

	// SubmitTests submits a test pipeline for one target and returns the
	// external pipeline id.
	SubmitTests(ctx context.Context, pkg PackageConfig, ref, target string) (string, error)

	// SubmitDownstreamBuild triggers a build in the downstream build
	// system for the given branch, without waiting for it.
	SubmitDownstreamBuild(ctx context.Context, pkg PackageConfig, branch string, scratch bool) error
}

// QueryOutcome classifies an external system-of-record lookup.
type QueryOutcome string

const (
	QueryNotFound  QueryOutcome = "not_found"
	QueryPending   QueryOutcome = "pending"
	QueryCompleted QueryOutcome = "completed"
)

// BuildQueryResult is the answer of the build farm for one correlation id.
type BuildQueryResult struct {
	Outcome QueryOutcome
	// ChrootStates maps chroot name to "succeeded" or a failure state;
	// populated only for completed builds.
	ChrootStates map[string]string
	ResultURL    string
}

// TestQueryResult is the answer of the test farm for one pipeline id.
type TestQueryResult struct {
	Outcome   QueryOutcome
	State     string
	ResultURL string
}

// BuildSystem is the external system of record for builds.
type BuildSystem interface {
	QueryBuild(ctx context.Context, correlationID string) (BuildQueryResult, error)
}

// TestSystem is the external system of record for test pipelines.
type TestSystem interface {
	QueryTestRun(ctx context.Context, correlationID string) (TestQueryResult, error)
}

// ConfigProvider resolves the package configuration for a project at a given
// ref. The service is deliberately ignorant of how the file is obtained.
type ConfigProvider interface {
	PackageConfig(ctx context.Context, projectURL, ref string) (PackageConfig, error)
}
