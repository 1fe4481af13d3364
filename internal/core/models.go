package core

import "time"

// TargetKind distinguishes how a target's external lifecycle is tracked.
type TargetKind string

const (
	// TargetKindOneShot targets (e.g. release-sync branches) are done once
	// the external operation accepts them.
	TargetKindOneShot TargetKind = "one-shot"

	// TargetKindBuild and TargetKindTest targets are accepted first and
	// complete later via a callback or a reconciliation sweep.
	TargetKindBuild TargetKind = "build"
	TargetKindTest  TargetKind = "test"
)

// Run is the parent unit of work created for one handler invocation.
type Run struct {
	ID      string    `db:"id"`
	JobType JobType   `db:"job_type"`
	Status  RunStatus `db:"status"`

	// PackageConfig and TriggerEvent are snapshots taken at creation so a
	// resumed attempt or a reconciliation sweep can rebuild the invocation
	// context without the original message.
	PackageConfig PackageConfig `db:"-"`
	TriggerEvent  Event         `db:"-"`

	CreatedAt  time.Time  `db:"created_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

// Target is one sub-unit of a Run: a destination branch, a build chroot, or a
// test pipeline.
type Target struct {
	ID    string     `db:"id"`
	RunID string     `db:"run_id"`
	Kind  TargetKind `db:"kind"`

	// Key identifies the target within its run: branch name, chroot name,
	// or pipeline id.
	Key string `db:"key"`

	Status TargetStatus `db:"status"`

	// CorrelationID ties the target to the external system of record
	// (remote build id, test pipeline id).
	CorrelationID string `db:"correlation_id"`

	SubmittedAt *time.Time `db:"submitted_at"`
	StartedAt   *time.Time `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`

	ResultURL string `db:"result_url"`
	Logs      string `db:"logs"`
	ErrorText string `db:"error_text"`
}
