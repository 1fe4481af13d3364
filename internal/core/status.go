package core

import (
	"errors"
	"fmt"
)

// RunStatus is the aggregate status of a Run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusError    RunStatus = "error"
)

// TargetStatus is the lifecycle status of a single Target.
type TargetStatus string

const (
	// TargetStatusNew is the initial status of a target whose external
	// pipeline record exists but has not been queued yet.
	TargetStatusNew TargetStatus = "new"

	TargetStatusQueued  TargetStatus = "queued"
	TargetStatusRunning TargetStatus = "running"

	// TargetStatusRetry is re-enterable: a target left in retry is picked
	// up by the next scheduled attempt and moves back to running.
	TargetStatusRetry TargetStatus = "retry"

	// TargetStatusSubmitted is terminal success: the external operation
	// accepted the work. For build and test targets the external completion
	// is tracked separately by the reconciliation loop.
	TargetStatusSubmitted TargetStatus = "submitted"

	// TargetStatusError is terminal failure.
	TargetStatusError TargetStatus = "error"
)

// targetTransitions lists the allowed forward transitions per status.
// Self-transitions are deliberately absent: setting the current status again
// is treated as an error so duplicate sweeps stay observable.
var targetTransitions = map[TargetStatus][]TargetStatus{
	TargetStatusNew:       {TargetStatusQueued, TargetStatusRunning, TargetStatusError},
	TargetStatusQueued:    {TargetStatusRunning, TargetStatusError},
	TargetStatusRetry:     {TargetStatusRunning, TargetStatusError},
	TargetStatusRunning:   {TargetStatusSubmitted, TargetStatusRetry, TargetStatusError},
	TargetStatusSubmitted: {},
	TargetStatusError:     {},
}

// Terminal reports whether the status is final for the target lifecycle.
func (s TargetStatus) Terminal() bool {
	return s == TargetStatusSubmitted || s == TargetStatusError
}

// Processable reports whether a handler invocation should (re-)process a
// target in this status. Targets outside this set were already handled and
// must be skipped, keeping re-invocations idempotent.
func (s TargetStatus) Processable() bool {
	switch s {
	case TargetStatusNew, TargetStatusQueued, TargetStatusRetry, TargetStatusRunning:
		return true
	}
	return false
}

// TransitionError signals an attempt to move a target backward or sideways in
// its state machine.
type TransitionError struct {
	TargetID string
	From     TargetStatus
	To       TargetStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("target %s: invalid transition from %s to %s", e.TargetID, e.From, e.To)
}

// ValidateTargetTransition checks that from -> to is an allowed forward move.
func ValidateTargetTransition(targetID string, from, to TargetStatus) error {
	allowed, ok := targetTransitions[from]
	if !ok {
		return fmt.Errorf("target %s: unknown status %q", targetID, from)
	}
	for _, candidate := range allowed {
		if candidate == to {
			return nil
		}
	}
	return &TransitionError{TargetID: targetID, From: from, To: to}
}

// IsTransitionError reports whether err is a state machine violation.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// AggregateRunStatus derives the Run status from its target statuses.
// Any target still in retry keeps the run running so a later attempt can
// re-enter it; error wins over finished once every target is settled.
func AggregateRunStatus(statuses []TargetStatus) RunStatus {
	hasError := false
	for _, s := range statuses {
		switch {
		case s == TargetStatusError:
			hasError = true
		case !s.Terminal():
			return RunStatusRunning
		}
	}
	if hasError {
		return RunStatusError
	}
	return RunStatusFinished
}
