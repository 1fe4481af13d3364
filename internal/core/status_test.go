package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTargetTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    TargetStatus
		to      TargetStatus
		wantErr bool
	}{
		{name: "new to queued", from: TargetStatusNew, to: TargetStatusQueued},
		{name: "new to running", from: TargetStatusNew, to: TargetStatusRunning},
		{name: "queued to running", from: TargetStatusQueued, to: TargetStatusRunning},
		{name: "running to submitted", from: TargetStatusRunning, to: TargetStatusSubmitted},
		{name: "running to retry", from: TargetStatusRunning, to: TargetStatusRetry},
		{name: "retry to running", from: TargetStatusRetry, to: TargetStatusRunning},
		{name: "anything to error", from: TargetStatusQueued, to: TargetStatusError},
		{name: "no self transition", from: TargetStatusRunning, to: TargetStatusRunning, wantErr: true},
		{name: "no backward move", from: TargetStatusRunning, to: TargetStatusQueued, wantErr: true},
		{name: "submitted is terminal", from: TargetStatusSubmitted, to: TargetStatusRunning, wantErr: true},
		{name: "error is terminal", from: TargetStatusError, to: TargetStatusRunning, wantErr: true},
		{name: "queued cannot jump to submitted", from: TargetStatusQueued, to: TargetStatusSubmitted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargetTransition("t-1", tt.from, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsTransitionError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTargetTransitionUnknownStatus(t *testing.T) {
	err := ValidateTargetTransition("t-1", TargetStatus("bogus"), TargetStatusError)
	require.Error(t, err)
	assert.False(t, IsTransitionError(err))
}

func TestAggregateRunStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []TargetStatus
		want     RunStatus
	}{
		{
			name:     "all submitted",
			statuses: []TargetStatus{TargetStatusSubmitted, TargetStatusSubmitted},
			want:     RunStatusFinished,
		},
		{
			name:     "error wins once settled",
			statuses: []TargetStatus{TargetStatusSubmitted, TargetStatusError},
			want:     RunStatusError,
		},
		{
			name:     "retry keeps the run open",
			statuses: []TargetStatus{TargetStatusSubmitted, TargetStatusRetry},
			want:     RunStatusRunning,
		},
		{
			name:     "queued keeps the run open despite an error",
			statuses: []TargetStatus{TargetStatusError, TargetStatusQueued},
			want:     RunStatusRunning,
		},
		{
			name:     "no targets means finished",
			statuses: nil,
			want:     RunStatusFinished,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateRunStatus(tt.statuses))
		})
	}
}

func TestTargetStatusPredicates(t *testing.T) {
	assert.True(t, TargetStatusSubmitted.Terminal())
	assert.True(t, TargetStatusError.Terminal())
	assert.False(t, TargetStatusRetry.Terminal())

	assert.True(t, TargetStatusNew.Processable())
	assert.True(t, TargetStatusRetry.Processable())
	assert.False(t, TargetStatusSubmitted.Processable())
	assert.False(t, TargetStatusError.Processable())
}
