package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventKindMatches(t *testing.T) {
	tests := []struct {
		name       string
		kind       EventKind
		registered EventKind
		want       bool
	}{
		{name: "exact match", kind: KindRelease, registered: KindRelease, want: true},
		{name: "pr comment matches comment", kind: KindPRComment, registered: KindComment, want: true},
		{name: "issue comment matches comment", kind: KindIssueComment, registered: KindComment, want: true},
		{name: "comment does not match pr comment", kind: KindComment, registered: KindPRComment, want: false},
		{name: "check rerun commit matches check rerun", kind: KindCheckRerunCommit, registered: KindCheckRerun, want: true},
		{name: "everything matches any", kind: KindTestResult, registered: KindAny, want: true},
		{name: "siblings do not match", kind: KindPush, registered: KindRelease, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Matches(tt.registered))
		})
	}
}

func TestEventKindPredicates(t *testing.T) {
	assert.True(t, KindPRComment.IsComment())
	assert.True(t, KindIssueComment.IsComment())
	assert.False(t, KindPush.IsComment())

	assert.True(t, KindCheckRerunRelease.IsCheckRerun())
	assert.True(t, KindCheckRerunCommit.IsCheckRerun())
	assert.False(t, KindBuildResult.IsCheckRerun())
}
