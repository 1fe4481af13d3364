// Package core defines the essential data structures and collaborator
// interfaces that form the backbone of the application. These components are
// designed to be abstract, allowing for flexible and decoupled implementations
// of the dispatch and reconciliation logic.
package core

// EventKind identifies the kind of trigger an Event describes.
type EventKind string

const (
	// KindAny is the root of the kind hierarchy. Handlers never register
	// for it directly.
	KindAny EventKind = "any"

	KindRelease     EventKind = "release"
	KindPush        EventKind = "push"
	KindPullRequest EventKind = "pull-request"

	// KindComment is the abstract parent of the two comment kinds. Handlers
	// registered for KindComment accept both.
	KindComment      EventKind = "comment"
	KindIssueComment EventKind = "issue-comment"
	KindPRComment    EventKind = "pr-comment"

	// KindCheckRerun covers re-run requests coming from the code-review UI.
	KindCheckRerun        EventKind = "check-rerun"
	KindCheckRerunRelease EventKind = "check-rerun-release"
	KindCheckRerunCommit  EventKind = "check-rerun-commit"

	// KindBuildResult and KindTestResult are completion callbacks from the
	// external build farm and test farm. The reconciliation loop synthesizes
	// the same kinds when it recovers a lost callback.
	KindBuildResult EventKind = "build-result"
	KindTestResult  EventKind = "test-result"
)

// kindParents encodes the is-a relation between event kinds. An event of a
// child kind also matches handlers registered for any ancestor kind.
var kindParents = map[EventKind]EventKind{
	KindRelease:           KindAny,
	KindPush:              KindAny,
	KindPullRequest:       KindAny,
	KindComment:           KindAny,
	KindIssueComment:      KindComment,
	KindPRComment:         KindComment,
	KindCheckRerun:        KindAny,
	KindCheckRerunRelease: KindCheckRerun,
	KindCheckRerunCommit:  KindCheckRerun,
	KindBuildResult:       KindAny,
	KindTestResult:        KindAny,
}

// Matches reports whether an event of kind k is acceptable to a handler
// registered for the given kind, walking up the kind hierarchy.
func (k EventKind) Matches(registered EventKind) bool {
	for cur := k; ; {
		if cur == registered {
			return true
		}
		parent, ok := kindParents[cur]
		if !ok {
			return false
		}
		cur = parent
	}
}

// IsComment reports whether the kind carries a user comment body.
func (k EventKind) IsComment() bool {
	return k.Matches(KindComment)
}

// IsCheckRerun reports whether the kind is a check re-run request.
func (k EventKind) IsCheckRerun() bool {
	return k.Matches(KindCheckRerun)
}

// Event is the immutable, normalized description of one external trigger.
// Webhook handlers produce it from raw payloads; the reconciliation loop
// synthesizes it when replaying lost completion callbacks.
type Event struct {
	Kind       EventKind `json:"kind"`
	ProjectURL string    `json:"project_url"`

	CommitSHA  string `json:"commit_sha,omitempty"`
	GitRef     string `json:"git_ref,omitempty"`
	PRNumber   int    `json:"pr_number,omitempty"`
	ReleaseTag string `json:"release_tag,omitempty"`

	// Actor is the user who triggered the event; Committer is set for push
	// events where it may differ from the actor.
	Actor     string `json:"actor,omitempty"`
	Committer string `json:"committer,omitempty"`

	// Comment is the raw comment body for comment kinds.
	Comment string `json:"comment,omitempty"`

	// CheckName is the full check name for check-rerun kinds.
	CheckName string `json:"check_name,omitempty"`

	// CorrelationID and Result carry completion data for build-result and
	// test-result kinds.
	CorrelationID string            `json:"correlation_id,omitempty"`
	Result        map[string]string `json:"result,omitempty"`

	// Payload keeps fields of the raw trigger that the core does not
	// interpret but handlers may want to inspect.
	Payload map[string]string `json:"payload,omitempty"`
}
