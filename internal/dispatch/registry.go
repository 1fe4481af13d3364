package dispatch

import (
	"context"
	"fmt"

	"github.com/sevigo/release-warden/internal/core"
)

// Result is the outcome of one handler invocation.
type Result struct {
	Success bool
	Message string
}

// Handler is one executable unit of logic for an (event, job) pairing.
type Handler interface {
	// PreCheck reports whether the invocation should run at all. A false
	// return is a deliberate no-op, not a failure: nothing is recorded.
	PreCheck(ctx context.Context) bool

	// Run executes the handler. An error return means the failure escaped
	// the per-target boundary and is handed to the retry controller.
	Run(ctx context.Context) (Result, error)
}

// Factory builds a handler instance for one task attempt.
type Factory func(task Task, ctrl *Controller) Handler

// Descriptor is the static metadata of one handler implementation. Descriptors
// are registered once at process start and immutable afterwards.
type Descriptor struct {
	// TaskName is the stable queue message name for this handler.
	TaskName string

	// ConfiguredAs lists the job types this handler runs for.
	ConfiguredAs []core.JobType

	// RequiredFor lists the job types this handler is a prerequisite of.
	RequiredFor []core.JobType

	// ReactsTo lists the event kinds this handler accepts, matched through
	// the kind hierarchy.
	ReactsTo []core.EventKind

	// Commands and CheckRerunPrefixes invoke the handler from comments and
	// check re-run requests.
	Commands           []string
	CheckRerunPrefixes []string

	New Factory
}

func (d *Descriptor) reactsTo(kind core.EventKind) bool {
	for _, registered := range d.ReactsTo {
		if kind.Matches(registered) {
			return true
		}
	}
	return false
}

func (d *Descriptor) configuredAs(t core.JobType) bool {
	for _, jt := range d.ConfiguredAs {
		if jt == t {
			return true
		}
	}
	return false
}

// Match pairs a handler descriptor with the job config it runs under.
type Match struct {
	Descriptor *Descriptor
	Job        core.JobConfig
}

// Registry maps incoming events to the handlers that must run. All four
// mapping axes are built from Register calls before any event is processed;
// after that the registry is read-only and safe for concurrent use.
type Registry struct {
	commandPrefix string

	descriptors   []*Descriptor
	byName        map[string]*Descriptor
	byJobType     map[core.JobType][]*Descriptor
	requiredFor   map[core.JobType][]*Descriptor
	byCommand     map[string][]*Descriptor
	byCheckPrefix map[string][]*Descriptor
}

// NewRegistry creates an empty registry. commandPrefix is the bot mention
// that introduces comment commands, e.g. "/warden".
func NewRegistry(commandPrefix string) *Registry {
	return &Registry{
		commandPrefix: commandPrefix,
		byName:        make(map[string]*Descriptor),
		byJobType:     make(map[core.JobType][]*Descriptor),
		requiredFor:   make(map[core.JobType][]*Descriptor),
		byCommand:     make(map[string][]*Descriptor),
		byCheckPrefix: make(map[string][]*Descriptor),
	}
}

// Register adds a handler descriptor to every axis it declares. Registration
// is append-only; re-using a task name is a programming error.
func (r *Registry) Register(d *Descriptor) error {
	if d.TaskName == "" {
		return fmt.Errorf("dispatch: descriptor without task name")
	}
	if d.New == nil {
		return fmt.Errorf("dispatch: descriptor %s without factory", d.TaskName)
	}
	if _, exists := r.byName[d.TaskName]; exists {
		return fmt.Errorf("dispatch: task name %s already registered", d.TaskName)
	}
	r.descriptors = append(r.descriptors, d)
	r.byName[d.TaskName] = d
	for _, jt := range d.ConfiguredAs {
		r.byJobType[jt] = append(r.byJobType[jt], d)
	}
	for _, jt := range d.RequiredFor {
		r.requiredFor[jt] = append(r.requiredFor[jt], d)
	}
	for _, cmd := range d.Commands {
		r.byCommand[cmd] = append(r.byCommand[cmd], d)
	}
	for _, prefix := range d.CheckRerunPrefixes {
		r.byCheckPrefix[prefix] = append(r.byCheckPrefix[prefix], d)
	}
	return nil
}

// Lookup returns the descriptor registered under the given task name.
func (r *Registry) Lookup(taskName string) *Descriptor {
	return r.byName[taskName]
}

// CommandArgs returns the arguments of the comment command carried by the
// event. Non-comment events and comments without a command yield nil.
func (r *Registry) CommandArgs(event core.Event) []string {
	if !event.Kind.IsComment() {
		return nil
	}
	cmd, ok := ParseCommand(event.Comment, r.commandPrefix)
	if !ok {
		return nil
	}
	return cmd.Args
}

// HandlersFor returns the ordered set of (descriptor, job config) pairs that
// must run for the event. Explicit job-type matches come first in package
// declaration order; job configs synthesized by the dependency resolver
// follow. The result is deterministic for identical inputs.
func (r *Registry) HandlersFor(event core.Event, pkg core.PackageConfig) []Match {
	candidates := r.candidatesFor(event)
	if len(candidates) == 0 {
		return nil
	}

	var matches []Match
	for _, job := range pkg.Jobs {
		for _, d := range candidates {
			if d.configuredAs(job.Type) {
				matches = append(matches, Match{Descriptor: d, Job: job})
			}
		}
	}
	for _, supplement := range r.supplementalJobs(pkg, candidates) {
		for _, d := range candidates {
			if d.configuredAs(supplement.Type) {
				matches = append(matches, Match{Descriptor: d, Job: supplement})
			}
		}
	}
	return matches
}

// candidatesFor intersects the reacts-to axis with the comment-command or
// check-rerun axis, falling back to all registered descriptors for plain
// events. Order follows registration order.
func (r *Registry) candidatesFor(event core.Event) []*Descriptor {
	var pool []*Descriptor
	switch {
	case event.Kind.IsComment():
		cmd, ok := ParseCommand(event.Comment, r.commandPrefix)
		if !ok {
			return nil
		}
		pool = r.byCommand[cmd.Name]
	case event.Kind.IsCheckRerun():
		pool = r.byCheckPrefix[CheckPrefix(event.CheckName)]
	default:
		pool = r.descriptors
	}

	var out []*Descriptor
	for _, d := range r.descriptors {
		if !contains(pool, d) || !d.reactsTo(event.Kind) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func contains(pool []*Descriptor, d *Descriptor) bool {
	for _, candidate := range pool {
		if candidate == d {
			return true
		}
	}
	return false
}
