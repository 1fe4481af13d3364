package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sevigo/release-warden/internal/core"
)

// MemoryStore is a mutex-guarded in-memory core.Store. It backs tests and the
// single-shot CLI commands; the service itself runs on Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	runs    map[string]*core.Run
	targets map[string]*core.Target
	// order preserves creation order so listings are deterministic.
	order []string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*core.Run),
		targets: make(map[string]*core.Target),
	}
}

var _ core.Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateRun(_ context.Context, run *core.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) SetRunStatus(_ context.Context, id string, status core.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return core.ErrNotFound
	}
	run.Status = status
	return nil
}

func (s *MemoryStore) SetRunFinishedAt(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return core.ErrNotFound
	}
	run.FinishedAt = &at
	return nil
}

func (s *MemoryStore) CreateTarget(_ context.Context, target *core.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *target
	s.targets[target.ID] = &cp
	s.order = append(s.order, target.ID)
	return nil
}

func (s *MemoryStore) GetTarget(_ context.Context, id string) (*core.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) TargetsForRun(_ context.Context, runID string) ([]*core.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(t *core.Target) bool { return t.RunID == runID }), nil
}

func (s *MemoryStore) TargetsByStatus(_ context.Context, kind core.TargetKind, statuses ...core.TargetStatus) ([]*core.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(t *core.Target) bool {
		return t.Kind == kind && slices.Contains(statuses, t.Status)
	}), nil
}

func (s *MemoryStore) TargetsByCorrelationID(_ context.Context, correlationID string) ([]*core.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(t *core.Target) bool { return t.CorrelationID == correlationID }), nil
}

func (s *MemoryStore) SetTargetStatusIf(_ context.Context, id string, to core.TargetStatus, from ...core.TargetStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return false, core.ErrNotFound
	}
	if !slices.Contains(from, t.Status) {
		return false, nil
	}
	if err := core.ValidateTargetTransition(id, t.Status, to); err != nil {
		return false, err
	}
	t.Status = to
	return true, nil
}

func (s *MemoryStore) SetTargetCorrelationID(_ context.Context, id, correlationID string) error {
	return s.update(id, func(t *core.Target) { t.CorrelationID = correlationID })
}

func (s *MemoryStore) SetTargetSubmittedAt(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(t *core.Target) { t.SubmittedAt = &at })
}

func (s *MemoryStore) SetTargetStartedAt(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(t *core.Target) { t.StartedAt = &at })
}

func (s *MemoryStore) SetTargetFinishedAt(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(t *core.Target) { t.FinishedAt = &at })
}

func (s *MemoryStore) SetTargetResultURL(_ context.Context, id, url string) error {
	return s.update(id, func(t *core.Target) { t.ResultURL = url })
}

func (s *MemoryStore) SetTargetLogs(_ context.Context, id, logs string) error {
	return s.update(id, func(t *core.Target) { t.Logs = logs })
}

func (s *MemoryStore) SetTargetError(_ context.Context, id, errText string) error {
	return s.update(id, func(t *core.Target) { t.ErrorText = errText })
}

func (s *MemoryStore) update(id string, fn func(*core.Target)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return core.ErrNotFound
	}
	fn(t)
	return nil
}

// collect copies matching targets in creation order. Caller holds the lock.
func (s *MemoryStore) collect(match func(*core.Target) bool) []*core.Target {
	var out []*core.Target
	for _, id := range s.order {
		t := s.targets[id]
		if match(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}
