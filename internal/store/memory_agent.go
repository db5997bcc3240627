package store

import (
	"context"
	"sync"

	"github.com/kandev/wavecoord/internal/model"
)

// MemoryAgentStore is a concurrency-safe in-memory AgentStore, grounded on
// the teacher's MemoryRepository (internal/task/repository/memory.go):
// a plain map plus a single mutex guarding compound mutations.
type MemoryAgentStore struct {
	mu     sync.Mutex
	agents map[string]*model.Agent
}

var _ AgentStore = (*MemoryAgentStore)(nil)

// NewMemoryAgentStore creates an empty in-memory agent store.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{agents: make(map[string]*model.Agent)}
}

func (s *MemoryAgentStore) Save(_ context.Context, agent *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent.Clone()
	return nil
}

func (s *MemoryAgentStore) Get(_ context.Context, id string) (*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryAgentStore) ListByWorkspace(_ context.Context, workspaceID string) ([]*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Agent
	for _, a := range s.agents {
		if a.WorkspaceID == workspaceID {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (s *MemoryAgentStore) ListByParent(_ context.Context, parentID string) ([]*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Agent
	for _, a := range s.agents {
		if a.ParentID != nil && *a.ParentID == parentID {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (s *MemoryAgentStore) ListByRole(_ context.Context, workspaceID string, role model.Role) ([]*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Agent
	for _, a := range s.agents {
		if a.WorkspaceID == workspaceID && a.Role == role {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (s *MemoryAgentStore) ListByStatus(_ context.Context, workspaceID string, status model.AgentStatus) ([]*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Agent
	for _, a := range s.agents {
		if a.WorkspaceID == workspaceID && a.Status == status {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

// ErrDuplicateRouta is returned by Create when a ROUTA already exists (in
// PENDING or ACTIVE status) for the target workspace, per spec §3 invariant (a).
var ErrDuplicateRouta = errCreate("a ROUTA agent already exists for this workspace")

func errCreate(msg string) error { return &createError{msg} }

type createError struct{ msg string }

func (e *createError) Error() string { return e.msg }

// Create saves a brand-new agent atomically with the exactly-one-ROUTA check,
// so callers never observe a transient state with two live ROUTAs.
func (s *MemoryAgentStore) Create(_ context.Context, agent *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent.Role == model.RoleRouta {
		for _, a := range s.agents {
			if a.WorkspaceID == agent.WorkspaceID && a.Role == model.RoleRouta &&
				(a.Status == model.AgentStatusPending || a.Status == model.AgentStatusActive) {
				return ErrDuplicateRouta
			}
		}
	}
	s.agents[agent.ID] = agent.Clone()
	return nil
}

func (s *MemoryAgentStore) UpdateStatus(_ context.Context, id string, from, to model.AgentStatus) (*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from || !model.CanTransitionAgentStatus(from, to) {
		return nil, ErrCompareAndSetFailed
	}
	a.Status = to
	return a.Clone(), nil
}
