package store

import (
	"context"
	"sync"

	"github.com/kandev/wavecoord/internal/model"
)

// MemoryTaskStore is a concurrency-safe in-memory TaskStore.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*model.Task)}
}

func (s *MemoryTaskStore) Save(_ context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryTaskStore) Get(_ context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryTaskStore) ListByWorkspace(_ context.Context, workspaceID string) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Task
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *MemoryTaskStore) ListByAssignee(_ context.Context, agentID string) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Task
	for _, t := range s.tasks {
		if t.AssignedTo != nil && *t.AssignedTo == agentID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// FindReadyTasks returns PENDING tasks whose every dependency is COMPLETED.
// Read against the current snapshot; callers that need delegate_task's
// atomicity guarantee should re-check readiness under UpdateStatus.
func (s *MemoryTaskStore) FindReadyTasks(_ context.Context, workspaceID string) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Task
	for _, t := range s.tasks {
		if t.WorkspaceID != workspaceID || t.Status != model.TaskStatusPending {
			continue
		}
		ready := true
		for _, depID := range t.Dependencies {
			dep, ok := s.tasks[depID]
			if !ok || dep.Status != model.TaskStatusCompleted {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *MemoryTaskStore) UpdateStatus(_ context.Context, id string, from, to model.TaskStatus) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != from || !model.CanTransitionTaskStatus(from, to) {
		return nil, ErrCompareAndSetFailed
	}
	t.Status = to
	return t.Clone(), nil
}

// MutateLocked provides atomic read-modify-write access for tool operations
// that must change more than just Status (e.g. delegate_task setting
// AssignedTo alongside the status transition) under a single lock
// acquisition, matching spec §4.5's atomicity requirement.
func (s *MemoryTaskStore) MutateLocked(_ context.Context, id string, fn func(t *model.Task) error) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}
