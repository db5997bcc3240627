// Package store defines the three pluggable store interfaces of spec §4.1
// (AgentStore, TaskStore, ConversationStore) and a concurrency-safe in-memory
// reference implementation, grounded on the teacher's
// internal/task/repository.MemoryRepository.
package store

import (
	"context"
	"errors"

	"github.com/kandev/wavecoord/internal/model"
)

// ErrNotFound is returned by any store lookup that fails to resolve an id.
var ErrNotFound = errors.New("not found")

// ErrCompareAndSetFailed is returned by UpdateStatus when the stored status
// does not match what the caller observed, or the transition is illegal.
var ErrCompareAndSetFailed = errors.New("status compare-and-set failed")

// AgentStore is the persistence interface for Agent records (spec §4.1).
type AgentStore interface {
	Save(ctx context.Context, agent *model.Agent) error
	Get(ctx context.Context, id string) (*model.Agent, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.Agent, error)
	ListByParent(ctx context.Context, parentID string) ([]*model.Agent, error)
	ListByRole(ctx context.Context, workspaceID string, role model.Role) ([]*model.Agent, error)
	ListByStatus(ctx context.Context, workspaceID string, status model.AgentStatus) ([]*model.Agent, error)
	// UpdateStatus performs an atomic compare-and-set: it succeeds only if the
	// stored status equals from and from->to is a legal transition.
	UpdateStatus(ctx context.Context, id string, from, to model.AgentStatus) (*model.Agent, error)
}

// TaskStore is the persistence interface for Task records (spec §4.1).
type TaskStore interface {
	Save(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.Task, error)
	ListByAssignee(ctx context.Context, agentID string) ([]*model.Task, error)
	// FindReadyTasks returns PENDING tasks whose every dependency is COMPLETED,
	// read against the current snapshot (no cross-call locking required).
	FindReadyTasks(ctx context.Context, workspaceID string) ([]*model.Task, error)
	UpdateStatus(ctx context.Context, id string, from, to model.TaskStatus) (*model.Task, error)
}

// ConversationStore is the append-only per-agent transcript store (spec §4.1).
type ConversationStore interface {
	Append(ctx context.Context, msg model.Message) error
	GetConversation(ctx context.Context, agentID string) ([]model.Message, error)
	GetLastN(ctx context.Context, agentID string, n int) ([]model.Message, error)
	GetByTurnRange(ctx context.Context, agentID string, fromTurn, toTurn int) ([]model.Message, error)
	GetMessageCount(ctx context.Context, agentID string) (int, error)
	DeleteConversation(ctx context.Context, agentID string) error
}
