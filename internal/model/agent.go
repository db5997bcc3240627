// Package model defines the entities shared across the coordination core:
// Agent, Task, Message, CompletionReport, AgentEvent, CoordinationState, and
// EventSubscription (spec §3).
package model

import "time"

// Role identifies which of the three pipeline roles an agent plays.
type Role string

const (
	RoleRouta    Role = "ROUTA"
	RoleCrafter  Role = "CRAFTER"
	RoleGate     Role = "GATE"
)

// ModelTier selects the execution backend tier for an agent.
type ModelTier string

const (
	TierSmart ModelTier = "SMART"
	TierFast  ModelTier = "FAST"
)

// AgentStatus is a node in the agent status lattice:
// PENDING -> ACTIVE -> {COMPLETED|ERROR|CANCELLED}. No transition back.
type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "PENDING"
	AgentStatusActive    AgentStatus = "ACTIVE"
	AgentStatusCompleted AgentStatus = "COMPLETED"
	AgentStatusError     AgentStatus = "ERROR"
	AgentStatusCancelled AgentStatus = "CANCELLED"
)

// agentStatusEdges enumerates the legal transitions of the agent status lattice.
var agentStatusEdges = map[AgentStatus]map[AgentStatus]bool{
	AgentStatusPending: {
		AgentStatusActive: true,
	},
	AgentStatusActive: {
		AgentStatusCompleted: true,
		AgentStatusError:     true,
		AgentStatusCancelled: true,
	},
}

// CanTransitionAgentStatus reports whether from -> to is a legal agent status edge.
func CanTransitionAgentStatus(from, to AgentStatus) bool {
	edges, ok := agentStatusEdges[from]
	if !ok {
		return false
	}
	return edges[to]
}

// IsTerminalAgentStatus reports whether status is a sink of the lattice.
func IsTerminalAgentStatus(status AgentStatus) bool {
	switch status {
	case AgentStatusCompleted, AgentStatusError, AgentStatusCancelled:
		return true
	default:
		return false
	}
}

// Agent is one participant in a workspace's coordination session.
type Agent struct {
	ID          string
	Name        string
	Role        Role
	ModelTier   ModelTier
	WorkspaceID string
	ParentID    *string // nil only for the ROUTA of a workspace
	Status      AgentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Metadata    map[string]string
}

// Clone returns a value copy safe for callers to hold without aliasing store state.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	cp := *a
	if a.ParentID != nil {
		pid := *a.ParentID
		cp.ParentID = &pid
	}
	if a.Metadata != nil {
		cp.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
