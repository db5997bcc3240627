package model

// EventType is the wire-stable string form of an AgentEvent variant, per
// spec §4.3's normative event-type string mapping.
type EventType string

const (
	EventTypeAgentCreated        EventType = "agent:created"
	EventTypeAgentStatusChanged  EventType = "agent:status_changed"
	EventTypeAgentCompleted      EventType = "agent:completed"
	EventTypeMessageReceived     EventType = "agent:message"
	EventTypeTaskStatusChanged   EventType = "task:status_changed"
	EventTypeTaskDelegated       EventType = "task:delegated"
)

// AgentEvent is a tagged union over the event variants producible by the
// coordination core. Exactly one of the payload fields is non-nil, selected
// by Type.
type AgentEvent struct {
	Type EventType

	AgentCreated       *AgentCreatedPayload
	AgentStatusChanged *AgentStatusChangedPayload
	AgentCompleted     *AgentCompletedPayload
	MessageReceived    *MessageReceivedPayload
	TaskStatusChanged  *TaskStatusChangedPayload
	TaskDelegated      *TaskDelegatedPayload
}

type AgentCreatedPayload struct {
	AgentID     string
	WorkspaceID string
	ParentID    *string
}

type AgentStatusChangedPayload struct {
	AgentID string
	Old     AgentStatus
	New     AgentStatus
}

type AgentCompletedPayload struct {
	AgentID  string
	ParentID string
	Report   CompletionReport
}

type MessageReceivedPayload struct {
	From    string
	To      string
	Message Message
}

type TaskStatusChangedPayload struct {
	TaskID string
	Old    TaskStatus
	New    TaskStatus
}

type TaskDelegatedPayload struct {
	TaskID      string
	AgentID     string
	DelegatedBy string
}

// Actor returns the acting agent id for self-exclusion purposes, per spec
// §4.3's actor derivation table. TaskStatusChanged has no actor.
func (e AgentEvent) Actor() (string, bool) {
	switch e.Type {
	case EventTypeAgentCreated:
		if e.AgentCreated != nil {
			return e.AgentCreated.AgentID, true
		}
	case EventTypeAgentStatusChanged:
		if e.AgentStatusChanged != nil {
			return e.AgentStatusChanged.AgentID, true
		}
	case EventTypeAgentCompleted:
		if e.AgentCompleted != nil {
			return e.AgentCompleted.AgentID, true
		}
	case EventTypeMessageReceived:
		if e.MessageReceived != nil {
			return e.MessageReceived.From, true
		}
	case EventTypeTaskDelegated:
		if e.TaskDelegated != nil {
			return e.TaskDelegated.DelegatedBy, true
		}
	}
	return "", false
}

// NewAgentCreated builds an AgentCreated event.
func NewAgentCreated(agentID, workspaceID string, parentID *string) AgentEvent {
	return AgentEvent{Type: EventTypeAgentCreated, AgentCreated: &AgentCreatedPayload{AgentID: agentID, WorkspaceID: workspaceID, ParentID: parentID}}
}

// NewAgentStatusChanged builds an AgentStatusChanged event.
func NewAgentStatusChanged(agentID string, old, new_ AgentStatus) AgentEvent {
	return AgentEvent{Type: EventTypeAgentStatusChanged, AgentStatusChanged: &AgentStatusChangedPayload{AgentID: agentID, Old: old, New: new_}}
}

// NewAgentCompleted builds an AgentCompleted event.
func NewAgentCompleted(agentID, parentID string, report CompletionReport) AgentEvent {
	return AgentEvent{Type: EventTypeAgentCompleted, AgentCompleted: &AgentCompletedPayload{AgentID: agentID, ParentID: parentID, Report: report}}
}

// NewMessageReceived builds a MessageReceived event.
func NewMessageReceived(from, to string, msg Message) AgentEvent {
	return AgentEvent{Type: EventTypeMessageReceived, MessageReceived: &MessageReceivedPayload{From: from, To: to, Message: msg}}
}

// NewTaskStatusChanged builds a TaskStatusChanged event.
func NewTaskStatusChanged(taskID string, old, new_ TaskStatus) AgentEvent {
	return AgentEvent{Type: EventTypeTaskStatusChanged, TaskStatusChanged: &TaskStatusChangedPayload{TaskID: taskID, Old: old, New: new_}}
}

// NewTaskDelegated builds a TaskDelegated event.
func NewTaskDelegated(taskID, agentID, delegatedBy string) AgentEvent {
	return AgentEvent{Type: EventTypeTaskDelegated, TaskDelegated: &TaskDelegatedPayload{TaskID: taskID, AgentID: agentID, DelegatedBy: delegatedBy}}
}

// MatchesEventType implements spec §4.3's pattern matching: "*" matches all,
// "prefix:*" matches by prefix, anything else is exact match.
func MatchesEventType(pattern string, eventType EventType) bool {
	if pattern == "*" {
		return true
	}
	if len(pattern) >= 2 && pattern[len(pattern)-2:] == ":*" {
		prefix := pattern[:len(pattern)-1] // keep the trailing ':'
		return len(string(eventType)) >= len(prefix) && string(eventType)[:len(prefix)] == prefix
	}
	return pattern == string(eventType)
}
