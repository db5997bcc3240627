package model

import "time"

// TaskStatus is a node in the task status DAG:
// PENDING -> IN_PROGRESS -> REVIEW_REQUIRED -> {COMPLETED|NEEDS_FIX}.
// NEEDS_FIX -> PENDING is the only back-edge. BLOCKED/CANCELLED are sinks
// for the wave in which they occur.
type TaskStatus string

const (
	TaskStatusPending         TaskStatus = "PENDING"
	TaskStatusInProgress      TaskStatus = "IN_PROGRESS"
	TaskStatusReviewRequired  TaskStatus = "REVIEW_REQUIRED"
	TaskStatusCompleted       TaskStatus = "COMPLETED"
	TaskStatusNeedsFix        TaskStatus = "NEEDS_FIX"
	TaskStatusBlocked         TaskStatus = "BLOCKED"
	TaskStatusCancelled       TaskStatus = "CANCELLED"
)

var taskStatusEdges = map[TaskStatus]map[TaskStatus]bool{
	TaskStatusPending: {
		TaskStatusInProgress: true,
		TaskStatusCancelled:  true,
	},
	TaskStatusInProgress: {
		TaskStatusReviewRequired: true,
		TaskStatusBlocked:        true,
		TaskStatusCancelled:      true,
	},
	TaskStatusReviewRequired: {
		TaskStatusCompleted: true,
		TaskStatusNeedsFix:  true,
		TaskStatusBlocked:   true,
	},
	TaskStatusNeedsFix: {
		TaskStatusPending: true,
	},
}

// CanTransitionTaskStatus reports whether from -> to is a legal task status edge.
func CanTransitionTaskStatus(from, to TaskStatus) bool {
	edges, ok := taskStatusEdges[from]
	if !ok {
		return false
	}
	return edges[to]
}

// VerificationVerdict is the GATE's decision for a task under review.
type VerificationVerdict string

const (
	VerdictApproved    VerificationVerdict = "APPROVED"
	VerdictNotApproved VerificationVerdict = "NOT_APPROVED"
	VerdictBlocked     VerificationVerdict = "BLOCKED"
)

// Task is a unit of work registered from a coordinator's plan.
type Task struct {
	ID                   string
	Title                string
	Objective            string
	Scope                []string
	AcceptanceCriteria   []string
	VerificationCommands []string
	AssignedTo           *string
	Status               TaskStatus
	Dependencies         []string
	ParallelGroup        *string
	WorkspaceID          string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletionSummary    *string
	VerificationVerdict  *VerificationVerdict
	VerificationReport   *string
}

// IsAssignableStatus reports whether the task's invariant "assignedTo set iff
// status in {IN_PROGRESS, REVIEW_REQUIRED, NEEDS_FIX}" would hold for status.
func IsAssignableStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusInProgress, TaskStatusReviewRequired, TaskStatusNeedsFix:
		return true
	default:
		return false
	}
}

// Clone returns a value copy safe for callers to hold without aliasing store state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Scope = append([]string(nil), t.Scope...)
	cp.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	cp.VerificationCommands = append([]string(nil), t.VerificationCommands...)
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		cp.AssignedTo = &v
	}
	if t.ParallelGroup != nil {
		v := *t.ParallelGroup
		cp.ParallelGroup = &v
	}
	if t.CompletionSummary != nil {
		v := *t.CompletionSummary
		cp.CompletionSummary = &v
	}
	if t.VerificationVerdict != nil {
		v := *t.VerificationVerdict
		cp.VerificationVerdict = &v
	}
	if t.VerificationReport != nil {
		v := *t.VerificationReport
		cp.VerificationReport = &v
	}
	return &cp
}
