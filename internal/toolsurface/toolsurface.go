// Package toolsurface implements the Agent Tool Surface of spec §4.5: the
// only legitimate way for an agent's execution to mutate stores. Every tool
// returns a uniform ToolResult, and every mutating tool emits the
// corresponding AgentEvent to the bus before returning success.
package toolsurface

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/eventbus"
	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/store"
	"github.com/kandev/wavecoord/internal/subscription"
)

// ToolResult is the uniform contract every tool returns.
type ToolResult struct {
	Success bool
	Data    interface{}
	Error   string
}

func ok(data interface{}) ToolResult  { return ToolResult{Success: true, Data: data} }
func fail(err error) ToolResult       { return ToolResult{Success: false, Error: err.Error()} }
func failMsg(msg string) ToolResult   { return ToolResult{Success: false, Error: msg} }

// Surface is the agent-facing tool surface, wired to the coordination
// core's stores, bus, and subscription service.
type Surface struct {
	Agents        store.AgentStore
	Tasks         store.TaskStore
	Conversations store.ConversationStore
	Bus           eventbus.EventBus
	Subscriptions *subscription.Service
	Log           *logger.Logger
}

// New constructs a Surface. log may be nil to use the package default.
func New(agents store.AgentStore, tasks store.TaskStore, conversations store.ConversationStore, bus eventbus.EventBus, subs *subscription.Service, log *logger.Logger) *Surface {
	if log == nil {
		log = logger.Default()
	}
	return &Surface{Agents: agents, Tasks: tasks, Conversations: conversations, Bus: bus, Subscriptions: subs, Log: log}
}

// ListAgents returns a human-readable table of id, name, role, status for a
// workspace. An unknown workspace yields an empty list, not a failure.
func (s *Surface) ListAgents(ctx context.Context, workspaceID string) ToolResult {
	agents, err := s.Agents.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return fail(err)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.Before(agents[j].CreatedAt) })

	var b strings.Builder
	b.WriteString("id\tname\trole\tstatus\n")
	for _, a := range agents {
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Role, a.Status)
	}
	return ok(b.String())
}

// GetAgentStatus returns the current status and role for an agent.
func (s *Surface) GetAgentStatus(ctx context.Context, agentID string) ToolResult {
	a, err := s.Agents.Get(ctx, agentID)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]string{"role": string(a.Role), "status": string(a.Status)})
}

// AgentSummary is the payload returned by GetAgentSummary.
type AgentSummary struct {
	Role              string
	Status            string
	AssignedTaskTitle string
	RecentMessages    []string
}

// GetAgentSummary returns role, status, assigned task title (if any), and a
// digest of the agent's last 5 messages.
func (s *Surface) GetAgentSummary(ctx context.Context, agentID string) ToolResult {
	a, err := s.Agents.Get(ctx, agentID)
	if err != nil {
		return fail(err)
	}

	var taskTitle string
	if tasks, terr := s.Tasks.ListByAssignee(ctx, agentID); terr == nil {
		for _, t := range tasks {
			if model.IsAssignableStatus(t.Status) {
				taskTitle = t.Title
				break
			}
		}
	}

	msgs, err := s.Conversations.GetLastN(ctx, agentID, 5)
	if err != nil {
		return fail(err)
	}
	digest := make([]string, 0, len(msgs))
	for _, m := range msgs {
		digest = append(digest, fmt.Sprintf("[%s] %s", m.Role, m.Content))
	}

	return ok(AgentSummary{Role: string(a.Role), Status: string(a.Status), AssignedTaskTitle: taskTitle, RecentMessages: digest})
}

// ReadAgentConversation returns the full conversation, or a turn-bounded
// slice of it when fromTurn/toTurn are both non-nil.
func (s *Surface) ReadAgentConversation(ctx context.Context, agentID string, fromTurn, toTurn *int) ToolResult {
	if _, err := s.Agents.Get(ctx, agentID); err != nil {
		return fail(err)
	}

	var msgs []model.Message
	var err error
	if fromTurn != nil && toTurn != nil {
		msgs, err = s.Conversations.GetByTurnRange(ctx, agentID, *fromTurn, *toTurn)
	} else {
		msgs, err = s.Conversations.GetConversation(ctx, agentID)
	}
	if err != nil {
		return fail(err)
	}

	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return ok(b.String())
}

// CreateAgentInput is the input to CreateAgent.
type CreateAgentInput struct {
	WorkspaceID string
	Role        model.Role
	Name        string
	ParentID    *string
	ModelTier   model.ModelTier
}

// CreateAgent creates an agent record PENDING->ACTIVE, emitting AgentCreated
// and AgentStatusChanged(PENDING->ACTIVE). Enforces exactly-one-ROUTA.
func (s *Surface) CreateAgent(ctx context.Context, in CreateAgentInput) ToolResult {
	agent := &model.Agent{
		ID:          newID(),
		Name:        in.Name,
		Role:        in.Role,
		ModelTier:   in.ModelTier,
		WorkspaceID: in.WorkspaceID,
		ParentID:    in.ParentID,
		Status:      model.AgentStatusPending,
		CreatedAt:   now(),
		UpdatedAt:   now(),
	}

	creator, isCreator := s.Agents.(interface {
		Create(ctx context.Context, agent *model.Agent) error
	})
	if isCreator {
		if err := creator.Create(ctx, agent); err != nil {
			return fail(err)
		}
	} else if err := s.Agents.Save(ctx, agent); err != nil {
		return fail(err)
	}

	if err := s.Bus.Emit(ctx, model.NewAgentCreated(agent.ID, agent.WorkspaceID, agent.ParentID)); err != nil {
		return fail(err)
	}

	updated, err := s.Agents.UpdateStatus(ctx, agent.ID, model.AgentStatusPending, model.AgentStatusActive)
	if err != nil {
		return fail(err)
	}
	if err := s.Bus.Emit(ctx, model.NewAgentStatusChanged(agent.ID, model.AgentStatusPending, model.AgentStatusActive)); err != nil {
		return fail(err)
	}

	return ok(updated)
}

// DelegateTaskInput is the input to DelegateTask.
type DelegateTaskInput struct {
	TaskID      string
	AgentID     string
	DelegatedBy string
}

// DelegateTask assigns a PENDING, ready task to an agent, transitioning
// PENDING->IN_PROGRESS, emitting TaskDelegated and TaskStatusChanged, and
// appending a system brief to the assignee's conversation.
func (s *Surface) DelegateTask(ctx context.Context, in DelegateTaskInput) ToolResult {
	task, err := s.Tasks.Get(ctx, in.TaskID)
	if err != nil {
		return fail(err)
	}
	if task.Status != model.TaskStatusPending {
		return failMsg("task is not PENDING")
	}
	for _, depID := range task.Dependencies {
		dep, derr := s.Tasks.Get(ctx, depID)
		if derr != nil || dep.Status != model.TaskStatusCompleted {
			return failMsg("task is not ready: dependency not completed")
		}
	}

	if mutator, isMutator := s.Tasks.(interface {
		MutateLocked(ctx context.Context, id string, fn func(t *model.Task) error) (*model.Task, error)
	}); isMutator {
		updated, merr := mutator.MutateLocked(ctx, in.TaskID, func(t *model.Task) error {
			if t.Status != model.TaskStatusPending {
				return fmt.Errorf("task is not PENDING")
			}
			agentID := in.AgentID
			t.AssignedTo = &agentID
			t.Status = model.TaskStatusInProgress
			t.UpdatedAt = now()
			return nil
		})
		if merr != nil {
			return fail(merr)
		}
		task = updated
	} else {
		agentID := in.AgentID
		task.AssignedTo = &agentID
		if _, serr := s.Tasks.UpdateStatus(ctx, in.TaskID, model.TaskStatusPending, model.TaskStatusInProgress); serr != nil {
			return fail(serr)
		}
		task.Status = model.TaskStatusInProgress
		if serr := s.Tasks.Save(ctx, task); serr != nil {
			return fail(serr)
		}
	}

	if err := s.Bus.Emit(ctx, model.NewTaskDelegated(in.TaskID, in.AgentID, in.DelegatedBy)); err != nil {
		return fail(err)
	}
	if err := s.Bus.Emit(ctx, model.NewTaskStatusChanged(in.TaskID, model.TaskStatusPending, model.TaskStatusInProgress)); err != nil {
		return fail(err)
	}

	brief := buildTaskBrief(task)
	if err := s.Conversations.Append(ctx, model.Message{
		AgentID: in.AgentID,
		Role:    model.MessageRoleSystem,
		Content: brief,
		Timestamp: now(),
	}); err != nil {
		return fail(err)
	}

	return ok(task)
}

func buildTaskBrief(t *model.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nObjective:\n%s\n\nScope:\n", t.Title, t.Objective)
	for _, s := range t.Scope {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\nAcceptance criteria:\n")
	for _, c := range t.AcceptanceCriteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nVerification commands:\n")
	for _, c := range t.VerificationCommands {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return b.String()
}

// SendMessageToAgent appends a message to the recipient's conversation and
// emits MessageReceived. Also known as message_agent.
func (s *Surface) SendMessageToAgent(ctx context.Context, fromID, toID, content string) ToolResult {
	if _, err := s.Agents.Get(ctx, fromID); err != nil {
		return fail(err)
	}
	if _, err := s.Agents.Get(ctx, toID); err != nil {
		return fail(err)
	}

	from := fromID
	msg := model.Message{
		AgentID:     toID,
		Role:        model.MessageRoleAgent,
		Content:     content,
		FromAgentID: &from,
		Timestamp:   now(),
	}
	if err := s.Conversations.Append(ctx, msg); err != nil {
		return fail(err)
	}
	if err := s.Bus.Emit(ctx, model.NewMessageReceived(fromID, toID, msg)); err != nil {
		return fail(err)
	}
	return ok(nil)
}

// WaitForAgent / SubscribeToEvents delegates to the subscription service.
func (s *Surface) SubscribeToEvents(callerID, callerName string, patterns []string, excludeSelf, oneShot bool) ToolResult {
	id := s.Subscriptions.Subscribe(callerID, callerName, patterns, excludeSelf, oneShot)
	return ok(id)
}

// WaitForAgent is the convenience form of SubscribeToEvents scoped to a
// single target agent's completion.
func (s *Surface) WaitForAgent(callerID, targetID string) ToolResult {
	id := s.Subscriptions.SubscribeToAgentCompletion(callerID, targetID)
	return ok(id)
}

// UnsubscribeFromEvents removes a subscription. It returns ok(true) whether
// or not subID names a live subscription; unknown ids are not reported.
func (s *Surface) UnsubscribeFromEvents(subID string) ToolResult {
	s.Subscriptions.Unsubscribe(subID)
	return ok(true)
}

// ReportToParentInput is the input to ReportToParent.
type ReportToParentInput struct {
	ParentID string
	Report   model.CompletionReport
}

// ReportToParent transitions the reporter ACTIVE->COMPLETED and its
// assigned task IN_PROGRESS->REVIEW_REQUIRED, emitting AgentStatusChanged,
// AgentCompleted, and TaskStatusChanged, then appends a completion report
// message to the parent's conversation.
func (s *Surface) ReportToParent(ctx context.Context, in ReportToParentInput) ToolResult {
	reporter, err := s.Agents.Get(ctx, in.Report.AgentID)
	if err != nil {
		return fail(err)
	}
	if reporter.Status != model.AgentStatusActive {
		return failMsg("reporter is not ACTIVE")
	}

	task, err := s.Tasks.Get(ctx, in.Report.TaskID)
	if err != nil {
		return fail(err)
	}
	if task.Status != model.TaskStatusInProgress {
		return failMsg("task is not IN_PROGRESS")
	}

	if _, err := s.Agents.UpdateStatus(ctx, reporter.ID, model.AgentStatusActive, model.AgentStatusCompleted); err != nil {
		return fail(err)
	}
	if err := s.Bus.Emit(ctx, model.NewAgentStatusChanged(reporter.ID, model.AgentStatusActive, model.AgentStatusCompleted)); err != nil {
		return fail(err)
	}
	if err := s.Bus.Emit(ctx, model.NewAgentCompleted(reporter.ID, in.ParentID, in.Report)); err != nil {
		return fail(err)
	}

	summary := in.Report.Summary
	updated, err := s.Tasks.UpdateStatus(ctx, task.ID, model.TaskStatusInProgress, model.TaskStatusReviewRequired)
	if err != nil {
		return fail(err)
	}
	updated.CompletionSummary = &summary
	if err := s.Tasks.Save(ctx, updated); err != nil {
		return fail(err)
	}
	if err := s.Bus.Emit(ctx, model.NewTaskStatusChanged(task.ID, model.TaskStatusInProgress, model.TaskStatusReviewRequired)); err != nil {
		return fail(err)
	}

	if err := s.Conversations.Append(ctx, model.Message{
		AgentID:   in.ParentID,
		Role:      model.MessageRoleSystem,
		Content:   fmt.Sprintf("Completion Report from %s:\n%s", reporter.ID, in.Report.Summary),
		Timestamp: now(),
	}); err != nil {
		return fail(err)
	}

	return ok(nil)
}

// WakeOrCreateTaskAgentInput is the input to WakeOrCreateTaskAgent.
type WakeOrCreateTaskAgentInput struct {
	WorkspaceID string
	TaskID      string
	Role        model.Role
	DelegatedBy string
}

// WakeOrCreateTaskAgent finds an existing ACTIVE agent of Role assigned to
// taskID; otherwise creates one and delegates the task. Idempotent.
func (s *Surface) WakeOrCreateTaskAgent(ctx context.Context, in WakeOrCreateTaskAgentInput) ToolResult {
	task, err := s.Tasks.Get(ctx, in.TaskID)
	if err != nil {
		return fail(err)
	}
	if task.AssignedTo != nil {
		existing, aerr := s.Agents.Get(ctx, *task.AssignedTo)
		if aerr == nil && existing.Status == model.AgentStatusActive && existing.Role == in.Role {
			return ok(existing)
		}
	}

	parentID := in.DelegatedBy
	created := s.CreateAgent(ctx, CreateAgentInput{
		WorkspaceID: in.WorkspaceID,
		Role:        in.Role,
		Name:        fmt.Sprintf("crafter-%s", in.TaskID),
		ParentID:    &parentID,
	})
	if !created.Success {
		return created
	}
	agent := created.Data.(*model.Agent)

	delegated := s.DelegateTask(ctx, DelegateTaskInput{TaskID: in.TaskID, AgentID: agent.ID, DelegatedBy: in.DelegatedBy})
	if !delegated.Success {
		return delegated
	}
	return ok(agent)
}
