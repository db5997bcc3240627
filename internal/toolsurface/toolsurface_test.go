package toolsurface

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/eventbus"
	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/store"
	"github.com/kandev/wavecoord/internal/subscription"
)

func newTestSurface(t *testing.T) (*Surface, func()) {
	t.Helper()
	bus := eventbus.NewMemoryEventBus(32, nil)
	subs := subscription.New(bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, subs.StartListening(ctx))

	surface := New(store.NewMemoryAgentStore(), store.NewMemoryTaskStore(), store.NewMemoryConversationStore(), bus, subs, nil)
	return surface, func() {
		cancel()
		bus.Close()
	}
}

func TestCreateAgent_EnforcesSingleRouta(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()
	ctx := context.Background()

	r1 := s.CreateAgent(ctx, CreateAgentInput{WorkspaceID: "ws1", Role: model.RoleRouta, Name: "routa"})
	require.True(t, r1.Success)
	agent := r1.Data.(*model.Agent)
	require.Equal(t, model.AgentStatusActive, agent.Status)

	r2 := s.CreateAgent(ctx, CreateAgentInput{WorkspaceID: "ws1", Role: model.RoleRouta, Name: "routa-2"})
	require.False(t, r2.Success)
}

func TestDelegateTask_RequiresReadyPending(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()
	ctx := context.Background()

	agentRes := s.CreateAgent(ctx, CreateAgentInput{WorkspaceID: "ws1", Role: model.RoleCrafter, Name: "crafter-1"})
	require.True(t, agentRes.Success)
	agent := agentRes.Data.(*model.Agent)

	task := &model.Task{ID: "t1", WorkspaceID: "ws1", Title: "do thing", Status: model.TaskStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.Tasks.Save(ctx, task))

	res := s.DelegateTask(ctx, DelegateTaskInput{TaskID: "t1", AgentID: agent.ID, DelegatedBy: "routa-1"})
	require.True(t, res.Success)

	got, err := s.Tasks.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusInProgress, got.Status)
	require.NotNil(t, got.AssignedTo)
	require.Equal(t, agent.ID, *got.AssignedTo)

	msgs, err := s.Conversations.GetConversation(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Content, "do thing")

	// Re-delegating an already IN_PROGRESS task must fail.
	res2 := s.DelegateTask(ctx, DelegateTaskInput{TaskID: "t1", AgentID: agent.ID, DelegatedBy: "routa-1"})
	require.False(t, res2.Success)
}

func TestDelegateTask_BlocksOnUnresolvedDependency(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()
	ctx := context.Background()

	agentRes := s.CreateAgent(ctx, CreateAgentInput{WorkspaceID: "ws1", Role: model.RoleCrafter, Name: "crafter-1"})
	agent := agentRes.Data.(*model.Agent)

	dep := &model.Task{ID: "dep", WorkspaceID: "ws1", Status: model.TaskStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	blocked := &model.Task{ID: "t1", WorkspaceID: "ws1", Status: model.TaskStatusPending, Dependencies: []string{"dep"}, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.Tasks.Save(ctx, dep))
	require.NoError(t, s.Tasks.Save(ctx, blocked))

	res := s.DelegateTask(ctx, DelegateTaskInput{TaskID: "t1", AgentID: agent.ID, DelegatedBy: "routa-1"})
	require.False(t, res.Success)
}

func TestReportToParent_TransitionsAgentAndTask(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()
	ctx := context.Background()

	routaRes := s.CreateAgent(ctx, CreateAgentInput{WorkspaceID: "ws1", Role: model.RoleRouta, Name: "routa"})
	routa := routaRes.Data.(*model.Agent)

	crafterRes := s.CreateAgent(ctx, CreateAgentInput{WorkspaceID: "ws1", Role: model.RoleCrafter, Name: "crafter-1", ParentID: &routa.ID})
	crafter := crafterRes.Data.(*model.Agent)

	task := &model.Task{ID: "t1", WorkspaceID: "ws1", Status: model.TaskStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.Tasks.Save(ctx, task))
	require.True(t, s.DelegateTask(ctx, DelegateTaskInput{TaskID: "t1", AgentID: crafter.ID, DelegatedBy: routa.ID}).Success)

	res := s.ReportToParent(ctx, ReportToParentInput{
		ParentID: routa.ID,
		Report:   model.CompletionReport{AgentID: crafter.ID, TaskID: "t1", Summary: "done", Success: true},
	})
	require.True(t, res.Success)

	gotAgent, err := s.Agents.Get(ctx, crafter.ID)
	require.NoError(t, err)
	require.Equal(t, model.AgentStatusCompleted, gotAgent.Status)

	gotTask, err := s.Tasks.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusReviewRequired, gotTask.Status)
	require.NotNil(t, gotTask.CompletionSummary)
	require.Equal(t, "done", *gotTask.CompletionSummary)

	parentMsgs, err := s.Conversations.GetConversation(ctx, routa.ID)
	require.NoError(t, err)
	require.Len(t, parentMsgs, 1)
	require.Contains(t, parentMsgs[0].Content, "Completion Report")
}

func TestReportToParent_EmitsInSpecOrder(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()
	ctx := context.Background()

	routaRes := s.CreateAgent(ctx, CreateAgentInput{WorkspaceID: "ws1", Role: model.RoleRouta, Name: "routa"})
	routa := routaRes.Data.(*model.Agent)

	crafterRes := s.CreateAgent(ctx, CreateAgentInput{WorkspaceID: "ws1", Role: model.RoleCrafter, Name: "crafter-1", ParentID: &routa.ID})
	crafter := crafterRes.Data.(*model.Agent)

	task := &model.Task{ID: "t1", WorkspaceID: "ws1", Status: model.TaskStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.Tasks.Save(ctx, task))
	require.True(t, s.DelegateTask(ctx, DelegateTaskInput{TaskID: "t1", AgentID: crafter.ID, DelegatedBy: routa.ID}).Success)

	var mu sync.Mutex
	var seen []model.EventType
	unsubscribe, err := s.Bus.Subscribe(func(_ context.Context, event model.AgentEvent) {
		switch event.Type {
		case model.EventTypeAgentStatusChanged, model.EventTypeAgentCompleted, model.EventTypeTaskStatusChanged:
			mu.Lock()
			seen = append(seen, event.Type)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	res := s.ReportToParent(ctx, ReportToParentInput{
		ParentID: routa.ID,
		Report:   model.CompletionReport{AgentID: crafter.ID, TaskID: "t1", Summary: "done", Success: true},
	})
	require.True(t, res.Success)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []model.EventType{
		model.EventTypeAgentStatusChanged,
		model.EventTypeAgentCompleted,
		model.EventTypeTaskStatusChanged,
	}, seen)
}

func TestSendMessageToAgent_UnknownIDsFail(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()
	ctx := context.Background()

	res := s.SendMessageToAgent(ctx, "ghost-1", "ghost-2", "hi")
	require.False(t, res.Success)
}

func TestWakeOrCreateTaskAgent_IsIdempotent(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()
	ctx := context.Background()

	task := &model.Task{ID: "t1", WorkspaceID: "ws1", Status: model.TaskStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.Tasks.Save(ctx, task))

	first := s.WakeOrCreateTaskAgent(ctx, WakeOrCreateTaskAgentInput{WorkspaceID: "ws1", TaskID: "t1", Role: model.RoleCrafter, DelegatedBy: "routa"})
	require.True(t, first.Success)
	firstAgent := first.Data.(*model.Agent)

	second := s.WakeOrCreateTaskAgent(ctx, WakeOrCreateTaskAgentInput{WorkspaceID: "ws1", TaskID: "t1", Role: model.RoleCrafter, DelegatedBy: "routa"})
	require.True(t, second.Success)
	secondAgent := second.Data.(*model.Agent)

	require.Equal(t, firstAgent.ID, secondAgent.ID)
}

func TestListAgents_UnknownWorkspaceIsEmptyNotFailure(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()

	res := s.ListAgents(context.Background(), "nonexistent")
	require.True(t, res.Success)
}
