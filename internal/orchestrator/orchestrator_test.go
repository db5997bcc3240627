package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/coordinator"
	"github.com/kandev/wavecoord/internal/eventbus"
	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/provider"
	"github.com/kandev/wavecoord/internal/store"
	"github.com/kandev/wavecoord/internal/subscription"
	"github.com/kandev/wavecoord/internal/toolsurface"
)

// reportingMockProvider wraps provider.MockProvider so a scripted CRAFTER
// output also drives report_to_parent through the tool surface, the way a
// real agent's tool-calling loop would after finishing its assigned task.
type reportingMockProvider struct {
	*provider.MockProvider
	tools *toolsurface.Surface
	tasks *store.MemoryTaskStore
}

func (r *reportingMockProvider) Run(ctx context.Context, role model.Role, agentID, prompt string) (string, error) {
	out, err := r.MockProvider.Run(ctx, role, agentID, prompt)
	if err != nil {
		return out, err
	}
	if role == model.RoleCrafter {
		assigned, _ := r.tasks.ListByAssignee(ctx, agentID)
		for _, t := range assigned {
			if t.Status == model.TaskStatusInProgress {
				agent, _ := r.tools.Agents.Get(ctx, agentID)
				parentID := ""
				if agent.ParentID != nil {
					parentID = *agent.ParentID
				}
				r.tools.ReportToParent(ctx, toolsurface.ReportToParentInput{
					ParentID: parentID,
					Report:   model.CompletionReport{AgentID: agentID, TaskID: t.ID, Summary: out, Success: true},
				})
			}
		}
	}
	return out, nil
}

func newHarness(t *testing.T, scripts map[model.Role][]string) (*Orchestrator, func()) {
	t.Helper()
	bus := eventbus.NewMemoryEventBus(64, nil)
	subs := subscription.New(bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, subs.StartListening(ctx))

	agents := store.NewMemoryAgentStore()
	tasks := store.NewMemoryTaskStore()
	convos := store.NewMemoryConversationStore()
	tools := toolsurface.New(agents, tasks, convos, bus, subs, nil)
	coord := coordinator.New(agents, tasks, convos, tools, subs, coordinator.Config{MaxWaves: 5, ConversationTailMessages: 20}, nil)

	mock := provider.NewMockProvider(provider.Capabilities{SupportsToolCalling: true, SupportsFileEditing: true, SupportsTerminal: true}, scripts)
	reporting := &reportingMockProvider{MockProvider: mock, tools: tools, tasks: tasks}

	orch, err := New(coord, reporting, 5, nil, nil)
	require.NoError(t, err)

	return orch, func() {
		cancel()
		bus.Close()
	}
}

const twoTaskPlan = `
@@@task
# Implement Login API
## Objective
Add a login endpoint.
## Definition of Done
- login returns a token
@@@

@@@task
# Add User Registration
## Objective
Add a registration endpoint.
## Definition of Done
- registration persists a new user
@@@
`

const singleTaskPlan = `
@@@task
# Fix Bug
## Objective
Fix the bug.
## Definition of Done
- bug no longer reproduces
@@@
`

func TestOrchestrator_TwoTaskPlanAllApproved(t *testing.T) {
	orch, cleanup := newHarness(t, map[model.Role][]string{
		model.RoleRouta:   {twoTaskPlan},
		model.RoleCrafter: {"done", "done"},
		model.RoleGate:    {"Both tasks look good. APPROVED"},
	})
	defer cleanup()

	res, err := orch.Run(context.Background(), "ws1", "implement login and registration")
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, res.Kind)
	require.Len(t, res.TaskSummary, 2)
	for _, s := range res.TaskSummary {
		require.Equal(t, model.TaskStatusCompleted, s.Status)
	}
	require.Equal(t, 1, res.GateRuns)
	require.Equal(t, model.RoleRouta, res.RunOrder[0])
	require.Equal(t, model.RoleGate, res.RunOrder[len(res.RunOrder)-1])
	require.Len(t, res.RunOrder, 4) // ROUTA, CRAFTER, CRAFTER, GATE
}

func TestOrchestrator_NoTasks(t *testing.T) {
	orch, cleanup := newHarness(t, map[model.Role][]string{
		model.RoleRouta: {"I looked at the request but found nothing actionable."},
	})
	defer cleanup()

	res, err := orch.Run(context.Background(), "ws1", "do nothing useful")
	require.NoError(t, err)
	require.Equal(t, ResultNoTasks, res.Kind)
	require.Contains(t, res.PlanText, "nothing actionable")
	require.Equal(t, []model.Role{model.RoleRouta}, res.RunOrder)
}

func TestOrchestrator_GateRejectsThenApproves(t *testing.T) {
	orch, cleanup := newHarness(t, map[model.Role][]string{
		model.RoleRouta:   {singleTaskPlan},
		model.RoleCrafter: {"attempt 1", "attempt 2"},
		model.RoleGate:    {"NOT APPROVED: missing tests", "APPROVED"},
	})
	defer cleanup()

	res, err := orch.Run(context.Background(), "ws1", "please fix the bug")
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, res.Kind)
	require.Len(t, res.TaskSummary, 1)
	require.Equal(t, model.TaskStatusCompleted, res.TaskSummary[0].Status)
	require.Equal(t, 2, res.GateRuns)
}

func TestOrchestrator_MaxWavesReachedWhenNeverApproved(t *testing.T) {
	orch, cleanup := newHarness(t, map[model.Role][]string{
		model.RoleRouta:   {singleTaskPlan},
		model.RoleCrafter: {"attempt 1", "attempt 2", "attempt 3", "attempt 4", "attempt 5"},
		model.RoleGate:    {"NOT APPROVED", "NOT APPROVED", "NOT APPROVED", "NOT APPROVED", "NOT APPROVED"},
	})
	defer cleanup()

	res, err := orch.Run(context.Background(), "ws1", "please fix the bug")
	require.NoError(t, err)
	require.Equal(t, ResultMaxWavesReached, res.Kind)
	require.Equal(t, 5, res.GateRuns)
}
