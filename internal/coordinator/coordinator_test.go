package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/eventbus"
	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/store"
	"github.com/kandev/wavecoord/internal/subscription"
	"github.com/kandev/wavecoord/internal/toolsurface"
)

const twoTaskPlan = `
@@@task
# Implement Login API
## Objective
Add a login endpoint.
## Scope
- internal/auth
## Definition of Done
- login returns a token
## Verification
- go test ./internal/auth/...
@@@

@@@task
# Add User Registration
## Objective
Add a registration endpoint.
## Scope
- internal/auth
## Definition of Done
- registration persists a new user
## Verification
- go test ./internal/auth/...
@@@
`

func newTestCoordinator(t *testing.T) (*Coordinator, func()) {
	t.Helper()
	bus := eventbus.NewMemoryEventBus(64, nil)
	subs := subscription.New(bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, subs.StartListening(ctx))

	agents := store.NewMemoryAgentStore()
	tasks := store.NewMemoryTaskStore()
	convos := store.NewMemoryConversationStore()
	tools := toolsurface.New(agents, tasks, convos, bus, subs, nil)

	c := New(agents, tasks, convos, tools, subs, Config{MaxWaves: 5, ConversationTailMessages: 20}, nil)
	return c, func() {
		cancel()
		bus.Close()
	}
}

func TestCoordinator_InitializeAndRegisterTasks(t *testing.T) {
	c, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()

	routaID, err := c.Initialize(ctx, "ws1")
	require.NoError(t, err)
	require.NotEmpty(t, routaID)
	require.Equal(t, model.PhasePlanning, c.Snapshot().Phase)

	ids, err := c.RegisterTasks(ctx, twoTaskPlan)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Equal(t, model.PhaseReady, c.Snapshot().Phase)
}

func TestCoordinator_RegisterTasks_NoTasksStaysPlanning(t *testing.T) {
	c, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()

	_, err := c.Initialize(ctx, "ws1")
	require.NoError(t, err)

	ids, err := c.RegisterTasks(ctx, "no task blocks in this plan")
	require.NoError(t, err)
	require.Empty(t, ids)
	require.Equal(t, model.PhasePlanning, c.Snapshot().Phase)
}

func TestCoordinator_FullWaveApprovedEndsCompleted(t *testing.T) {
	c, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()

	routaID, err := c.Initialize(ctx, "ws1")
	require.NoError(t, err)

	_, err = c.RegisterTasks(ctx, twoTaskPlan)
	require.NoError(t, err)

	delegations, err := c.ExecuteNextWave(ctx)
	require.NoError(t, err)
	require.Len(t, delegations, 2)
	require.Equal(t, model.PhaseExecuting, c.Snapshot().Phase)

	for _, d := range delegations {
		res := c.tools.ReportToParent(ctx, toolsurface.ReportToParentInput{
			ParentID: routaID,
			Report:   model.CompletionReport{AgentID: d.CrafterID, TaskID: d.TaskID, Summary: "done", Success: true},
		})
		require.True(t, res.Success)
	}

	require.NoError(t, c.ObserveWaveCompletion(ctx))
	require.Equal(t, model.PhaseWaveComplete, c.Snapshot().Phase)

	gateID, err := c.StartVerification(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, gateID)
	require.Equal(t, model.PhaseVerifying, c.Snapshot().Phase)

	phase, warning, err := c.RecordVerdict(ctx, "Both tasks look good. APPROVED")
	require.NoError(t, err)
	require.Nil(t, warning)
	require.Equal(t, model.PhaseCompleted, phase)
}

func TestCoordinator_GateRejectsThenApproves(t *testing.T) {
	c, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()

	routaID, err := c.Initialize(ctx, "ws1")
	require.NoError(t, err)

	_, err = c.RegisterTasks(ctx, `
@@@task
# Fix Bug
## Objective
Fix the bug.
## Definition of Done
- bug no longer reproduces
@@@
`)
	require.NoError(t, err)

	delegations, err := c.ExecuteNextWave(ctx)
	require.NoError(t, err)
	require.Len(t, delegations, 1)

	res := c.tools.ReportToParent(ctx, toolsurface.ReportToParentInput{
		ParentID: routaID,
		Report:   model.CompletionReport{AgentID: delegations[0].CrafterID, TaskID: delegations[0].TaskID, Summary: "fixed", Success: true},
	})
	require.True(t, res.Success)
	require.NoError(t, c.ObserveWaveCompletion(ctx))

	_, err = c.StartVerification(ctx)
	require.NoError(t, err)

	phase, _, err := c.RecordVerdict(ctx, "NOT APPROVED: missing test coverage")
	require.NoError(t, err)
	require.Equal(t, model.PhaseNeedsFix, phase)

	task, err := c.tasks.Get(ctx, delegations[0].TaskID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusPending, task.Status)

	// Wave 2: re-delegate and approve.
	second, err := c.ExecuteNextWave(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)

	res2 := c.tools.ReportToParent(ctx, toolsurface.ReportToParentInput{
		ParentID: routaID,
		Report:   model.CompletionReport{AgentID: second[0].CrafterID, TaskID: second[0].TaskID, Summary: "fixed for real", Success: true},
	})
	require.True(t, res2.Success)
	require.NoError(t, c.ObserveWaveCompletion(ctx))

	_, err = c.StartVerification(ctx)
	require.NoError(t, err)

	phase2, _, err := c.RecordVerdict(ctx, "APPROVED")
	require.NoError(t, err)
	require.Equal(t, model.PhaseCompleted, phase2)

	finalTask, err := c.tasks.Get(ctx, delegations[0].TaskID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusCompleted, finalTask.Status)
}

func TestCoordinator_IllegalPhaseCallPanics(t *testing.T) {
	c, cleanup := newTestCoordinator(t)
	defer cleanup()

	require.Panics(t, func() {
		_, _ = c.ExecuteNextWave(context.Background())
	})
}

func TestParseVerdict_NotApprovedWinsOverApproved(t *testing.T) {
	v, warning := parseVerdict("approved earlier but now NOT APPROVED after review")
	require.Equal(t, model.VerdictNotApproved, v)
	require.NotNil(t, warning)
}

func TestParseVerdict_NoMarkersIsBlocked(t *testing.T) {
	v, warning := parseVerdict("the task looks fine to me")
	require.Equal(t, model.VerdictBlocked, v)
	require.Nil(t, warning)
}
