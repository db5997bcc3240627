package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/eventbus"
	"github.com/kandev/wavecoord/internal/model"
)

func newTestService(t *testing.T) (*Service, eventbus.EventBus, func()) {
	t.Helper()
	bus := eventbus.NewMemoryEventBus(16, nil)
	svc := New(bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.StartListening(ctx))
	return svc, bus, func() {
		cancel()
		bus.Close()
	}
}

func TestService_WildcardAndExactMatching(t *testing.T) {
	svc, bus, cleanup := newTestService(t)
	defer cleanup()

	svc.Subscribe("watcher", "watcher", []string{"agent:*"}, false, false)
	svc.Subscribe("exact", "exact", []string{string(model.EventTypeTaskDelegated)}, false, false)

	require.NoError(t, bus.Emit(context.Background(), model.NewAgentCreated("a1", "ws1", nil)))
	require.NoError(t, bus.Emit(context.Background(), model.NewTaskDelegated("t1", "a1", "a2")))

	watcherPending := svc.DrainPendingEvents("watcher")
	require.Len(t, watcherPending, 1)
	require.Equal(t, model.EventTypeAgentCreated, watcherPending[0].Event.Type)

	exactPending := svc.DrainPendingEvents("exact")
	require.Len(t, exactPending, 1)
	require.Equal(t, model.EventTypeTaskDelegated, exactPending[0].Event.Type)
}

func TestService_SelfExclusion(t *testing.T) {
	svc, bus, cleanup := newTestService(t)
	defer cleanup()

	svc.Subscribe("a1", "a1", []string{"*"}, true, false)
	require.NoError(t, bus.Emit(context.Background(), model.NewAgentStatusChanged("a1", model.AgentStatusPending, model.AgentStatusActive)))
	require.NoError(t, bus.Emit(context.Background(), model.NewAgentStatusChanged("a2", model.AgentStatusPending, model.AgentStatusActive)))

	pending := svc.DrainPendingEvents("a1")
	require.Len(t, pending, 1)
	require.Equal(t, "a2", pending[0].Event.AgentStatusChanged.AgentID)
}

func TestService_OneShotAutoUnsubscribe(t *testing.T) {
	svc, bus, cleanup := newTestService(t)
	defer cleanup()

	id := svc.SubscribeToAgentCompletion("caller", "target")
	require.NotEmpty(t, id)

	require.NoError(t, bus.Emit(context.Background(), model.NewAgentCompleted("target", "parent", model.CompletionReport{})))
	first := svc.DrainPendingEvents("caller")
	require.Len(t, first, 1)

	require.NoError(t, bus.Emit(context.Background(), model.NewAgentCompleted("target", "parent", model.CompletionReport{})))
	second := svc.DrainPendingEvents("caller")
	require.Empty(t, second, "one-shot subscription must not fire twice")
}

func TestService_DrainClearsQueue(t *testing.T) {
	svc, bus, cleanup := newTestService(t)
	defer cleanup()

	svc.Subscribe("a1", "a1", []string{"*"}, false, false)
	require.NoError(t, bus.Emit(context.Background(), model.NewAgentCreated("a2", "ws1", nil)))

	require.Len(t, svc.DrainPendingEvents("a1"), 1)
	require.Empty(t, svc.DrainPendingEvents("a1"))
}

func TestService_UnsubscribeAll(t *testing.T) {
	svc, bus, cleanup := newTestService(t)
	defer cleanup()

	svc.Subscribe("a1", "a1", []string{"*"}, false, false)
	svc.Subscribe("a1", "a1", []string{"task:*"}, false, false)
	svc.UnsubscribeAll("a1")

	require.NoError(t, bus.Emit(context.Background(), model.NewAgentCreated("a2", "ws1", nil)))
	time.Sleep(5 * time.Millisecond)
	require.Empty(t, svc.DrainPendingEvents("a1"))
}
