package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/model"
)

func TestMemoryEventBus_EmitDeliversInOrder(t *testing.T) {
	b := NewMemoryEventBus(8, nil)
	defer b.Close()

	var mu sync.Mutex
	var received []string

	unsub, err := b.Subscribe(func(_ context.Context, e model.AgentEvent) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(e.Type))
	})
	require.NoError(t, err)
	defer unsub()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Emit(ctx, model.NewAgentCreated("a1", "ws1", nil)))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 5)
	for _, typ := range received {
		require.Equal(t, string(model.EventTypeAgentCreated), typ)
	}
}

func TestMemoryEventBus_EmitBlocksUntilDelivered(t *testing.T) {
	b := NewMemoryEventBus(8, nil)
	defer b.Close()

	delivered := make(chan struct{}, 1)
	unsub, err := b.Subscribe(func(_ context.Context, _ model.AgentEvent) {
		time.Sleep(10 * time.Millisecond)
		delivered <- struct{}{}
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, b.Emit(context.Background(), model.NewAgentCreated("a1", "ws1", nil)))

	select {
	case <-delivered:
	default:
		t.Fatal("Emit returned before delivery completed")
	}
}

func TestMemoryEventBus_TryEmitNeverBlocks(t *testing.T) {
	b := NewMemoryEventBus(1, nil)
	defer b.Close()

	ok := b.TryEmit(model.NewAgentCreated("a1", "ws1", nil))
	require.True(t, ok)
}

func TestMemoryEventBus_ClosedRejectsEmit(t *testing.T) {
	b := NewMemoryEventBus(8, nil)
	require.NoError(t, b.Close())

	err := b.Emit(context.Background(), model.NewAgentCreated("a1", "ws1", nil))
	require.Error(t, err)

	require.False(t, b.TryEmit(model.NewAgentCreated("a1", "ws1", nil)))
}
