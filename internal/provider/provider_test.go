package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/store"
)

type failingProvider struct {
	caps Capabilities
}

func (f *failingProvider) Run(context.Context, model.Role, string, string) (string, error) {
	return "", errors.New("boom")
}
func (f *failingProvider) RunStreaming(context.Context, model.Role, string, string, ChunkHandler) (string, error) {
	return "", errors.New("boom")
}
func (f *failingProvider) Interrupt(string) error       { return nil }
func (f *failingProvider) Capabilities() Capabilities    { return f.caps }

func TestCapabilityBasedRouter_PicksBestFitForRole(t *testing.T) {
	toolOnly := NewMockProvider(Capabilities{Name: "tool-only", SupportsToolCalling: true}, nil)
	fileAndTerm := NewMockProvider(Capabilities{Name: "craft", SupportsFileEditing: true, SupportsTerminal: true}, nil)

	router := NewCapabilityBasedRouter(toolOnly, fileAndTerm)

	require.Equal(t, fileAndTerm, router.pick(model.RoleCrafter))
	require.Equal(t, toolOnly, router.pick(model.RoleRouta))
	require.Equal(t, toolOnly, router.pick(model.RoleGate))
}

func TestCapabilityBasedRouter_FallsBackWhenNoneSatisfies(t *testing.T) {
	basic := NewMockProvider(Capabilities{Name: "basic"}, nil)
	router := NewCapabilityBasedRouter(basic)
	require.Equal(t, basic, router.pick(model.RoleCrafter))
}

func TestResilientAgentProvider_NeverReturnsError(t *testing.T) {
	convos := store.NewMemoryConversationStore()
	resilient := NewResilientAgentProvider(&failingProvider{}, convos, time.Second, nil)

	out, err := resilient.Run(context.Background(), model.RoleCrafter, "agent-1", "do it")
	require.NoError(t, err)
	require.Contains(t, out, "[provider error:")

	msgs, merr := convos.GetConversation(context.Background(), "agent-1")
	require.NoError(t, merr)
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Content, "provider error")
}

func TestMockProvider_RecordsCallOrderAndConsumesScripts(t *testing.T) {
	m := NewMockProvider(Capabilities{}, map[model.Role][]string{
		model.RoleGate: {"NOT APPROVED", "APPROVED"},
	})

	first, err := m.Run(context.Background(), model.RoleGate, "gate-1", "")
	require.NoError(t, err)
	require.Equal(t, "NOT APPROVED", first)

	second, err := m.Run(context.Background(), model.RoleGate, "gate-1", "")
	require.NoError(t, err)
	require.Equal(t, "APPROVED", second)

	require.Equal(t, []model.Role{model.RoleGate, model.RoleGate}, m.CallOrder)

	_, err = m.Run(context.Background(), model.RoleGate, "gate-1", "")
	require.Error(t, err)
}
