package openai

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/model"
)

func TestProvider_Capabilities(t *testing.T) {
	p := New(Config{APIKey: "test-key", Model: "gpt-4o"})
	caps := p.Capabilities()
	require.Equal(t, "openai", caps.Name)
	require.True(t, caps.SupportsToolCalling)
	require.False(t, caps.SupportsTerminal)
}

func TestSystemPromptFor(t *testing.T) {
	require.Contains(t, systemPromptFor(model.RoleRouta), "ROUTA")
	require.Contains(t, systemPromptFor(model.RoleCrafter), "CRAFTER")
	require.Contains(t, systemPromptFor(model.RoleGate), "GATE")
}

func TestProvider_Interrupt_NoOp(t *testing.T) {
	p := New(Config{APIKey: "test-key", Model: "gpt-4o"})
	require.NoError(t, p.Interrupt("agent-1"))
}
