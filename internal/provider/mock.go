package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/kandev/wavecoord/internal/model"
)

// MockProvider is a deterministic Provider used to drive the end-to-end
// scenarios of spec §8: a scripted sequence of outputs per role, replayed
// in call order, with every invocation recorded for assertions.
type MockProvider struct {
	mu        sync.Mutex
	caps      Capabilities
	scripts   map[model.Role][]string
	cursor    map[model.Role]int
	CallOrder []model.Role
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider builds a MockProvider with the given capability profile
// and a per-role queue of scripted outputs, consumed in order.
func NewMockProvider(caps Capabilities, scripts map[model.Role][]string) *MockProvider {
	return &MockProvider{
		caps:    caps,
		scripts: scripts,
		cursor:  make(map[model.Role]int),
	}
}

func (m *MockProvider) Run(_ context.Context, role model.Role, _ string, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallOrder = append(m.CallOrder, role)

	queue := m.scripts[role]
	i := m.cursor[role]
	if i >= len(queue) {
		return "", fmt.Errorf("mock provider exhausted scripted outputs for role %s", role)
	}
	m.cursor[role] = i + 1
	return queue[i], nil
}

func (m *MockProvider) RunStreaming(ctx context.Context, role model.Role, agentID, prompt string, onChunk ChunkHandler) (string, error) {
	out, err := m.Run(ctx, role, agentID, prompt)
	if err != nil {
		return "", err
	}
	if onChunk != nil {
		onChunk(out)
	}
	return out, nil
}

func (m *MockProvider) Interrupt(string) error { return nil }

func (m *MockProvider) Capabilities() Capabilities { return m.caps }
