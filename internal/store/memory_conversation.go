package store

import (
	"context"
	"sync"

	"github.com/kandev/wavecoord/internal/model"
)

// MemoryConversationStore is a concurrency-safe in-memory ConversationStore.
// Appends preserve insertion order per agent.
type MemoryConversationStore struct {
	mu   sync.Mutex
	logs map[string][]model.Message
}

var _ ConversationStore = (*MemoryConversationStore)(nil)

// NewMemoryConversationStore creates an empty in-memory conversation store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{logs: make(map[string][]model.Message)}
}

func (s *MemoryConversationStore) Append(_ context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[msg.AgentID] = append(s.logs[msg.AgentID], msg)
	return nil
}

func (s *MemoryConversationStore) GetConversation(_ context.Context, agentID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.logs[agentID]...), nil
}

func (s *MemoryConversationStore) GetLastN(_ context.Context, agentID string, n int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.logs[agentID]
	if n <= 0 || n >= len(msgs) {
		return append([]model.Message(nil), msgs...), nil
	}
	return append([]model.Message(nil), msgs[len(msgs)-n:]...), nil
}

func (s *MemoryConversationStore) GetByTurnRange(_ context.Context, agentID string, fromTurn, toTurn int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.logs[agentID] {
		if m.Turn == nil {
			continue
		}
		if *m.Turn >= fromTurn && *m.Turn <= toTurn {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryConversationStore) GetMessageCount(_ context.Context, agentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs[agentID]), nil
}

func (s *MemoryConversationStore) DeleteConversation(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, agentID)
	return nil
}
