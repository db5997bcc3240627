package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/model"
)

func TestMemoryAgentStore_DuplicateRouta(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAgentStore()

	routa1 := &model.Agent{ID: "a1", Role: model.RoleRouta, WorkspaceID: "ws1", Status: model.AgentStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.Create(ctx, routa1))

	routa2 := &model.Agent{ID: "a2", Role: model.RoleRouta, WorkspaceID: "ws1", Status: model.AgentStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	err := s.Create(ctx, routa2)
	require.ErrorIs(t, err, ErrDuplicateRouta)
}

func TestMemoryAgentStore_UpdateStatusCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAgentStore()
	a := &model.Agent{ID: "a1", Role: model.RoleCrafter, WorkspaceID: "ws1", Status: model.AgentStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.Create(ctx, a))

	got, err := s.UpdateStatus(ctx, "a1", model.AgentStatusPending, model.AgentStatusActive)
	require.NoError(t, err)
	require.Equal(t, model.AgentStatusActive, got.Status)

	// Stale CAS should fail.
	_, err = s.UpdateStatus(ctx, "a1", model.AgentStatusPending, model.AgentStatusActive)
	require.ErrorIs(t, err, ErrCompareAndSetFailed)

	// Illegal transition should fail even with the right "from".
	_, err = s.UpdateStatus(ctx, "a1", model.AgentStatusActive, model.AgentStatusPending)
	require.ErrorIs(t, err, ErrCompareAndSetFailed)
}

func TestMemoryTaskStore_FindReadyTasks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTaskStore()
	now := time.Now()

	t1 := &model.Task{ID: "t1", WorkspaceID: "ws1", Status: model.TaskStatusPending, CreatedAt: now, UpdatedAt: now}
	t2 := &model.Task{ID: "t2", WorkspaceID: "ws1", Status: model.TaskStatusPending, Dependencies: []string{"t1"}, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Save(ctx, t1))
	require.NoError(t, s.Save(ctx, t2))

	ready, err := s.FindReadyTasks(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, "t1", ready[0].ID)

	_, err = s.UpdateStatus(ctx, "t1", model.TaskStatusPending, model.TaskStatusInProgress)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "t1", model.TaskStatusInProgress, model.TaskStatusReviewRequired)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "t1", model.TaskStatusReviewRequired, model.TaskStatusCompleted)
	require.NoError(t, err)

	ready, err = s.FindReadyTasks(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, "t2", ready[0].ID)
}

func TestMemoryConversationStore_OrderAndTail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryConversationStore()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, model.Message{AgentID: "a1", Role: model.MessageRoleAgent, Content: string(rune('A' + i)), Timestamp: time.Now()}))
	}

	all, err := s.GetConversation(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "A", all[0].Content)
	require.Equal(t, "E", all[4].Content)

	last2, err := s.GetLastN(ctx, "a1", 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	require.Equal(t, "D", last2[0].Content)
	require.Equal(t, "E", last2[1].Content)

	count, err := s.GetMessageCount(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 5, count)
}
