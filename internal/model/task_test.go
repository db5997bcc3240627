package model

import "testing"

func TestCanTransitionTaskStatus(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusInProgress, true},
		{TaskStatusInProgress, TaskStatusReviewRequired, true},
		{TaskStatusReviewRequired, TaskStatusCompleted, true},
		{TaskStatusReviewRequired, TaskStatusNeedsFix, true},
		{TaskStatusNeedsFix, TaskStatusPending, true},
		{TaskStatusCompleted, TaskStatusPending, false},
		{TaskStatusPending, TaskStatusReviewRequired, false},
		{TaskStatusNeedsFix, TaskStatusInProgress, false},
	}
	for _, c := range cases {
		got := CanTransitionTaskStatus(c.from, c.to)
		if got != c.want {
			t.Errorf("CanTransitionTaskStatus(%v, %v) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsAssignableStatus(t *testing.T) {
	for _, s := range []TaskStatus{TaskStatusInProgress, TaskStatusReviewRequired, TaskStatusNeedsFix} {
		if !IsAssignableStatus(s) {
			t.Errorf("expected %v to be assignable", s)
		}
	}
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusCompleted, TaskStatusBlocked, TaskStatusCancelled} {
		if IsAssignableStatus(s) {
			t.Errorf("expected %v to not be assignable", s)
		}
	}
}

func TestCanTransitionAgentStatus(t *testing.T) {
	if !CanTransitionAgentStatus(AgentStatusPending, AgentStatusActive) {
		t.Error("PENDING -> ACTIVE should be legal")
	}
	for _, to := range []AgentStatus{AgentStatusCompleted, AgentStatusError, AgentStatusCancelled} {
		if !CanTransitionAgentStatus(AgentStatusActive, to) {
			t.Errorf("ACTIVE -> %v should be legal", to)
		}
	}
	if CanTransitionAgentStatus(AgentStatusCompleted, AgentStatusActive) {
		t.Error("COMPLETED -> ACTIVE should not be legal (no transitions back)")
	}
}
