package model

import "testing"

func TestMatchesEventType(t *testing.T) {
	cases := []struct {
		pattern string
		evt     EventType
		want    bool
	}{
		{"*", EventTypeAgentCreated, true},
		{"*", EventTypeTaskDelegated, true},
		{"agent:*", EventTypeAgentCreated, true},
		{"agent:*", EventTypeAgentCompleted, true},
		{"agent:*", EventTypeTaskDelegated, false},
		{"task:*", EventTypeTaskStatusChanged, true},
		{"agent:completed", EventTypeAgentCompleted, true},
		{"agent:completed", EventTypeAgentStatusChanged, false},
		{"task:delegated", EventTypeTaskDelegated, true},
	}
	for _, c := range cases {
		got := MatchesEventType(c.pattern, c.evt)
		if got != c.want {
			t.Errorf("MatchesEventType(%q, %q) = %v, want %v", c.pattern, c.evt, got, c.want)
		}
	}
}

func TestActorDerivation(t *testing.T) {
	evt := NewAgentCreated("a2", "ws1", strPtr("a1"))
	actor, ok := evt.Actor()
	if !ok || actor != "a2" {
		t.Fatalf("AgentCreated actor = %q, %v; want a2, true", actor, ok)
	}

	evt2 := NewTaskStatusChanged("t1", TaskStatusPending, TaskStatusInProgress)
	if _, ok := evt2.Actor(); ok {
		t.Fatalf("TaskStatusChanged should have no actor")
	}

	evt3 := NewTaskDelegated("t1", "a2", "a1")
	actor3, ok3 := evt3.Actor()
	if !ok3 || actor3 != "a1" {
		t.Fatalf("TaskDelegated actor = %q, %v; want a1, true", actor3, ok3)
	}
}

func strPtr(s string) *string { return &s }
