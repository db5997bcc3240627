// Package subscription implements the Subscription Service of spec §4.3:
// per-agent filtered views over the event bus, with wildcard patterns,
// self-exclusion, one-shot auto-unsubscribe, and drainable pending queues.
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/eventbus"
	"github.com/kandev/wavecoord/internal/model"
)

// DeliveredEvent pairs a matched event with the time it was enqueued for a
// given subscriber.
type DeliveredEvent struct {
	Event       model.AgentEvent
	DeliveredAt time.Time
}

// Service maintains the two maps described in spec §4.3: subscriptions keyed
// by subscription id, and pendingEvents keyed by subscriber agent id.
type Service struct {
	mu            sync.Mutex
	subscriptions map[string]*model.EventSubscription
	pendingEvents map[string][]DeliveredEvent

	bus      eventbus.EventBus
	log      *logger.Logger
	unsubBus func()
}

// New constructs a Subscription Service bound to the given bus. Call
// StartListening to begin consuming events.
func New(bus eventbus.EventBus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		subscriptions: make(map[string]*model.EventSubscription),
		pendingEvents: make(map[string][]DeliveredEvent),
		bus:           bus,
		log:           log,
	}
}

// Subscribe registers a new filtered subscription and returns its id.
func (s *Service) Subscribe(agentID, agentName string, eventTypes []string, excludeSelf, oneShot bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.subscriptions[id] = &model.EventSubscription{
		ID:          id,
		AgentID:     agentID,
		AgentName:   agentName,
		EventTypes:  append([]string(nil), eventTypes...),
		ExcludeSelf: excludeSelf,
		OneShot:     oneShot,
		CreatedAt:   time.Now(),
	}
	return id
}

// SubscribeToAgentCompletion is the convenience constructor of spec §4.3: a
// one-shot, self-excluding subscription on completion/status-changed events.
// The caller is expected to filter the drained events by target agent id.
func (s *Service) SubscribeToAgentCompletion(caller, target string) string {
	return s.Subscribe(caller, caller,
		[]string{string(model.EventTypeAgentCompleted), string(model.EventTypeAgentStatusChanged)},
		true, true)
}

// Unsubscribe removes a subscription by id. Unknown ids are a no-op.
func (s *Service) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, id)
}

// UnsubscribeAll removes every subscription owned by the given agent.
func (s *Service) UnsubscribeAll(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subscriptions {
		if sub.AgentID == agentID {
			delete(s.subscriptions, id)
		}
	}
}

// DrainPendingEvents returns the current pending queue for agentID and
// clears it atomically.
func (s *Service) DrainPendingEvents(agentID string) []DeliveredEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pendingEvents[agentID]
	delete(s.pendingEvents, agentID)
	return pending
}

// StartListening subscribes to the bus and dispatches every event through
// handleEvent until ctx is cancelled.
func (s *Service) StartListening(ctx context.Context) error {
	unsub, err := s.bus.Subscribe(func(_ context.Context, event model.AgentEvent) {
		s.handleEvent(event)
	})
	if err != nil {
		return err
	}
	s.unsubBus = unsub

	go func() {
		<-ctx.Done()
		s.unsubBus()
	}()
	return nil
}

// handleEvent sweeps every subscription for a match, per spec §4.3: enqueue
// under the subscriber id if the pattern matches and (not excludeSelf or
// actor != subscriber); mark one-shot matches for removal; apply removals
// after the full sweep so a single event can't skip a subscriber.
func (s *Service) handleEvent(event model.AgentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, hasActor := event.Actor()
	now := time.Now()
	var toRemove []string

	for id, sub := range s.subscriptions {
		if !s.matchesAny(sub.EventTypes, event.Type) {
			continue
		}
		if sub.ExcludeSelf && hasActor && actor == sub.AgentID {
			continue
		}
		s.pendingEvents[sub.AgentID] = append(s.pendingEvents[sub.AgentID], DeliveredEvent{
			Event:       event,
			DeliveredAt: now,
		})
		if sub.OneShot {
			toRemove = append(toRemove, id)
		}
	}

	for _, id := range toRemove {
		delete(s.subscriptions, id)
	}
}

func (s *Service) matchesAny(patterns []string, eventType model.EventType) bool {
	for _, p := range patterns {
		if model.MatchesEventType(p, eventType) {
			return true
		}
	}
	return false
}
