// Package eventbus implements the single fan-out channel of spec §4.2: a
// bounded-buffer bus where Emit suspends until the event has been delivered
// to every active subscriber, and TryEmit never blocks.
package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/model"
)

// ErrClosed is returned by Emit/Subscribe once the bus has been closed;
// TryEmit reports false instead.
var ErrClosed = errors.New("event bus is closed")

// Handler receives a delivered event. Handlers run synchronously inside
// Emit's suspend window, so a slow handler slows every emitter.
type Handler func(ctx context.Context, event model.AgentEvent)

// EventBus is the single fan-out channel feeding the subscription service.
// Subscribers receive every event unfiltered; filtering belongs to the
// subscription layer (spec §4.3), not the bus.
type EventBus interface {
	// Emit suspends until the event has been delivered to every active
	// subscriber (spec §5 suspension points).
	Emit(ctx context.Context, event model.AgentEvent) error
	// TryEmit never blocks; it returns false if the bounded buffer is full.
	// Reserved for best-effort mirrors (UI streaming) per spec §5.
	TryEmit(event model.AgentEvent) bool
	// Subscribe registers a raw handler invoked for every emitted event, in
	// emission order relative to other deliveries to this same handler.
	// The returned function unsubscribes.
	Subscribe(handler Handler) (func(), error)
	Close() error
}

type subscriber struct {
	id      int
	handler Handler
	active  bool
}

// MemoryEventBus is the reference EventBus: an in-process bounded queue
// drained by a single dispatch loop, grounded on the teacher's
// internal/events/bus.MemoryEventBus fan-out pattern but adapted to the
// typed model.AgentEvent union instead of a generic map-based Event.
type MemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	closed      bool

	buffer chan queuedEvent
	log    *logger.Logger
	wg     sync.WaitGroup
}

type queuedEvent struct {
	ctx   context.Context
	event model.AgentEvent
	done  chan struct{} // non-nil for Emit (suspending); nil for TryEmit
}

var _ EventBus = (*MemoryEventBus)(nil)

// NewMemoryEventBus creates a bus with the given bounded buffer capacity
// (spec §4.2 reference capacity is 256) and starts its dispatch loop.
func NewMemoryEventBus(capacity int, log *logger.Logger) *MemoryEventBus {
	if capacity <= 0 {
		capacity = 256
	}
	if log == nil {
		log = logger.Default()
	}
	b := &MemoryEventBus{
		subscribers: make(map[int]*subscriber),
		buffer:      make(chan queuedEvent, capacity),
		log:         log,
	}
	b.wg.Add(1)
	go b.dispatchLoop()
	return b
}

func (b *MemoryEventBus) dispatchLoop() {
	defer b.wg.Done()
	for qe := range b.buffer {
		b.deliver(qe)
		if qe.done != nil {
			close(qe.done)
		}
	}
}

func (b *MemoryEventBus) deliver(qe queuedEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		if s.active {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(qe.ctx, qe.event)
	}
}

// Emit enqueues the event and blocks until the dispatch loop has delivered
// it to every currently-active subscriber.
func (b *MemoryEventBus) Emit(ctx context.Context, event model.AgentEvent) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	done := make(chan struct{})
	select {
	case b.buffer <- queuedEvent{ctx: ctx, event: event, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEmit attempts a non-blocking enqueue. Per spec §7, this is the only
// path that can fail with BufferOverflow; Emit always suspends instead.
func (b *MemoryEventBus) TryEmit(event model.AgentEvent) bool {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return false
	}

	select {
	case b.buffer <- queuedEvent{ctx: context.Background(), event: event}:
		return true
	default:
		b.log.Warn("event bus buffer full, dropping tryEmit event")
		return false
	}
}

func (b *MemoryEventBus) Subscribe(handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{id: id, handler: handler, active: true}
	b.subscribers[id] = sub

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			s.active = false
			delete(b.subscribers, id)
		}
	}, nil
}

// Close stops accepting new events and drains the dispatch loop.
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.buffer)
	b.wg.Wait()
	return nil
}
