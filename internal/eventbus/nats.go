package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/kandev/wavecoord/internal/common/kerrors"
	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/model"
)

const defaultSubject = "wavecoord.events"

// NATSEventBus is a cluster-capable EventBus backed by a NATS core subject,
// selected via EventsConfig.Backend == "nats" (SPEC_FULL.md DOMAIN STACK).
// Unlike MemoryEventBus's single in-process dispatch loop, delivery here
// crosses the NATS client, so Emit's suspend window covers publish-ack, not
// subscriber execution; subscriber handlers still run synchronously per
// message from the client's own delivery goroutine.
type NATSEventBus struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string

	handlers   map[int]Handler
	nextID     int
	mu         sync.RWMutex
	closed     bool
	log        *logger.Logger
}

var _ EventBus = (*NATSEventBus)(nil)

// NewNATSEventBus connects to a NATS server and subscribes to the shared
// wavecoord event subject.
func NewNATSEventBus(url string, log *logger.Logger) (*NATSEventBus, error) {
	if log == nil {
		log = logger.Default()
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, kerrors.New(kerrors.KindConfigError, fmt.Errorf("connect to nats at %s: %w", url, err))
	}

	b := &NATSEventBus{
		conn:     conn,
		subject:  defaultSubject,
		handlers: make(map[int]Handler),
		log:      log,
	}

	sub, err := conn.Subscribe(defaultSubject, b.onMessage)
	if err != nil {
		conn.Close()
		return nil, kerrors.New(kerrors.KindConfigError, fmt.Errorf("subscribe to %s: %w", defaultSubject, err))
	}
	b.sub = sub

	return b, nil
}

func (b *NATSEventBus) onMessage(msg *nats.Msg) {
	var event model.AgentEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		b.log.Warn("failed to decode nats event payload")
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	ctx := context.Background()
	for _, h := range handlers {
		h(ctx, event)
	}
}

// Emit publishes the event and flushes the connection, so the call returns
// only once the server has acknowledged receipt.
func (b *NATSEventBus) Emit(ctx context.Context, event model.AgentEvent) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return err
	}
	return b.conn.FlushWithContext(ctx)
}

// TryEmit publishes without waiting for server acknowledgement.
func (b *NATSEventBus) TryEmit(event model.AgentEvent) bool {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return false
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.log.Warn("failed to encode event for tryEmit")
		return false
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		b.log.Warn("nats publish failed on tryEmit")
		return false
	}
	return true
}

func (b *NATSEventBus) Subscribe(handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}, nil
}

// Close unsubscribes and drains the NATS connection.
func (b *NATSEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.conn.Close()
	return nil
}
