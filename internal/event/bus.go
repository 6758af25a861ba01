// Package event provides the in-memory bus connecting the telemetry
// channel, the router, and the notification watcher to their consumers.
package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is a typed message on the bus.
type Event struct {
	Topic     string
	Source    string // component that emitted the event
	Timestamp time.Time
	Payload   any // type depends on topic
}

// Handler processes events from the bus.
type Handler func(ctx context.Context, event Event)

// Bus is an in-memory topic bus. Publish is synchronous: handlers run in
// the caller's goroutine, in subscription order. Per-topic ordering is
// therefore exactly the publisher's call order, which the telemetry
// router relies on. PublishAsync dispatches each handler in its own
// goroutine and gives no ordering guarantee.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]Handler
	logger   *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string]map[uint64]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a topic. The returned function
// removes the subscription; calling it more than once is harmless.
func (b *Bus) Subscribe(topic string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	m := b.handlers[topic]
	if m == nil {
		m = make(map[uint64]Handler)
		b.handlers[topic] = m
	}
	m[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
	}
}

// Publish dispatches an event synchronously to all handlers subscribed
// to its topic.
func (b *Bus) Publish(ctx context.Context, event Event) {
	for _, h := range b.snapshot(event.Topic) {
		b.safeCall(ctx, h, event)
	}
}

// PublishAsync dispatches an event to each subscribed handler in a
// separate goroutine.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	for _, h := range b.snapshot(event.Topic) {
		go b.safeCall(ctx, h, event)
	}
}

// snapshot returns the topic's handlers in stable subscription order.
func (b *Bus) snapshot(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	m := b.handlers[topic]
	if len(m) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	// Insertion sort; handler counts are small (panels, router).
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	out := make([]Handler, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

func (b *Bus) safeCall(ctx context.Context, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, event)
}
