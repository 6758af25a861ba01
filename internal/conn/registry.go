package conn

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/event"
)

// ControlSender sends tank interest frames over the live channel.
// Manager implements it.
type ControlSender interface {
	SendSubscribe(ctx context.Context, resourceID string) error
	SendUnsubscribe(ctx context.Context, resourceID string) error
}

// Registry tracks which tanks the current binding wants targeted updates
// for. Interest is reference-counted: several panels may subscribe to the
// same tank, and the feed is only told on the 0→1 and 1→0 transitions.
// When the binding goes away all counts are dropped without sending
// frames; panels that still care must subscribe again, which keeps a
// rebind from silently re-subscribing tanks nobody watches anymore.
type Registry struct {
	sender ControlSender
	logger *zap.Logger

	mu     sync.Mutex
	counts map[string]int
}

// NewRegistry creates a registry multiplexed over the given sender. If
// bus is non-nil the registry invalidates itself whenever the channel
// binding is torn down.
func NewRegistry(sender ControlSender, bus *event.Bus, logger *zap.Logger) *Registry {
	r := &Registry{
		sender: sender,
		logger: logger,
		counts: make(map[string]int),
	}
	if bus != nil {
		bus.Subscribe(TopicUnbound, func(_ context.Context, _ event.Event) {
			r.Invalidate()
		})
	}
	return r
}

// Subscribe registers interest in a tank. The subscribe frame is sent
// only when this is the first interested caller; a channel outage at
// that moment is logged, not returned, because the count is kept and
// the feed re-learns interest when panels re-subscribe after reconnect.
func (r *Registry) Subscribe(ctx context.Context, resourceID string) {
	r.mu.Lock()
	r.counts[resourceID]++
	first := r.counts[resourceID] == 1
	r.mu.Unlock()

	if !first {
		return
	}
	if err := r.sender.SendSubscribe(ctx, resourceID); err != nil {
		if !errors.Is(err, ErrNotConnected) {
			r.logger.Warn("subscribe frame failed",
				zap.String("resource_id", resourceID), zap.Error(err))
		}
	}
}

// Unsubscribe withdraws one caller's interest. The unsubscribe frame is
// sent only when no caller remains. Unsubscribing without a prior
// subscribe is a no-op.
func (r *Registry) Unsubscribe(ctx context.Context, resourceID string) {
	r.mu.Lock()
	n, ok := r.counts[resourceID]
	if !ok {
		r.mu.Unlock()
		return
	}
	n--
	last := n == 0
	if last {
		delete(r.counts, resourceID)
	} else {
		r.counts[resourceID] = n
	}
	r.mu.Unlock()

	if !last {
		return
	}
	if err := r.sender.SendUnsubscribe(ctx, resourceID); err != nil {
		if !errors.Is(err, ErrNotConnected) {
			r.logger.Warn("unsubscribe frame failed",
				zap.String("resource_id", resourceID), zap.Error(err))
		}
	}
}

// Count returns the number of interested callers for a tank.
func (r *Registry) Count(resourceID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[resourceID]
}

// Invalidate drops all interest without sending frames. Called on
// unbind/rebind; the registry never auto-resubscribes.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	n := len(r.counts)
	r.counts = make(map[string]int)
	r.mu.Unlock()

	if n > 0 {
		r.logger.Debug("subscriptions invalidated", zap.Int("count", n))
	}
}
