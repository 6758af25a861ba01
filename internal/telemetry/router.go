package telemetry

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/conn"
	"github.com/wardflow/tanksentry/internal/event"
	"github.com/wardflow/tanksentry/pkg/models"
)

// ClassifiedReading is a sensor reading with its derived tier. The tier
// is recomputed for every reading, never cached as authoritative state.
type ClassifiedReading struct {
	models.SensorReading
	Tier models.StatusTier `json:"tier"`
}

// ReadingObserver receives classified readings for a tank.
type ReadingObserver func(ClassifiedReading)

// AlertObserver receives accepted (deduplicated) alerts.
type AlertObserver func(models.AlertEvent)

// Router consumes channel events, classifies readings, deduplicates
// alerts, and republishes to in-process observers. Delivery runs in the
// channel's read goroutine, so observers for a given tank see events in
// exactly the order the channel produced them; no batching, no
// reordering. Observer callbacks must therefore be quick.
type Router struct {
	policy Policy
	dedup  *Deduplicator
	logger *zap.Logger

	mu         sync.RWMutex
	nextID     uint64
	readingObs map[string]map[uint64]ReadingObserver // resource id ("" = all tanks)
	alertObs   map[uint64]AlertObserver
	latest     map[string]ClassifiedReading
}

// NewRouter creates a router wired to the channel topics on the bus.
// The deduplicator is reset whenever the channel binding is torn down.
func NewRouter(policy Policy, dedup *Deduplicator, bus *event.Bus, logger *zap.Logger) *Router {
	r := &Router{
		policy:     policy,
		dedup:      dedup,
		logger:     logger,
		readingObs: make(map[string]map[uint64]ReadingObserver),
		alertObs:   make(map[uint64]AlertObserver),
		latest:     make(map[string]ClassifiedReading),
	}

	bus.Subscribe(conn.TopicReading, r.onReading)
	bus.Subscribe(conn.TopicAlert, r.onAlert)
	bus.Subscribe(conn.TopicUnbound, func(_ context.Context, _ event.Event) {
		r.dedup.Reset()
	})

	return r
}

// ObserveReadings registers an observer for one tank, or for all tanks
// when resourceID is empty. Returns a removal function.
func (r *Router) ObserveReadings(resourceID string, fn ReadingObserver) (remove func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	m := r.readingObs[resourceID]
	if m == nil {
		m = make(map[uint64]ReadingObserver)
		r.readingObs[resourceID] = m
	}
	m[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.readingObs[resourceID], id)
	}
}

// ObserveAlerts registers an observer for accepted alerts.
func (r *Router) ObserveAlerts(fn AlertObserver) (remove func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.alertObs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.alertObs, id)
	}
}

// Latest returns the most recent classified reading for a tank.
func (r *Router) Latest(resourceID string) (ClassifiedReading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cr, ok := r.latest[resourceID]
	return cr, ok
}

// Snapshot returns the latest classified reading per tank, sorted by
// resource ID. This is the read surface for the CSV export and the
// status endpoint.
func (r *Router) Snapshot() []ClassifiedReading {
	r.mu.RLock()
	out := make([]ClassifiedReading, 0, len(r.latest))
	for _, cr := range r.latest {
		out = append(out, cr)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

func (r *Router) onReading(_ context.Context, e event.Event) {
	reading, ok := e.Payload.(models.SensorReading)
	if !ok || !reading.Valid() {
		r.logger.Warn("dropping malformed reading event")
		return
	}

	cr := ClassifiedReading{
		SensorReading: reading,
		Tier:          r.policy.Classify(reading.Metrics),
	}
	readingsClassified.Inc()

	r.mu.Lock()
	r.latest[reading.ResourceID] = cr
	targeted := observerSnapshot(r.readingObs[reading.ResourceID])
	global := observerSnapshot(r.readingObs[""])
	r.mu.Unlock()

	for _, fn := range global {
		fn(cr)
	}
	for _, fn := range targeted {
		fn(cr)
	}
}

func (r *Router) onAlert(_ context.Context, e event.Event) {
	alert, ok := e.Payload.(models.AlertEvent)
	if !ok || !alert.Valid() {
		r.logger.Warn("dropping malformed alert event")
		return
	}

	// Reconnect replay may redeliver an alert; surface each ID once.
	if !r.dedup.Accept(alert.ID) {
		alertsDuplicate.Inc()
		r.logger.Debug("duplicate alert absorbed", zap.String("alert_id", alert.ID))
		return
	}
	alertsAccepted.Inc()

	r.mu.RLock()
	obs := make([]pair[AlertObserver], 0, len(r.alertObs))
	for id, fn := range r.alertObs {
		obs = append(obs, pair[AlertObserver]{id, fn})
	}
	r.mu.RUnlock()

	sort.Slice(obs, func(i, j int) bool { return obs[i].id < obs[j].id })
	for _, o := range obs {
		o.fn(alert)
	}
}

type pair[T any] struct {
	id uint64
	fn T
}

// observerSnapshot returns observers in registration order.
func observerSnapshot(m map[uint64]ReadingObserver) []ReadingObserver {
	if len(m) == 0 {
		return nil
	}
	ps := make([]pair[ReadingObserver], 0, len(m))
	for id, fn := range m {
		ps = append(ps, pair[ReadingObserver]{id, fn})
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].id < ps[j].id })
	out := make([]ReadingObserver, len(ps))
	for i, p := range ps {
		out[i] = p.fn
	}
	return out
}
