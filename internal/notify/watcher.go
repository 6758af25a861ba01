package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/event"
	"github.com/wardflow/tanksentry/pkg/models"
)

var pollCycles = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "tanksentry_notify_poll_cycles_total",
	Help: "Completed notification poll cycles.",
})

func init() {
	prometheus.MustRegister(pollCycles)
}

// Watcher polls the notification store on a fixed interval and publishes
// a bus event for every record it has not seen before. Discovery is
// poll-based on purpose: the store is shared by independent sessions and
// offers no push, so a write from another session surfaces here on the
// next tick (eventual, not immediate, consistency).
//
// The first tick only seeds the seen set; records that predate the
// watcher belong to the consumer's initial list fetch, not to the
// "new arrival" stream.
type Watcher struct {
	store      *Store
	bus        *event.Bus
	categories []models.Category
	interval   time.Duration
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	seen   map[models.Category]map[string]struct{}
	primed bool
}

// NewWatcher creates a watcher for the given categories. A non-positive
// interval falls back to 3 seconds.
func NewWatcher(store *Store, bus *event.Bus, categories []models.Category, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Watcher{
		store:      store,
		bus:        bus,
		categories: categories,
		interval:   interval,
		logger:     logger,
		seen:       make(map[models.Category]map[string]struct{}),
	}
}

// Start begins the polling loop and returns immediately.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		// Seed immediately so the first real tick diffs against a
		// baseline instead of announcing the whole backlog.
		w.tick()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.tick()
			}
		}
	}()
}

// Stop cancels the polling timer and waits for the loop to exit. A
// consumer that goes away must stop its watcher or the periodic work
// leaks.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) tick() {
	ctx, cancel := context.WithTimeout(w.ctx, w.interval)
	defer cancel()

	for _, cat := range w.categories {
		recs, err := w.store.List(ctx, cat)
		if err != nil {
			w.logger.Warn("notification poll failed",
				zap.String("category", string(cat)), zap.Error(err))
			continue
		}

		current := make(map[string]struct{}, len(recs))
		prev := w.seen[cat]
		for _, rec := range recs {
			current[rec.ID] = struct{}{}
			if prev != nil {
				if _, ok := prev[rec.ID]; ok {
					continue
				}
			}
			if w.primed {
				w.bus.Publish(ctx, event.Event{
					Topic:     TopicCreated(cat),
					Source:    "notify",
					Timestamp: time.Now().UTC(),
					Payload:   rec,
				})
			}
		}
		// Replacing the set also forgets dismissed records, keeping
		// memory proportional to the live log.
		w.seen[cat] = current
	}

	w.primed = true
	pollCycles.Inc()
}
