package telemetry

import "sync"

// Deduplicator tracks alert IDs seen during the current channel binding.
// The inbound channel may redeliver an alert after a reconnect replay;
// observers must see each distinct ID exactly once. The seen set is
// bounded: once capacity is reached the oldest IDs are evicted first.
type Deduplicator struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string // FIFO eviction queue
}

// NewDeduplicator creates a deduplicator that remembers at most capacity
// distinct IDs. A non-positive capacity falls back to 1024.
func NewDeduplicator(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Deduplicator{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Accept reports whether id is new. It returns true exactly once per
// distinct id (within the retention window); later calls return false.
func (d *Deduplicator) Accept(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.seen[id]; dup {
		return false
	}

	if len(d.order) >= d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}

	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	return true
}

// Reset forgets all seen IDs. Called when the channel binding changes.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{}, d.capacity)
	d.order = d.order[:0]
}

// Len returns the number of IDs currently remembered.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
