package telemetry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/conn"
	"github.com/wardflow/tanksentry/internal/event"
	"github.com/wardflow/tanksentry/pkg/models"
)

func testRouter(t *testing.T) (*Router, *event.Bus) {
	t.Helper()
	bus := event.NewBus(zap.NewNop())
	r := NewRouter(DefaultPolicy(), NewDeduplicator(64), bus, zap.NewNop())
	return r, bus
}

func publishReading(bus *event.Bus, resourceID string, at time.Time, metrics map[string]float64) {
	bus.Publish(context.Background(), event.Event{
		Topic: conn.TopicReading,
		Payload: models.SensorReading{
			ResourceID: resourceID,
			Timestamp:  at,
			Metrics:    metrics,
		},
	})
}

func publishAlert(bus *event.Bus, id, resourceID string) {
	bus.Publish(context.Background(), event.Event{
		Topic: conn.TopicAlert,
		Payload: models.AlertEvent{
			ID:         id,
			ResourceID: resourceID,
			Severity:   models.SeverityCritical,
			Message:    "test alert",
			OccurredAt: time.Now(),
		},
	})
}

func TestRouter_OrderingPreserved(t *testing.T) {
	r, bus := testRouter(t)

	var obsA, obsB []time.Time
	r.ObserveReadings("TANK-1", func(cr ClassifiedReading) { obsA = append(obsA, cr.Timestamp) })
	r.ObserveReadings("TANK-1", func(cr ClassifiedReading) { obsB = append(obsB, cr.Timestamp) })

	base := time.Unix(1000, 0)
	for i := 1; i <= 3; i++ {
		publishReading(bus, "TANK-1", base.Add(time.Duration(i)*time.Second), map[string]float64{"ph": 7.0})
	}

	for name, got := range map[string][]time.Time{"A": obsA, "B": obsB} {
		if len(got) != 3 {
			t.Fatalf("observer %s received %d readings, want 3", name, len(got))
		}
		for i := 1; i < len(got); i++ {
			if !got[i].After(got[i-1]) {
				t.Errorf("observer %s received readings out of order: %v", name, got)
			}
		}
	}
}

func TestRouter_ClassifiesReadings(t *testing.T) {
	r, bus := testRouter(t)

	var tiers []models.StatusTier
	r.ObserveReadings("", func(cr ClassifiedReading) { tiers = append(tiers, cr.Tier) })

	publishReading(bus, "TANK-1", time.Now(), map[string]float64{"ph": 7.0})
	publishReading(bus, "TANK-1", time.Now(), map[string]float64{"turbidity": 3.5})
	publishReading(bus, "TANK-1", time.Now(), map[string]float64{"turbidity": 7.0})

	want := []models.StatusTier{models.TierHealthy, models.TierWarning, models.TierCritical}
	if len(tiers) != len(want) {
		t.Fatalf("received %d readings, want %d", len(tiers), len(want))
	}
	for i := range want {
		if tiers[i] != want[i] {
			t.Errorf("reading %d tier = %q, want %q", i, tiers[i], want[i])
		}
	}
}

func TestRouter_TargetedObserverOnlySeesItsTank(t *testing.T) {
	r, bus := testRouter(t)

	var got []string
	r.ObserveReadings("TANK-2", func(cr ClassifiedReading) { got = append(got, cr.ResourceID) })

	publishReading(bus, "TANK-1", time.Now(), map[string]float64{"ph": 7.0})
	publishReading(bus, "TANK-2", time.Now(), map[string]float64{"ph": 7.0})
	publishReading(bus, "TANK-3", time.Now(), map[string]float64{"ph": 7.0})

	if len(got) != 1 || got[0] != "TANK-2" {
		t.Errorf("targeted observer saw %v, want [TANK-2]", got)
	}
}

func TestRouter_RemovedObserverStopsReceiving(t *testing.T) {
	r, bus := testRouter(t)

	countA, countB := 0, 0
	removeA := r.ObserveReadings("TANK-1", func(ClassifiedReading) { countA++ })
	r.ObserveReadings("TANK-1", func(ClassifiedReading) { countB++ })

	publishReading(bus, "TANK-1", time.Now(), map[string]float64{"ph": 7.0})
	removeA()
	publishReading(bus, "TANK-1", time.Now(), map[string]float64{"ph": 7.0})

	if countA != 1 {
		t.Errorf("removed observer received %d readings, want 1", countA)
	}
	if countB != 2 {
		t.Errorf("remaining observer received %d readings, want 2", countB)
	}
}

func TestRouter_DeduplicatesAlerts(t *testing.T) {
	r, bus := testRouter(t)

	var got []string
	r.ObserveAlerts(func(a models.AlertEvent) { got = append(got, a.ID) })

	publishAlert(bus, "alert-1", "TANK-1")
	publishAlert(bus, "alert-1", "TANK-1") // replay after reconnect
	publishAlert(bus, "alert-2", "TANK-1")
	publishAlert(bus, "alert-1", "TANK-1")

	want := []string{"alert-1", "alert-2"}
	if len(got) != len(want) {
		t.Fatalf("observers saw %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("alert %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRouter_DedupResetOnUnbound(t *testing.T) {
	r, bus := testRouter(t)

	count := 0
	r.ObserveAlerts(func(models.AlertEvent) { count++ })

	publishAlert(bus, "alert-1", "TANK-1")
	bus.Publish(context.Background(), event.Event{
		Topic:   conn.TopicUnbound,
		Payload: conn.UnboundEvent{Identity: "session-1"},
	})
	publishAlert(bus, "alert-1", "TANK-1") // new binding, same producer id

	if count != 2 {
		t.Errorf("observer saw %d alerts across bindings, want 2", count)
	}
}

func TestRouter_DropsMalformedEvents(t *testing.T) {
	r, bus := testRouter(t)

	readings, alerts := 0, 0
	r.ObserveReadings("", func(ClassifiedReading) { readings++ })
	r.ObserveAlerts(func(models.AlertEvent) { alerts++ })

	// Missing resource id and zero timestamp.
	bus.Publish(context.Background(), event.Event{
		Topic:   conn.TopicReading,
		Payload: models.SensorReading{Metrics: map[string]float64{}},
	})
	// Alert without id.
	bus.Publish(context.Background(), event.Event{
		Topic:   conn.TopicAlert,
		Payload: models.AlertEvent{ResourceID: "TANK-1", Severity: models.SeverityWarning},
	})
	// Wrong payload type entirely.
	bus.Publish(context.Background(), event.Event{Topic: conn.TopicReading, Payload: 42})

	if readings != 0 || alerts != 0 {
		t.Errorf("malformed events delivered: %d readings, %d alerts", readings, alerts)
	}
}

func TestRouter_SnapshotHoldsLatestPerTank(t *testing.T) {
	r, bus := testRouter(t)

	publishReading(bus, "TANK-2", time.Unix(1, 0), map[string]float64{"ph": 7.0})
	publishReading(bus, "TANK-1", time.Unix(2, 0), map[string]float64{"turbidity": 9.0})
	publishReading(bus, "TANK-1", time.Unix(3, 0), map[string]float64{"ph": 7.0})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d tanks, want 2", len(snap))
	}
	if snap[0].ResourceID != "TANK-1" || snap[1].ResourceID != "TANK-2" {
		t.Errorf("snapshot order = [%s %s], want [TANK-1 TANK-2]", snap[0].ResourceID, snap[1].ResourceID)
	}
	if snap[0].Tier != models.TierHealthy {
		t.Errorf("TANK-1 tier = %q, want healthy (latest reading wins)", snap[0].Tier)
	}

	cr, ok := r.Latest("TANK-1")
	if !ok || !cr.Timestamp.Equal(time.Unix(3, 0)) {
		t.Errorf("Latest(TANK-1) = %v ok=%v, want timestamp t=3", cr.Timestamp, ok)
	}
}
