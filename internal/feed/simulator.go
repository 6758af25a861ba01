package feed

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/telemetry"
	"github.com/wardflow/tanksentry/pkg/models"
)

// Simulator emits synthetic readings for a fixed set of tanks on an
// interval, standing in for the real sensor feed during development.
// Metrics wander randomly; when a tank's classification leaves healthy
// the simulator also emits an alert with a fresh producer-assigned ID,
// one per episode, so downstream dedup sees realistic traffic.
type Simulator struct {
	hub      *Hub
	tanks    []string
	interval time.Duration
	policy   telemetry.Policy
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics  map[string]map[string]float64
	lastTier map[string]models.StatusTier
}

// NewSimulator creates a simulator broadcasting into the given hub.
func NewSimulator(hub *Hub, tanks []string, interval time.Duration, policy telemetry.Policy, logger *zap.Logger) *Simulator {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Simulator{
		hub:      hub,
		tanks:    tanks,
		interval: interval,
		policy:   policy,
		logger:   logger,
		metrics:  make(map[string]map[string]float64),
		lastTier: make(map[string]models.StatusTier),
	}
}

// Start begins emitting readings. Returns immediately.
func (s *Simulator) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop halts emission and waits for the loop to exit.
func (s *Simulator) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Simulator) tick() {
	now := time.Now().UTC()
	for _, tank := range s.tanks {
		m := s.step(tank)
		s.hub.BroadcastReading(models.SensorReading{
			ResourceID: tank,
			Timestamp:  now,
			Metrics:    m,
		})

		tier := s.policy.Classify(m)
		if tier != models.TierHealthy && s.lastTier[tank] == models.TierHealthy {
			alert := models.AlertEvent{
				ID:         uuid.NewString(),
				ResourceID: tank,
				Severity:   models.Severity(tier),
				Message:    "water quality left healthy range",
				OccurredAt: now,
			}
			s.hub.BroadcastAlert(alert)
			s.logger.Info("simulated alert",
				zap.String("resource_id", tank),
				zap.String("severity", string(alert.Severity)),
			)
		}
		s.lastTier[tank] = tier
	}
}

// step advances one tank's metrics with a small random walk.
func (s *Simulator) step(tank string) map[string]float64 {
	m := s.metrics[tank]
	if m == nil {
		m = map[string]float64{
			models.MetricPH:          7.2,
			models.MetricTurbidity:   1.0,
			models.MetricChlorine:    0.8,
			models.MetricTemperature: 22.0,
			models.MetricWaterLevel:  75.0,
		}
		s.metrics[tank] = m
		s.lastTier[tank] = models.TierHealthy
	}

	m[models.MetricPH] = clamp(m[models.MetricPH]+jitter(0.15), 5.5, 9.5)
	m[models.MetricTurbidity] = clamp(m[models.MetricTurbidity]+jitter(0.4), 0, 12)
	m[models.MetricChlorine] = clamp(m[models.MetricChlorine]+jitter(0.1), 0, 4)
	m[models.MetricTemperature] = clamp(m[models.MetricTemperature]+jitter(0.5), 5, 45)
	m[models.MetricWaterLevel] = clamp(m[models.MetricWaterLevel]+jitter(2.0), 0, 100)

	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func jitter(scale float64) float64 {
	return (rand.Float64()*2 - 1) * scale
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
