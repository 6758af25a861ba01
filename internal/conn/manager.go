// Package conn owns the live telemetry channel: one push connection per
// authenticated identity, with bounded reconnection and a generation
// token that keeps stale callbacks from resurrecting a torn-down binding.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/event"
	"github.com/wardflow/tanksentry/pkg/models"
)

// State names the connection lifecycle phases.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// ErrNotConnected is returned by control sends while the channel is down.
var ErrNotConnected = errors.New("channel not connected")

// Transport is one established channel connection.
type Transport interface {
	Read(ctx context.Context) (models.ChannelMessage, error)
	Write(ctx context.Context, msg models.ChannelMessage) error
	Close(reason string) error
}

// DialFunc establishes a Transport. Tests substitute an in-memory dialer.
type DialFunc func(ctx context.Context, rawURL, credential string) (Transport, error)

// WebsocketDial dials the feed endpoint over WebSocket, carrying the
// credential as a query token (browser WS clients cannot set headers, so
// the gateway expects it there).
func WebsocketDial(ctx context.Context, rawURL, credential string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse channel url: %w", err)
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	c, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return &wsTransport{conn: c}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) (models.ChannelMessage, error) {
	var msg models.ChannelMessage
	if err := wsjson.Read(ctx, t.conn, &msg); err != nil {
		return models.ChannelMessage{}, err
	}
	return msg, nil
}

func (t *wsTransport) Write(ctx context.Context, msg models.ChannelMessage) error {
	return wsjson.Write(ctx, t.conn, msg)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

// Config holds the channel settings.
type Config struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
}

// Manager maintains at most one live channel. Bind with the same identity
// is a no-op; Bind with a different identity tears the old channel down
// first. Every binding gets a fresh generation number; events and timers
// from an older generation are discarded on arrival.
type Manager struct {
	cfg    Config
	dial   DialFunc
	bus    *event.Bus
	logger *zap.Logger

	mu        sync.Mutex
	gen       uint64
	state     State
	identity  string
	transport Transport
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager creates an unbound manager. A nil dial uses WebsocketDial.
func NewManager(cfg Config, dial DialFunc, bus *event.Bus, logger *zap.Logger) *Manager {
	if dial == nil {
		dial = WebsocketDial
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Manager{
		cfg:    cfg,
		dial:   dial,
		bus:    bus,
		logger: logger,
		state:  StateIdle,
	}
}

// Bind establishes the channel for the given identity. Calling with the
// currently bound identity is a no-op. Calling with a different identity
// tears down the old channel before connecting the new one.
func (m *Manager) Bind(identity, credential string) {
	m.mu.Lock()
	if m.identity == identity && m.state != StateIdle {
		m.mu.Unlock()
		return
	}

	prev := m.teardownLocked()
	m.gen++
	gen := m.gen
	m.identity = identity
	m.setStateLocked(StateConnecting)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	if prev != "" {
		m.publish(TopicUnbound, UnboundEvent{Identity: prev})
	}

	go m.run(ctx, gen, credential)
}

// Unbind tears down the channel and cancels any in-flight reconnection.
// Safe to call in any state.
func (m *Manager) Unbind() {
	m.mu.Lock()
	prev := m.teardownLocked()
	m.mu.Unlock()

	if prev != "" {
		m.publish(TopicUnbound, UnboundEvent{Identity: prev})
	}
}

// Close unbinds and waits for the session goroutine to exit.
func (m *Manager) Close() {
	m.Unbind()
	m.wg.Wait()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the currently bound identity, or "" when idle.
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// SendSubscribe asks the feed for targeted updates for a tank.
func (m *Manager) SendSubscribe(ctx context.Context, resourceID string) error {
	return m.sendControl(ctx, models.ChannelSubscribeTank, resourceID)
}

// SendUnsubscribe withdraws interest in a tank.
func (m *Manager) SendUnsubscribe(ctx context.Context, resourceID string) error {
	return m.sendControl(ctx, models.ChannelUnsubscribeTank, resourceID)
}

// teardownLocked cancels the session, closes the transport, bumps the
// generation, and returns the previously bound identity (if any).
// Caller holds m.mu.
func (m *Manager) teardownLocked() string {
	var prev string
	if m.state != StateIdle {
		prev = m.identity
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.transport != nil {
		_ = m.transport.Close("unbind")
		m.transport = nil
	}
	m.gen++
	m.identity = ""
	m.setStateLocked(StateIdle)
	return prev
}

// run is the session goroutine for one binding generation. It dials,
// pumps inbound events, and retries with exponential backoff until the
// attempt budget is spent or the generation goes stale.
func (m *Manager) run(ctx context.Context, gen uint64, credential string) {
	defer m.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.InitialBackoff
	bo.MaxInterval = m.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempts := 0
	for {
		if ctx.Err() != nil || m.stale(gen) {
			return
		}

		attempts++
		dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		tr, err := m.dial(dialCtx, m.cfg.URL, credential)
		cancel()

		if err != nil {
			if ctx.Err() != nil || m.stale(gen) {
				return
			}
			m.logger.Warn("channel dial failed",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", m.cfg.MaxAttempts),
				zap.Error(err),
			)
			if attempts >= m.cfg.MaxAttempts {
				m.giveUp(gen, fmt.Sprintf("gave up after %d attempts: %v", attempts, err))
				return
			}
			m.setState(gen, StateReconnecting)
		} else {
			if !m.adopt(gen, tr) {
				// Binding changed while dialing; this transport belongs
				// to a dead generation.
				_ = tr.Close("superseded")
				return
			}
			m.publish(TopicConnected, ConnectedEvent{Identity: m.Identity()})
			m.logger.Info("channel connected", zap.String("identity", m.Identity()))

			reason := m.readLoop(ctx, gen, tr)

			m.dropTransport(gen)
			if ctx.Err() != nil || m.stale(gen) {
				return
			}
			reconnectsTotal.Inc()
			m.setState(gen, StateReconnecting)
			m.publish(TopicDisconnected, DisconnectedEvent{Identity: m.Identity(), Reason: reason})
			m.logger.Warn("channel lost, reconnecting", zap.String("reason", reason))
			attempts = 0
			bo.Reset()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// readLoop pumps inbound envelopes until the connection fails. Returns
// the failure reason.
func (m *Manager) readLoop(ctx context.Context, gen uint64, tr Transport) string {
	for {
		msg, err := tr.Read(ctx)
		if err != nil {
			return err.Error()
		}
		if m.stale(gen) {
			return "superseded"
		}

		switch msg.Type {
		case models.ChannelConnected:
			// Handshake acknowledgement; nothing to forward.
		case models.ChannelSensorUpdate:
			if msg.Reading == nil {
				m.logger.Debug("dropping sensor_update without reading")
				continue
			}
			m.publish(TopicReading, *msg.Reading)
		case models.ChannelNewAlert:
			if msg.Alert == nil {
				m.logger.Debug("dropping new_alert without alert")
				continue
			}
			m.publish(TopicAlert, *msg.Alert)
		default:
			m.logger.Debug("ignoring channel message", zap.String("type", string(msg.Type)))
		}
	}
}

// adopt installs the transport for gen. Returns false if gen is stale.
func (m *Manager) adopt(gen uint64, tr Transport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return false
	}
	m.transport = tr
	m.setStateLocked(StateConnected)
	return true
}

// dropTransport clears the transport if gen is still current.
func (m *Manager) dropTransport(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen && m.transport != nil {
		_ = m.transport.Close("connection lost")
		m.transport = nil
	}
}

// giveUp unbinds after exhausting the retry budget: same cleanup as an
// explicit teardown, so registry counts and the alert dedup set do not
// survive into a later binding. The final disconnected event is how the
// UI learns it is offline.
func (m *Manager) giveUp(gen uint64, reason string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	identity := m.identity
	m.gen++
	m.identity = ""
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.setStateLocked(StateIdle)
	m.mu.Unlock()

	m.publish(TopicDisconnected, DisconnectedEvent{Identity: identity, Reason: reason, Final: true})
	if identity != "" {
		m.publish(TopicUnbound, UnboundEvent{Identity: identity})
	}
	m.logger.Error("channel offline", zap.String("reason", reason))
}

func (m *Manager) setState(gen uint64, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.setStateLocked(s)
}

// setStateLocked updates the state and its gauge. Caller holds m.mu.
func (m *Manager) setStateLocked(s State) {
	m.state = s
	channelState.Set(stateValue(s))
}

func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}

func (m *Manager) sendControl(ctx context.Context, typ models.ChannelMessageType, resourceID string) error {
	m.mu.Lock()
	tr := m.transport
	m.mu.Unlock()

	if tr == nil {
		return ErrNotConnected
	}
	if err := tr.Write(ctx, models.ChannelMessage{
		Type:       typ,
		Timestamp:  time.Now().UTC(),
		ResourceID: resourceID,
	}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func (m *Manager) publish(topic string, payload any) {
	m.bus.Publish(context.Background(), event.Event{
		Topic:     topic,
		Source:    "conn",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
