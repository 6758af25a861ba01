// Package feed implements the server side of the telemetry channel:
// WebSocket sessions, per-session tank interest, and fan-out of readings
// and alerts. In production deployments this role is played by the
// telemetry gateway; the in-tree implementation backs the tankfeed
// simulator binary and the integration tests.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/pkg/models"
)

// Client represents one connected channel session.
type Client struct {
	conn     *websocket.Conn
	identity string
	send     chan models.ChannelMessage
	logger   *zap.Logger

	mu   sync.Mutex
	subs map[string]struct{} // targeted tanks; empty means all readings
}

func (c *Client) subscribe(resourceID string) {
	c.mu.Lock()
	c.subs[resourceID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(resourceID string) {
	c.mu.Lock()
	delete(c.subs, resourceID)
	c.mu.Unlock()
}

// wantsReading reports whether this session should receive a reading for
// the given tank. A session with no targeted subscriptions is a
// dashboard view and receives everything.
func (c *Client) wantsReading(resourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[resourceID]
	return ok
}

// Hub manages active channel sessions and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("channel session connected", zap.String("identity", c.identity))
}

// Unregister removes a session and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("channel session disconnected", zap.String("identity", c.identity))
}

// BroadcastReading sends a sensor update to every interested session.
func (h *Hub) BroadcastReading(r models.SensorReading) {
	h.broadcast(models.ChannelMessage{
		Type:      models.ChannelSensorUpdate,
		Timestamp: time.Now().UTC(),
		Reading:   &r,
	}, func(c *Client) bool { return c.wantsReading(r.ResourceID) })
}

// BroadcastAlert sends an alert to every session.
func (h *Hub) BroadcastAlert(a models.AlertEvent) {
	h.broadcast(models.ChannelMessage{
		Type:      models.ChannelNewAlert,
		Timestamp: time.Now().UTC(),
		Alert:     &a,
	}, func(*Client) bool { return true })
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg models.ChannelMessage, want func(*Client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !want(c) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("session send buffer full, dropping message",
				zap.String("identity", c.identity))
		}
	}
}

// writePump sends messages from the client's send channel to the socket.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				// Channel closed by hub (unregister).
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := wsjson.Write(writeCtx, c.conn, msg); err != nil {
				cancel()
				c.logger.Debug("channel write error", zap.Error(err))
				return
			}
			cancel()
		}
	}
}

// readPump consumes control frames until the session disconnects.
func (c *Client) readPump(ctx context.Context) {
	for {
		var msg models.ChannelMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}
		switch msg.Type {
		case models.ChannelSubscribeTank:
			if msg.ResourceID != "" {
				c.subscribe(msg.ResourceID)
			}
		case models.ChannelUnsubscribeTank:
			if msg.ResourceID != "" {
				c.unsubscribe(msg.ResourceID)
			}
		default:
			c.logger.Debug("ignoring client frame", zap.String("type", string(msg.Type)))
		}
	}
}
