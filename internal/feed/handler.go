package feed

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/auth"
	"github.com/wardflow/tanksentry/pkg/models"
)

// Handler serves the telemetry channel endpoint.
type Handler struct {
	hub    *Hub
	tokens *auth.TokenService
	logger *zap.Logger
}

// NewHandler creates the channel handler.
func NewHandler(hub *Hub, tokens *auth.TokenService, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, tokens: tokens, logger: logger}
}

// Hub returns the hub so producers can broadcast into it.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// RegisterRoutes registers the channel endpoint on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/feed", h.handleFeed)
}

// handleFeed validates the handshake credential and upgrades to a
// WebSocket session.
func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	// Credential arrives as a query parameter (browser WS API doesn't
	// support headers).
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Allow any origin since we validate via the token.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("channel accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		identity: claims.Identity,
		send:     make(chan models.ChannelMessage, 256),
		logger:   h.logger,
		subs:     make(map[string]struct{}),
	}

	h.hub.Register(client)

	ctx := r.Context()

	// Handshake acknowledgement before any data flows.
	if err := wsjson.Write(ctx, conn, models.ChannelMessage{Type: models.ChannelConnected}); err != nil {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusInternalError, "handshake write failed")
		return
	}

	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until the session disconnects.
	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
