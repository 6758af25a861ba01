package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/pkg/models"
)

// Handler exposes the notification log over HTTP. List and append are
// the polling surface used by panels in other sessions; dismiss, clear,
// approve, and reject are the explicit consumer-driven removals.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler creates the notifications HTTP handler.
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers notification routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/notifications/{category}", h.handleList)
	mux.HandleFunc("POST /api/v1/notifications/{category}", h.handleAppend)
	mux.HandleFunc("DELETE /api/v1/notifications/{category}", h.handleClear)
	mux.HandleFunc("DELETE /api/v1/notifications/{category}/{id}", h.handleDismiss)
	mux.HandleFunc("POST /api/v1/registrations/{id}/approve", h.handleApprove)
	mux.HandleFunc("POST /api/v1/registrations/{id}/reject", h.handleReject)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	cat, ok := h.category(w, r)
	if !ok {
		return
	}
	recs, err := h.store.List(r.Context(), cat)
	if err != nil {
		h.logger.Warn("list notifications failed", zap.String("category", string(cat)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if recs == nil {
		recs = []models.NotificationRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	cat, ok := h.category(w, r)
	if !ok {
		return
	}

	var body struct {
		Actor   string         `json:"actor"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec := models.NotificationRecord{
		Category: cat,
		Actor:    body.Actor,
		Payload:  body.Payload,
	}
	if err := h.store.Append(r.Context(), &rec); err != nil {
		h.logger.Warn("append notification failed", zap.String("category", string(cat)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to append notification")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	cat, ok := h.category(w, r)
	if !ok {
		return
	}
	if err := h.store.Clear(r.Context(), cat); err != nil {
		h.logger.Warn("clear notifications failed", zap.String("category", string(cat)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear notifications")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	cat, ok := h.category(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	err := h.store.RemoveByID(r.Context(), cat, id)
	if errors.Is(err, ErrNotFound) {
		// Another consumer may have raced the dismiss; that is the
		// accepted outcome, but the caller should know.
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		h.logger.Warn("dismiss notification failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to dismiss notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.store.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.store.Reject)
}

// resolve runs an approve/reject transition and returns the appended
// approval-result record.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (*models.NotificationRecord, error)) {
	id := r.PathValue("id")
	result, err := op(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "registration request not found")
		return
	}
	if err != nil {
		h.logger.Warn("resolve registration failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve registration")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) category(w http.ResponseWriter, r *http.Request) (models.Category, bool) {
	cat := models.Category(r.PathValue("category"))
	if !models.KnownCategory(cat) {
		writeError(w, http.StatusBadRequest, "unknown notification category")
		return "", false
	}
	return cat, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
