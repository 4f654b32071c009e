package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"prismid/pkg/audit"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/platform/httputil"
)

const defaultLimit = 100

// Handler serves read-only access to the audit trail.
type Handler struct {
	store  audit.Store
	logger *slog.Logger
}

func New(store audit.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts the audit listing endpoints. Access control is applied by
// the router, not here.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.handleListRecent)
	r.Get("/audit/{entityType}/{entityKey}", h.handleListByEntity)
}

func (h *Handler) handleListRecent(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.ListRecent(r.Context(), limitParam(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit listing failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "audit listing failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"items": events,
		"count": len(events),
	})
}

func (h *Handler) handleListByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityKey := chi.URLParam(r, "entityKey")

	events, err := h.store.ListByEntity(r.Context(), entityType, entityKey, limitParam(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit listing failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "audit listing failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"items": events,
		"count": len(events),
	})
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return n
}
