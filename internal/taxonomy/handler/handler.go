package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"prismid/internal/taxonomy/models"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/platform/httputil"
	"prismid/pkg/requestcontext"
)

// Service defines the taxonomy operations the handler depends on.
type Service interface {
	Create(ctx context.Context, kind models.Kind, name string) (*models.Entry, error)
	List(ctx context.Context, kind models.Kind) ([]*models.Entry, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (*models.Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler wires the domain and division taxonomy endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts taxonomy endpoints. {kind} is "domains" or "divisions".
func (h *Handler) Register(r chi.Router) {
	r.Route("/taxonomy/{kind}", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
	})
	r.Patch("/taxonomy/entries/{id}", h.handleRename)
	r.Delete("/taxonomy/entries/{id}", h.handleDelete)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[nameRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	entry, err := h.service.Create(ctx, kind, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	entries, err := h.service.List(r.Context(), kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"count": len(entries),
	})
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, ok := h.entryID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[nameRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	entry, err := h.service.Rename(ctx, id, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return kind, true
}

func (h *Handler) entryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid entry id"))
		return uuid.Nil, false
	}
	return id, true
}
