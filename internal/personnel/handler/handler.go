package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"prismid/internal/personnel/models"
	"prismid/internal/personnel/service"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/platform/httputil"
	"prismid/pkg/requestcontext"
)

// Service defines the personnel operations the handler depends on.
type Service interface {
	Create(ctx context.Context, req models.CreateRequest) (*models.Record, error)
	GetByOpaqueID(ctx context.Context, opaqueID string) (*models.Record, error)
	ValidateOpaqueID(opaqueID string) bool
	List(ctx context.Context, filter models.ListFilter) ([]*models.Record, error)
	Update(ctx context.Context, key uuid.UUID, req models.UpdateRequest) (*models.Record, error)
	Convert(ctx context.Context, key uuid.UUID, expectedVersion *int64) (*models.Record, error)
	Extend(ctx context.Context, key uuid.UUID, newEndDate time.Time, expectedVersion *int64) (*models.Record, error)
	EndInternship(ctx context.Context, key uuid.UUID, expectedVersion *int64) (*models.Record, error)
	Retire(ctx context.Context, key uuid.UUID, expectedVersion *int64) (*models.Record, error)
	SoftDelete(ctx context.Context, key uuid.UUID) (*models.Record, error)
	Restore(ctx context.Context, key uuid.UUID) (*models.Record, error)
	Purge(ctx context.Context, key uuid.UUID) error
	AssignRole(ctx context.Context, key, roleID uuid.UUID) error
	RemoveRole(ctx context.Context, key, roleID uuid.UUID) error
	TriggerSync(ctx context.Context) error
	RunExpirySweep(ctx context.Context) (service.SweepResult, error)
}

// WarningReader serves the cached upcoming-expiry list. Nil when Redis is
// not configured.
type WarningReader interface {
	Warnings(ctx context.Context) ([]service.ExpiryWarning, error)
}

// Handler wires personnel endpoints to the personnel service.
type Handler struct {
	service  Service
	warnings WarningReader
	logger   *slog.Logger
}

func New(service Service, warnings WarningReader, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		warnings: warnings,
		logger:   logger,
	}
}

// Register mounts personnel endpoints on the router. The {id} parameter is
// always the opaque public identifier, never the internal key.
func (h *Handler) Register(r chi.Router) {
	r.Route("/personnel", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/warnings", h.handleWarnings)
		r.Get("/{id}/validate", h.handleValidate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/", h.handleUpdate)
			r.Delete("/", h.handleSoftDelete)
			r.Post("/restore", h.handleRestore)
			r.Delete("/purge", h.handlePurge)
			r.Post("/convert", h.handleConvert)
			r.Post("/extend", h.handleExtend)
			r.Post("/end-internship", h.handleEndInternship)
			r.Post("/retire", h.handleRetire)
			r.Put("/roles/{roleID}", h.handleAssignRole)
			r.Delete("/roles/{roleID}", h.handleRemoveRole)
		})
	})

	r.Post("/tasks/expiry-sweep", h.handleExpirySweep)
	r.Post("/tasks/sync", h.handleSync)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Create(ctx, *req)
	if err != nil {
		h.logger.WarnContext(ctx, "personnel create failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "personnel record created",
		"request_id", requestID,
		"opaque_id", record.OpaqueID,
		"category", record.Category,
	)
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	record, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	opaqueID := chi.URLParam(r, "id")
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":    opaqueID,
		"valid": h.service.ValidateOpaqueID(opaqueID),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := models.ListFilter{
		Category:       models.Category(strings.ToUpper(q.Get("category"))),
		Status:         models.Status(strings.ToUpper(q.Get("status"))),
		Search:         q.Get("search"),
		IncludeDeleted: q.Get("include_deleted") == "true",
		Limit:          intParam(q.Get("limit"), 50),
		Offset:         intParam(q.Get("offset"), 0),
	}

	records, err := h.service.List(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"count": len(records),
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	record, ok := h.resolve(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.UpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.service.Update(ctx, record.InternalKey, *req)
	if err != nil {
		h.logger.WarnContext(ctx, "personnel update failed",
			"request_id", requestID,
			"opaque_id", record.OpaqueID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// versionedRequest carries the optional optimistic-concurrency check used by
// the lifecycle endpoints.
type versionedRequest struct {
	Version *int64 `json:"version,omitempty"`
}

// extendRequest asks for a new internship end date.
type extendRequest struct {
	NewEndDate time.Time `json:"new_end_date"`
	Version    *int64    `json:"version,omitempty"`
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, key uuid.UUID, version *int64) (*models.Record, error) {
		return h.service.Convert(ctx, key, version)
	})
}

func (h *Handler) handleEndInternship(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, key uuid.UUID, version *int64) (*models.Record, error) {
		return h.service.EndInternship(ctx, key, version)
	})
}

func (h *Handler) handleRetire(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, key uuid.UUID, version *int64) (*models.Record, error) {
		return h.service.Retire(ctx, key, version)
	})
}

func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	record, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.NewEndDate.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "new_end_date is required"))
		return
	}

	updated, err := h.service.Extend(ctx, record.InternalKey, req.NewEndDate, req.Version)
	if err != nil {
		h.logger.WarnContext(ctx, "internship extension failed",
			"request_id", requestID,
			"opaque_id", record.OpaqueID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	record, ok := h.resolve(w, r)
	if !ok {
		return
	}
	updated, err := h.service.SoftDelete(r.Context(), record.InternalKey)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	record, ok := h.resolveIncludingDeleted(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Restore(r.Context(), record.InternalKey)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	record, ok := h.resolveIncludingDeleted(w, r)
	if !ok {
		return
	}
	if err := h.service.Purge(r.Context(), record.InternalKey); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	record, roleID, ok := h.resolveWithRole(w, r)
	if !ok {
		return
	}
	if err := h.service.AssignRole(r.Context(), record.InternalKey, roleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	record, roleID, ok := h.resolveWithRole(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), record.InternalKey, roleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWarnings(w http.ResponseWriter, r *http.Request) {
	if h.warnings == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": []service.ExpiryWarning{}})
		return
	}
	warnings, err := h.warnings.Warnings(r.Context())
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "warning cache unavailable"))
		return
	}
	if warnings == nil {
		warnings = []service.ExpiryWarning{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": warnings})
}

func (h *Handler) handleExpirySweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunExpirySweep(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := h.service.TriggerSync(r.Context()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// lifecycle factors the common shape of version-checked transitions.
func (h *Handler) lifecycle(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, key uuid.UUID, version *int64) (*models.Record, error),
) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	record, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req versionedRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	updated, err := op(ctx, record.InternalKey, req.Version)
	if err != nil {
		h.logger.WarnContext(ctx, "lifecycle transition failed",
			"request_id", requestID,
			"opaque_id", record.OpaqueID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// resolve turns the {id} URL parameter into a record, rejecting IDs that
// fail checksum validation before any storage lookup.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*models.Record, bool) {
	record, err := h.service.GetByOpaqueID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return record, true
}

// resolveIncludingDeleted is resolve for restore and purge, whose targets are
// soft-deleted. GetByOpaqueID already returns soft-deleted records; the
// distinction is documented at the call sites for clarity.
func (h *Handler) resolveIncludingDeleted(w http.ResponseWriter, r *http.Request) (*models.Record, bool) {
	return h.resolve(w, r)
}

func (h *Handler) resolveWithRole(w http.ResponseWriter, r *http.Request) (*models.Record, uuid.UUID, bool) {
	record, ok := h.resolve(w, r)
	if !ok {
		return nil, uuid.Nil, false
	}
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid role id"))
		return nil, uuid.Nil, false
	}
	return record, roleID, true
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
