// Package service manages the role clearance resources. Roles follow the
// same governance discipline as personnel: tier-gated mutations, optimistic
// version checks, and an audit event in the same unit of work.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"prismid/internal/role/models"
	"prismid/pkg/access"
	"prismid/pkg/audit"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/platform/sentinel"
	"prismid/pkg/platform/tx"
	"prismid/pkg/requestcontext"
)

// Store is the transactional role store.
type Store interface {
	Create(ctx context.Context, role *models.Role) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	List(ctx context.Context, includeDeleted bool) ([]*models.Role, error)
	Execute(ctx context.Context, id uuid.UUID, validate func(*models.Role) error, mutate func(*models.Role)) (*models.Role, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AssignmentCascader removes the join rows when a role is hard-purged.
type AssignmentCascader interface {
	RemoveByRole(ctx context.Context, roleID uuid.UUID) error
}

type Service struct {
	roles       Store
	assignments AssignmentCascader
	auditStore  audit.Store
	tx          tx.Runner
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) { s.tx = runner }
}

func New(roles Store, assignments AssignmentCascader, auditStore audit.Store, opts ...Option) *Service {
	s := &Service{
		roles:       roles,
		assignments: assignments,
		auditStore:  auditStore,
		tx:          tx.NoopRunner{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, name, description string, clearance int) (*models.Role, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpCreate); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	role, err := models.NewRole(uuid.New(), name, description, clearance, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.Create(txCtx, role); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "role name must be unique among live roles")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create role")
		}
		return s.emit(txCtx, audit.ActionRoleCreated, role.ID, nil, role)
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRoleErr(err)
	}
	return role, nil
}

func (s *Service) List(ctx context.Context, includeDeleted bool) ([]*models.Role, error) {
	roles, err := s.roles.List(ctx, includeDeleted)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list roles")
	}
	return roles, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req models.UpdateRequest) (*models.Role, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpUpdate); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var before *models.Role
	var updated *models.Role
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.Execute(txCtx, id,
			func(r *models.Role) error {
				before = r.Clone()
				if req.Version != nil && *req.Version != r.Version {
					return dErrors.Newf(dErrors.CodeConflict,
						"version mismatch: expected %d, role is at %d", *req.Version, r.Version)
				}
				if r.IsDeleted() {
					return dErrors.New(dErrors.CodeInvariantViolation, "role is deleted")
				}
				return nil
			},
			func(r *models.Role) {
				if req.Name != nil {
					r.Name = strings.TrimSpace(*req.Name)
				}
				if req.Description != nil {
					r.Description = strings.TrimSpace(*req.Description)
				}
				if req.ClearanceLevel != nil {
					r.ClearanceLevel = *req.ClearanceLevel
				}
				if req.IsActive != nil {
					r.IsActive = *req.IsActive
				}
				r.UpdatedAt = now
			},
		)
		if err != nil {
			return wrapRoleErr(err)
		}
		updated = role
		return s.emit(txCtx, audit.ActionRoleUpdated, id, before, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpSoftDelete); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	return s.transition(ctx, id, audit.ActionRoleDeleted,
		func(r *models.Role) error { return r.CanSoftDelete() },
		func(r *models.Role) { r.ApplySoftDelete(now) },
	)
}

func (s *Service) Restore(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpRestore); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	return s.transition(ctx, id, audit.ActionRoleRestored,
		func(r *models.Role) error { return r.CanRestore() },
		func(r *models.Role) { r.ApplyRestore(now) },
	)
}

// Purge permanently removes an already soft-deleted role and cascades its
// assignment rows.
func (s *Service) Purge(ctx context.Context, id uuid.UUID) error {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpPurge); err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.FindByID(txCtx, id)
		if err != nil {
			return wrapRoleErr(err)
		}
		if err := role.CanPurge(); err != nil {
			return err
		}
		if err := s.assignments.RemoveByRole(txCtx, id); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cascade role assignments")
		}
		if err := s.roles.Delete(txCtx, id); err != nil {
			return wrapRoleErr(err)
		}
		return s.emit(txCtx, audit.ActionRolePurged, id, role, nil)
	})
}

func (s *Service) transition(
	ctx context.Context,
	id uuid.UUID,
	action audit.Action,
	validate func(*models.Role) error,
	mutate func(*models.Role),
) (*models.Role, error) {
	var before *models.Role
	var after *models.Role
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.Execute(txCtx, id,
			func(r *models.Role) error {
				before = r.Clone()
				return validate(r)
			},
			mutate,
		)
		if err != nil {
			return wrapRoleErr(err)
		}
		after = role
		return s.emit(txCtx, action, id, before, after)
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

const entityTypeRole = "role"

func (s *Service) emit(ctx context.Context, action audit.Action, id uuid.UUID, before, after any) error {
	actor := requestcontext.Actor(ctx)
	event := audit.Event{
		ID:         uuid.New(),
		Timestamp:  requestcontext.Now(ctx),
		Action:     action,
		EntityType: entityTypeRole,
		EntityKey:  id.String(),
		Previous:   audit.Snapshot(before),
		New:        audit.Snapshot(after),
		ClientIP:   requestcontext.ClientIP(ctx),
		RequestID:  requestcontext.RequestID(ctx),
	}
	if !actor.IsZero() {
		event.Actor = actor.ID.String()
		event.ActorName = actor.Username
		event.ActorTier = actor.Tier.String()
	}
	if err := s.auditStore.Append(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed, rolling back mutation",
			"action", string(action),
			"role_id", id.String(),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit record")
	}
	return nil
}

func wrapRoleErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "role not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "conflicting role")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "role store failure")
	}
}
