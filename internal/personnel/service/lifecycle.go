package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"prismid/internal/personnel/models"
	rolemodels "prismid/internal/role/models"
	"prismid/pkg/access"
	"prismid/pkg/audit"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/platform/sentinel"
	"prismid/pkg/requestcontext"
)

// conversionSnapshot is the New-value payload of a conversion audit event.
// Both opaque IDs and the migrated role set are captured so history written
// before the conversion stays resolvable against the old identifier.
type conversionSnapshot struct {
	Record         *models.Record `json:"record"`
	PreviousOpaque string         `json:"previous_opaque_id"`
	MigratedRoles  []uuid.UUID    `json:"migrated_roles"`
}

// Convert promotes an active intern to a converted employee. The opaque ID
// is re-derived under the employee tag and replaces the intern form
// atomically; the surrogate key and role assignments are untouched.
func (s *Service) Convert(ctx context.Context, key uuid.UUID, expectedVersion *int64) (*models.Record, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpConvert); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var before *models.Record
	var converted *models.Record
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		newOpaqueID := ""
		record, err := s.records.Execute(txCtx, key,
			func(r *models.Record) error {
				before = r.Clone()
				if err := checkVersion(r, expectedVersion); err != nil {
					return err
				}
				if err := r.CanConvert(); err != nil {
					return err
				}
				derived, err := s.codec.Derive(r.InternalKey, models.CategoryEmployee.IdentityCategory())
				if err != nil {
					return err
				}
				newOpaqueID = derived
				return nil
			},
			func(r *models.Record) {
				r.ApplyConversion(newOpaqueID, now)
			},
		)
		if err != nil {
			return wrapRecordErr(err)
		}
		converted = record

		assignments, err := s.assignments.ListByPersonnel(txCtx, key)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read role assignments")
		}
		migrated := make([]uuid.UUID, 0, len(assignments))
		for _, a := range assignments {
			migrated = append(migrated, a.RoleID)
		}

		return s.auditor.emit(txCtx, audit.ActionInternConverted, key, before, conversionSnapshot{
			Record:         converted,
			PreviousOpaque: before.OpaqueID,
			MigratedRoles:  migrated,
		})
	})
	if err != nil {
		return nil, err
	}

	s.countConverted()
	return converted, nil
}

// Extend moves an internship end date forward and returns an active or
// expired internship to active.
func (s *Service) Extend(ctx context.Context, key uuid.UUID, newEndDate time.Time, expectedVersion *int64) (*models.Record, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpExtend); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	return s.transition(ctx, key, audit.ActionInternshipExtended,
		func(r *models.Record) error {
			if err := checkVersion(r, expectedVersion); err != nil {
				return err
			}
			return r.CanExtend(newEndDate, now)
		},
		func(r *models.Record) {
			r.ApplyExtension(newEndDate, now)
		},
	)
}

// EndInternship manually expires an active internship before its end date.
func (s *Service) EndInternship(ctx context.Context, key uuid.UUID, expectedVersion *int64) (*models.Record, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpEndInternship); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	return s.transition(ctx, key, audit.ActionInternshipEnded,
		func(r *models.Record) error {
			if err := checkVersion(r, expectedVersion); err != nil {
				return err
			}
			return r.CanEndInternship()
		},
		func(r *models.Record) {
			r.ApplyExpiry(now)
		},
	)
}

// Retire transitions an active employee to inactive.
func (s *Service) Retire(ctx context.Context, key uuid.UUID, expectedVersion *int64) (*models.Record, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpRetire); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	return s.transition(ctx, key, audit.ActionEmployeeRetired,
		func(r *models.Record) error {
			if err := checkVersion(r, expectedVersion); err != nil {
				return err
			}
			return r.CanRetire()
		},
		func(r *models.Record) {
			r.ApplyRetirement(now)
		},
	)
}

// SoftDelete hides a record from default listings and freezes its lifecycle.
// Only restore and purge remain possible afterwards. Personnel soft-deletion
// is a SUPERADMIN action, stricter than the general soft-delete tier.
func (s *Service) SoftDelete(ctx context.Context, key uuid.UUID) (*models.Record, error) {
	if err := access.Authorize(requestcontext.Tier(ctx), access.TierSuperAdmin); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	return s.transition(ctx, key, audit.ActionPersonnelDeleted,
		func(r *models.Record) error { return r.CanSoftDelete() },
		func(r *models.Record) { r.ApplySoftDelete(now) },
	)
}

// Restore clears the soft-delete mark; every lifecycle field is preserved.
func (s *Service) Restore(ctx context.Context, key uuid.UUID) (*models.Record, error) {
	if err := access.Authorize(requestcontext.Tier(ctx), access.TierSuperAdmin); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	return s.transition(ctx, key, audit.ActionPersonnelRestored,
		func(r *models.Record) error { return r.CanRestore() },
		func(r *models.Record) { r.ApplyRestore(now) },
	)
}

// Purge permanently removes an already soft-deleted record together with its
// role assignments (cascade-delete). Irreversible; the audit trail keeps the
// final snapshot.
func (s *Service) Purge(ctx context.Context, key uuid.UUID) error {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpPurge); err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		record, err := s.records.FindByKey(txCtx, key)
		if err != nil {
			return wrapRecordErr(err)
		}
		if err := record.CanPurge(); err != nil {
			return err
		}
		if err := s.assignments.RemoveByPersonnel(txCtx, key); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cascade role assignments")
		}
		if err := s.records.Delete(txCtx, key); err != nil {
			return wrapRecordErr(err)
		}
		return s.auditor.emit(txCtx, audit.ActionPersonnelPurged, key, record, nil)
	})
}

// AssignRole links an assignable role to a live personnel record.
func (s *Service) AssignRole(ctx context.Context, key, roleID uuid.UUID) error {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpRoleAssign); err != nil {
		return err
	}

	actor := requestcontext.Actor(ctx)
	now := requestcontext.Now(ctx)
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		record, err := s.records.FindByKey(txCtx, key)
		if err != nil {
			return wrapRecordErr(err)
		}
		if record.IsDeleted() {
			return dErrors.New(dErrors.CodeInvariantViolation, "record is deleted")
		}

		role, err := s.roles.FindByID(txCtx, roleID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "role not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load role")
		}
		if !role.Assignable() {
			return dErrors.New(dErrors.CodeInvariantViolation, "role is not assignable")
		}

		assignment := rolemodels.Assignment{
			PersonnelKey: key,
			RoleID:       roleID,
			AssignedAt:   now,
		}
		if !actor.IsZero() {
			assignedBy := actor.ID
			assignment.AssignedBy = &assignedBy
		}
		if err := s.assignments.Assign(txCtx, assignment); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "role already assigned")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign role")
		}
		return s.auditor.emit(txCtx, audit.ActionRoleAssigned, key, nil, assignment)
	})
}

// RemoveRole unlinks a role from a personnel record.
func (s *Service) RemoveRole(ctx context.Context, key, roleID uuid.UUID) error {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpRoleRemove); err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.assignments.Remove(txCtx, key, roleID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "assignment not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove role")
		}
		return s.auditor.emit(txCtx, audit.ActionRoleRemoved, key, rolemodels.Assignment{
			PersonnelKey: key,
			RoleID:       roleID,
		}, nil)
	})
}

// TriggerSync records an externally requested synchronization run. The sync
// itself is an external collaborator; the core only gates and audits the
// trigger.
func (s *Service) TriggerSync(ctx context.Context) error {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpSync); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.auditor.emit(txCtx, audit.ActionSyncTriggered, uuid.Nil, nil, nil)
	})
}

// transition runs one guarded state change and its audit event in a single
// unit of work. Guard failures surface unchanged; nothing is ever partially
// applied.
func (s *Service) transition(
	ctx context.Context,
	key uuid.UUID,
	action audit.Action,
	validate func(*models.Record) error,
	mutate func(*models.Record),
) (*models.Record, error) {
	var before *models.Record
	var after *models.Record
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		record, err := s.records.Execute(txCtx, key,
			func(r *models.Record) error {
				before = r.Clone()
				return validate(r)
			},
			mutate,
		)
		if err != nil {
			return wrapRecordErr(err)
		}
		after = record
		return s.auditor.emit(txCtx, action, key, before, after)
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}
