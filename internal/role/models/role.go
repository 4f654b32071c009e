package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "prismid/pkg/domain-errors"
)

// ClearanceLevel bounds. Clearance is a sensitivity ranking on the role
// itself, independent of the three access tiers that gate operations.
const (
	MinClearance = 0
	MaxClearance = 10
)

// Role is a clearance resource assignable to personnel. It follows the same
// soft-delete/restore/purge discipline as personnel records.
type Role struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	ClearanceLevel int        `json:"clearance_level"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	Version        int64      `json:"version"`
}

func NewRole(id uuid.UUID, name, description string, clearance int, now time.Time) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "role name is required")
	}
	if clearance < MinClearance || clearance > MaxClearance {
		return nil, dErrors.Newf(dErrors.CodeValidation, "clearance level must be between %d and %d", MinClearance, MaxClearance)
	}
	return &Role{
		ID:             id,
		Name:           name,
		Description:    strings.TrimSpace(description),
		ClearanceLevel: clearance,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}, nil
}

func (r *Role) IsDeleted() bool {
	return r.DeletedAt != nil
}

// Assignable reports whether the role can currently be assigned.
func (r *Role) Assignable() bool {
	return r.IsActive && !r.IsDeleted()
}

func (r *Role) Clone() *Role {
	cp := *r
	if r.DeletedAt != nil {
		d := *r.DeletedAt
		cp.DeletedAt = &d
	}
	return &cp
}

func (r *Role) CanSoftDelete() error {
	if r.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "role is already deleted")
	}
	return nil
}

func (r *Role) ApplySoftDelete(now time.Time) {
	r.DeletedAt = &now
	r.UpdatedAt = now
}

func (r *Role) CanRestore() error {
	if !r.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "role is not deleted")
	}
	return nil
}

func (r *Role) ApplyRestore(now time.Time) {
	r.DeletedAt = nil
	r.UpdatedAt = now
}

func (r *Role) CanPurge() error {
	if !r.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "role must be soft-deleted before purge")
	}
	return nil
}

// Assignment links a personnel record to a role. Rows are keyed by the pair;
// both sides cascade-delete the row on hard purge.
type Assignment struct {
	PersonnelKey uuid.UUID  `json:"personnel_key"`
	RoleID       uuid.UUID  `json:"role_id"`
	AssignedAt   time.Time  `json:"assigned_at"`
	AssignedBy   *uuid.UUID `json:"assigned_by,omitempty"`
}

// UpdateRequest carries partial role updates with an optional version check.
type UpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	ClearanceLevel *int    `json:"clearance_level,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
	Version        *int64  `json:"version,omitempty"`
}

func (r *UpdateRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "role name cannot be empty")
	}
	if r.ClearanceLevel != nil && (*r.ClearanceLevel < MinClearance || *r.ClearanceLevel > MaxClearance) {
		return dErrors.Newf(dErrors.CodeValidation, "clearance level must be between %d and %d", MinClearance, MaxClearance)
	}
	return nil
}
