package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "prismid/pkg/domain-errors"
)

// CreateRequest carries the attributes for a new personnel record.
// Start and end dates are required for interns and rejected for employees.
type CreateRequest struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone,omitempty"`
	Category   Category   `json:"category"`
	DomainID   *uuid.UUID `json:"domain_id,omitempty"`
	DivisionID *uuid.UUID `json:"division_id,omitempty"`
	JoinedOn   *time.Time `json:"joined_on,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

func (r *CreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Category = Category(strings.ToUpper(strings.TrimSpace(string(r.Category))))
}

func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		return dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if !r.Category.Valid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown category %q", r.Category)
	}
	if r.Category == CategoryIntern {
		if r.StartDate == nil || r.EndDate == nil {
			return dErrors.New(dErrors.CodeValidation, "interns require start and end dates")
		}
		if !r.EndDate.After(*r.StartDate) {
			return dErrors.New(dErrors.CodeValidation, "end date must be after start date")
		}
	} else if r.StartDate != nil || r.EndDate != nil {
		return dErrors.New(dErrors.CodeValidation, "internship dates are only meaningful for interns")
	}
	return nil
}

// UpdateRequest carries partial updates to mutable attributes. Category and
// status are never updated here; those change only through lifecycle
// transitions. Version, when supplied, must match the stored record.
type UpdateRequest struct {
	Name       *string    `json:"name,omitempty"`
	Email      *string    `json:"email,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	DomainID   *uuid.UUID `json:"domain_id,omitempty"`
	DivisionID *uuid.UUID `json:"division_id,omitempty"`
	Version    *int64     `json:"version,omitempty"`
}

func (r *UpdateRequest) Normalize() {
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
	}
	if r.Email != nil {
		lowered := strings.ToLower(strings.TrimSpace(*r.Email))
		r.Email = &lowered
	}
}

func (r *UpdateRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name cannot be empty")
	}
	if r.Email != nil && (*r.Email == "" || !strings.Contains(*r.Email, "@")) {
		return dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	return nil
}

// ListFilter narrows List results. Deleted records are excluded unless
// IncludeDeleted is set.
type ListFilter struct {
	Category       Category
	Status         Status
	Search         string // matches name or email, case-insensitive substring
	IncludeDeleted bool
	Limit          int
	Offset         int
}
