package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/identity"
)

type Category string

const (
	CategoryIntern   Category = "INTERN"
	CategoryEmployee Category = "EMPLOYEE"
)

func (c Category) Valid() bool {
	return c == CategoryIntern || c == CategoryEmployee
}

// IdentityCategory maps the record category to the codec's tag.
func (c Category) IdentityCategory() identity.Category {
	if c == CategoryEmployee {
		return identity.CategoryEmployee
	}
	return identity.CategoryIntern
}

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusConverted Status = "CONVERTED"
)

// Record is the governed personnel aggregate.
//
// Invariants:
//   - InternalKey is assigned at creation and never changes, not even on
//     conversion; OpaqueID is replaced (re-derived), never mutated in place.
//   - StatusConverted implies CategoryEmployee and is terminal.
//   - StatusExpired is reachable only from an active intern and is terminal
//     unless an extension moves EndDate forward and returns it to active.
//   - A non-nil DeletedAt freezes every transition except restore and purge.
//   - Version increments on every mutation; stores enforce this, callers use
//     it for optimistic-concurrency checks.
type Record struct {
	InternalKey uuid.UUID  `json:"internal_key"`
	OpaqueID    string     `json:"opaque_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Category    Category   `json:"category"`
	Status      Status     `json:"status"`
	DomainID    *uuid.UUID `json:"domain_id,omitempty"`
	DivisionID  *uuid.UUID `json:"division_id,omitempty"`
	JoinedOn    time.Time  `json:"joined_on"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	Version     int64      `json:"version"`
}

func (r *Record) IsDeleted() bool {
	return r.DeletedAt != nil
}

func (r *Record) IsIntern() bool {
	return r.Category == CategoryIntern
}

// Clone returns a deep copy so audit snapshots and store reads never alias
// the stored value.
func (r *Record) Clone() *Record {
	cp := *r
	cp.DomainID = clonePtr(r.DomainID)
	cp.DivisionID = clonePtr(r.DivisionID)
	cp.StartDate = clonePtr(r.StartDate)
	cp.EndDate = clonePtr(r.EndDate)
	cp.ConvertedAt = clonePtr(r.ConvertedAt)
	cp.DeletedAt = clonePtr(r.DeletedAt)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// guard builds the typed error every rejected transition returns.
func guard(msg string) error {
	return dErrors.New(dErrors.CodeInvariantViolation, msg)
}

func (r *Record) requireLive() error {
	if r.IsDeleted() {
		return guard("record is deleted")
	}
	return nil
}

// CanConvert checks the intern → employee conversion guard.
func (r *Record) CanConvert() error {
	if err := r.requireLive(); err != nil {
		return err
	}
	if r.Status == StatusConverted {
		return guard("record already converted")
	}
	if !r.IsIntern() {
		return guard("record is not an intern")
	}
	if r.Status != StatusActive {
		return guard("only an active intern can be converted")
	}
	return nil
}

// ApplyConversion swaps the category, terminal status and the re-derived
// opaque ID. The caller derives newOpaqueID through the identity codec; the
// old value stays resolvable through the audit snapshot.
func (r *Record) ApplyConversion(newOpaqueID string, now time.Time) {
	r.Category = CategoryEmployee
	r.Status = StatusConverted
	r.OpaqueID = newOpaqueID
	r.ConvertedAt = &now
	r.UpdatedAt = now
}

// CanEndInternship checks the manual end-internship guard.
func (r *Record) CanEndInternship() error {
	if err := r.requireLive(); err != nil {
		return err
	}
	if !r.IsIntern() {
		return guard("record is not an intern")
	}
	if r.Status != StatusActive {
		return guard("internship is not active")
	}
	return nil
}

func (r *Record) ApplyExpiry(now time.Time) {
	r.Status = StatusExpired
	r.UpdatedAt = now
}

// ExpiryDue reports whether the automated sweep should expire this record.
// Unlike CanEndInternship this also requires a past end date, so re-running
// the sweep never re-transitions an already-expired record.
func (r *Record) ExpiryDue(now time.Time) bool {
	return !r.IsDeleted() &&
		r.IsIntern() &&
		r.Status == StatusActive &&
		r.EndDate != nil &&
		r.EndDate.Before(now)
}

// CanExtend checks the internship extension guard. Extension is allowed from
// both active and expired internships; it moves the end date forward and
// returns the record to active.
func (r *Record) CanExtend(newEndDate, now time.Time) error {
	if err := r.requireLive(); err != nil {
		return err
	}
	if !r.IsIntern() {
		return guard("record is not an intern")
	}
	if r.Status != StatusActive && r.Status != StatusExpired {
		return guard("internship cannot be extended from its current status")
	}
	if !newEndDate.After(now) {
		return dErrors.New(dErrors.CodeValidation, "new end date must be in the future")
	}
	return nil
}

func (r *Record) ApplyExtension(newEndDate, now time.Time) {
	r.EndDate = &newEndDate
	r.Status = StatusActive
	r.UpdatedAt = now
}

// CanRetire checks the employee retirement guard.
func (r *Record) CanRetire() error {
	if err := r.requireLive(); err != nil {
		return err
	}
	if r.IsIntern() {
		return guard("record is not an employee")
	}
	if r.Status != StatusActive {
		return guard("employee is not active")
	}
	return nil
}

func (r *Record) ApplyRetirement(now time.Time) {
	r.Status = StatusInactive
	r.UpdatedAt = now
}

// CanSoftDelete checks the soft-delete guard. Status and category are left
// untouched; the record is frozen, not transitioned.
func (r *Record) CanSoftDelete() error {
	if r.IsDeleted() {
		return guard("record is already deleted")
	}
	return nil
}

func (r *Record) ApplySoftDelete(now time.Time) {
	r.DeletedAt = &now
	r.UpdatedAt = now
}

// CanRestore checks the restore guard.
func (r *Record) CanRestore() error {
	if !r.IsDeleted() {
		return guard("record is not deleted")
	}
	return nil
}

func (r *Record) ApplyRestore(now time.Time) {
	r.DeletedAt = nil
	r.UpdatedAt = now
}

// CanPurge checks the permanent-purge guard. Purge is irreversible and only
// permitted while the record is already soft-deleted.
func (r *Record) CanPurge() error {
	if !r.IsDeleted() {
		return guard("record must be soft-deleted before purge")
	}
	return nil
}
