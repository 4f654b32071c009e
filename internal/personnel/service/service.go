// Package service implements the lifecycle engine for personnel records.
// Every mutation follows the same path: permission gate, atomic
// read-validate-mutate against the store inside one transaction, audit event
// appended in that same transaction, result returned to the caller.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	personnelmetrics "prismid/internal/personnel/metrics"
	"prismid/internal/personnel/models"
	rolemodels "prismid/internal/role/models"
	"prismid/pkg/access"
	"prismid/pkg/audit"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/identity"
	"prismid/pkg/platform/sentinel"
	"prismid/pkg/platform/tx"
	"prismid/pkg/requestcontext"
)

// Store is the transactional personnel record store. Execute must linearize
// operations on the same record (row lock or store mutex) and bump the
// version exactly once per successful mutation.
type Store interface {
	Create(ctx context.Context, record *models.Record) error
	FindByKey(ctx context.Context, key uuid.UUID) (*models.Record, error)
	FindByOpaqueID(ctx context.Context, opaqueID string) (*models.Record, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Record, error)
	ListExpiredKeys(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)
	ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Record, error)
	Execute(ctx context.Context, key uuid.UUID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)
	Delete(ctx context.Context, key uuid.UUID) error
}

// AssignmentStore is the role-assignment relation. The lifecycle engine reads
// it when converting (assignments migrate unchanged and are snapshotted into
// the audit event) and cascades it on hard purge.
type AssignmentStore interface {
	Assign(ctx context.Context, a rolemodels.Assignment) error
	Remove(ctx context.Context, personnelKey, roleID uuid.UUID) error
	ListByPersonnel(ctx context.Context, personnelKey uuid.UUID) ([]rolemodels.Assignment, error)
	RemoveByPersonnel(ctx context.Context, personnelKey uuid.UUID) error
}

// RoleReader is the narrow slice of the role store the engine needs to check
// that a role is assignable.
type RoleReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*rolemodels.Role, error)
}

// WarningCache receives the upcoming-expiry warning list produced by the
// sweep. Implemented on Redis; failures are logged, never fatal.
type WarningCache interface {
	StoreWarnings(ctx context.Context, warnings []ExpiryWarning, ttl time.Duration) error
}

// Service is the lifecycle engine.
type Service struct {
	records     Store
	assignments AssignmentStore
	roles       RoleReader
	codec       *identity.Codec
	auditor     *auditEmitter
	tx          tx.Runner
	logger      *slog.Logger
	metrics     *personnelmetrics.Metrics
	warnings    WarningCache
	warningSpan time.Duration
	sweepWidth  int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *personnelmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) { s.tx = runner }
}

func WithWarningCache(cache WarningCache) Option {
	return func(s *Service) { s.warnings = cache }
}

// WithWarningSpan sets how far ahead the sweep looks for soon-to-expire
// internships. Default is seven days.
func WithWarningSpan(span time.Duration) Option {
	return func(s *Service) { s.warningSpan = span }
}

// WithSweepConcurrency bounds how many records the sweep processes in
// parallel. Default is four.
func WithSweepConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepWidth = n
		}
	}
}

func New(records Store, assignments AssignmentStore, roles RoleReader, codec *identity.Codec, auditStore audit.Store, opts ...Option) *Service {
	s := &Service{
		records:     records,
		assignments: assignments,
		roles:       roles,
		codec:       codec,
		tx:          tx.NoopRunner{},
		logger:      slog.Default(),
		warningSpan: 7 * 24 * time.Hour,
		sweepWidth:  4,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.auditor = newAuditEmitter(auditStore, s.logger)
	return s
}

// Create registers a new personnel record. The opaque ID is derived once here
// from the freshly assigned surrogate key and the category tag.
func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Record, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpCreate); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	key := uuid.New()
	opaqueID, err := s.codec.Derive(key, req.Category.IdentityCategory())
	if err != nil {
		return nil, err
	}

	joined := now
	if req.JoinedOn != nil {
		joined = *req.JoinedOn
	}
	record := &models.Record{
		InternalKey: key,
		OpaqueID:    opaqueID,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Category:    req.Category,
		Status:      models.StatusActive,
		DomainID:    req.DomainID,
		DivisionID:  req.DivisionID,
		JoinedOn:    joined,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.records.Create(txCtx, record); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "email or opaque ID already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create personnel record")
		}
		return s.auditor.emit(txCtx, audit.ActionPersonnelCreated, record.InternalKey, nil, record)
	})
	if err != nil {
		return nil, err
	}

	s.countCreated()
	return record, nil
}

// Get fetches a record by surrogate key. Soft-deleted records remain
// fetchable by key; listings hide them by default.
func (s *Service) Get(ctx context.Context, key uuid.UUID) (*models.Record, error) {
	record, err := s.records.FindByKey(ctx, key)
	if err != nil {
		return nil, wrapRecordErr(err)
	}
	return record, nil
}

// GetByOpaqueID resolves a display identifier. The checksum is verified
// first so malformed IDs never reach storage; a valid checksum still only
// means well-formed, so the store lookup confirms issuance.
func (s *Service) GetByOpaqueID(ctx context.Context, opaqueID string) (*models.Record, error) {
	if !identity.Validate(opaqueID) {
		return nil, dErrors.New(dErrors.CodeValidation, "malformed opaque ID")
	}
	record, err := s.records.FindByOpaqueID(ctx, opaqueID)
	if err != nil {
		return nil, wrapRecordErr(err)
	}
	return record, nil
}

// ValidateOpaqueID exposes checksum validation to lookup and display paths.
func (s *Service) ValidateOpaqueID(opaqueID string) bool {
	return identity.Validate(opaqueID)
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Record, error) {
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list personnel")
	}
	return records, nil
}

// Update applies partial attribute changes. Lifecycle fields are out of
// reach here; only transitions touch category, status and deletion.
func (s *Service) Update(ctx context.Context, key uuid.UUID, req models.UpdateRequest) (*models.Record, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpUpdate); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var before *models.Record
	var updated *models.Record
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		record, err := s.records.Execute(txCtx, key,
			func(r *models.Record) error {
				before = r.Clone()
				if err := checkVersion(r, req.Version); err != nil {
					return err
				}
				if r.IsDeleted() {
					return dErrors.New(dErrors.CodeInvariantViolation, "record is deleted")
				}
				return nil
			},
			func(r *models.Record) {
				if req.Name != nil {
					r.Name = *req.Name
				}
				if req.Email != nil {
					r.Email = *req.Email
				}
				if req.Phone != nil {
					r.Phone = *req.Phone
				}
				if req.DomainID != nil {
					r.DomainID = req.DomainID
				}
				if req.DivisionID != nil {
					r.DivisionID = req.DivisionID
				}
				r.UpdatedAt = now
			},
		)
		if err != nil {
			return wrapRecordErr(err)
		}
		updated = record
		return s.auditor.emit(txCtx, audit.ActionPersonnelUpdated, key, before, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// checkVersion enforces the caller's optimistic-concurrency expectation. A
// nil expectation means last-write-wins within the record's own lock.
func checkVersion(r *models.Record, expected *int64) error {
	if expected != nil && *expected != r.Version {
		return dErrors.Newf(dErrors.CodeConflict,
			"version mismatch: expected %d, record is at %d", *expected, r.Version)
	}
	return nil
}

func wrapRecordErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "personnel record not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "conflicting personnel record")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "personnel store failure")
	}
}

func (s *Service) countCreated() {
	if s.metrics != nil {
		s.metrics.PersonnelCreated.Inc()
	}
}

func (s *Service) countConverted() {
	if s.metrics != nil {
		s.metrics.InternsConverted.Inc()
	}
}

func (s *Service) countExpired(n int) {
	if s.metrics != nil {
		s.metrics.InternshipsExpired.Add(float64(n))
	}
}
