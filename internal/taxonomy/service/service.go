// Package service manages the domain/division taxonomies referenced by
// personnel records. Taxonomy management is a SUPERADMIN capability.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"prismid/internal/taxonomy/models"
	"prismid/pkg/access"
	"prismid/pkg/audit"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/platform/sentinel"
	"prismid/pkg/platform/tx"
	"prismid/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, entry *models.Entry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Entry, error)
	ListByKind(ctx context.Context, kind models.Kind) ([]*models.Entry, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (*models.Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	entries    Store
	auditStore audit.Store
	tx         tx.Runner
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) { s.tx = runner }
}

func New(entries Store, auditStore audit.Store, opts ...Option) *Service {
	s := &Service{
		entries:    entries,
		auditStore: auditStore,
		tx:         tx.NoopRunner{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, kind models.Kind, name string) (*models.Entry, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpManageTaxonomy); err != nil {
		return nil, err
	}

	entry, err := models.NewEntry(uuid.New(), kind, name, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.entries.Create(txCtx, entry); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "%s name must be unique", strings.ToLower(string(kind)))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create taxonomy entry")
		}
		return s.emit(txCtx, audit.ActionTaxonomyCreated, entry.ID, nil, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) List(ctx context.Context, kind models.Kind) ([]*models.Entry, error) {
	if !kind.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown taxonomy kind %q", kind)
	}
	entries, err := s.entries.ListByKind(ctx, kind)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list taxonomy entries")
	}
	return entries, nil
}

func (s *Service) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Entry, error) {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpManageTaxonomy); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "taxonomy name is required")
	}

	var before *models.Entry
	var renamed *models.Entry
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.entries.FindByID(txCtx, id)
		if err != nil {
			return wrapTaxonomyErr(err)
		}
		before = current

		entry, err := s.entries.Rename(txCtx, id, name)
		if err != nil {
			return wrapTaxonomyErr(err)
		}
		renamed = entry
		return s.emit(txCtx, audit.ActionTaxonomyUpdated, id, before, renamed)
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := access.AuthorizeOp(requestcontext.Tier(ctx), access.OpManageTaxonomy); err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		entry, err := s.entries.FindByID(txCtx, id)
		if err != nil {
			return wrapTaxonomyErr(err)
		}
		if err := s.entries.Delete(txCtx, id); err != nil {
			return wrapTaxonomyErr(err)
		}
		return s.emit(txCtx, audit.ActionTaxonomyDeleted, id, entry, nil)
	})
}

const entityTypeTaxonomy = "taxonomy"

func (s *Service) emit(ctx context.Context, action audit.Action, id uuid.UUID, before, after any) error {
	actor := requestcontext.Actor(ctx)
	event := audit.Event{
		ID:         uuid.New(),
		Timestamp:  requestcontext.Now(ctx),
		Action:     action,
		EntityType: entityTypeTaxonomy,
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
			"entry_id", id.String(),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit record")
	}
	return nil
}

func wrapTaxonomyErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "taxonomy entry not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "taxonomy name must be unique")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "taxonomy store failure")
	}
}
