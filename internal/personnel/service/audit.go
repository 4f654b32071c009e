package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"prismid/pkg/audit"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/requestcontext"
)

// auditEmitter builds audit events from request context and appends them
// through the store. Append runs inside the caller's transaction context, so
// a failed audit write rolls the mutation back with it. No transition ever
// commits without its audit counterpart.
type auditEmitter struct {
	store  audit.Store
	logger *slog.Logger
}

func newAuditEmitter(store audit.Store, logger *slog.Logger) *auditEmitter {
	return &auditEmitter{store: store, logger: logger}
}

const entityTypePersonnel = "personnel"

func (e *auditEmitter) emit(ctx context.Context, action audit.Action, key uuid.UUID, before, after any) error {
	return e.emitWithReason(ctx, action, key, before, after, "")
}

func (e *auditEmitter) emitWithReason(ctx context.Context, action audit.Action, key uuid.UUID, before, after any, reason string) error {
	actor := requestcontext.Actor(ctx)

	event := audit.Event{
		ID:         uuid.New(),
		Timestamp:  requestcontext.Now(ctx),
		Action:     action,
		EntityType: entityTypePersonnel,
		EntityKey:  key.String(),
		Previous:   audit.Snapshot(before),
		New:        audit.Snapshot(after),
		Reason:     reason,
		ClientIP:   requestcontext.ClientIP(ctx),
		RequestID:  requestcontext.RequestID(ctx),
	}
	if !actor.IsZero() {
		event.Actor = actor.ID.String()
		event.ActorName = actor.Username
		event.ActorTier = actor.Tier.String()
	}

	if err := e.store.Append(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "audit append failed, rolling back mutation",
			"action", string(action),
			"entity_key", event.EntityKey,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit record")
	}
	return nil
}
