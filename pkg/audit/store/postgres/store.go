package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"prismid/pkg/audit"
	txcontext "prismid/pkg/platform/tx"
)

// Store persists audit events in the audit_events table. Writes go through
// the ambient transaction when one is present, so an event commits or rolls
// back together with the mutation it describes. There is no update or delete
// path: the table is append-only by construction.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	const query = `
		INSERT INTO audit_events (
			id, occurred_at, actor_id, actor_name, actor_tier,
			action, entity_type, entity_key, previous_value, new_value,
			reason, client_ip, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		nullString(event.Actor),
		nullString(event.ActorName),
		nullString(event.ActorTier),
		string(event.Action),
		event.EntityType,
		event.EntityKey,
		nullJSON(event.Previous),
		nullJSON(event.New),
		nullString(event.Reason),
		nullString(event.ClientIP),
		nullString(event.RequestID),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByEntity(ctx context.Context, entityType, entityKey string, limit int) ([]audit.Event, error) {
	const query = `
		SELECT id, occurred_at, actor_id, actor_name, actor_tier,
		       action, entity_type, entity_key, previous_value, new_value,
		       reason, client_ip, request_id
		FROM audit_events
		WHERE entity_type = $1 AND entity_key = $2
		ORDER BY occurred_at ASC
		LIMIT $3
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, entityType, entityKey, effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list audit events by entity: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	const query = `
		SELECT id, occurred_at, actor_id, actor_name, actor_tier,
		       action, entity_type, entity_key, previous_value, new_value,
		       reason, client_ip, request_id
		FROM audit_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			action   string
			actor    sql.NullString
			name     sql.NullString
			tier     sql.NullString
			prev     []byte
			next     []byte
			reason   sql.NullString
			clientIP sql.NullString
			reqID    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &actor, &name, &tier,
			&action, &e.EntityType, &e.EntityKey, &prev, &next,
			&reason, &clientIP, &reqID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = audit.Action(action)
		e.Actor = actor.String
		e.ActorName = name.String
		e.ActorTier = tier.String
		e.Previous = prev
		e.New = next
		e.Reason = reason.String
		e.ClientIP = clientIP.String
		e.RequestID = reqID.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
