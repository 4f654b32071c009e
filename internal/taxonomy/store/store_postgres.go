package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"prismid/internal/taxonomy/models"
	"prismid/pkg/platform/sentinel"
	txcontext "prismid/pkg/platform/tx"
)

// Postgres persists taxonomy entries. Both kinds live in one table with a
// per-kind unique name index.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, entry *models.Entry) error {
	const query = `
		INSERT INTO taxonomy_entries (id, kind, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		entry.ID, string(entry.Kind), entry.Name, entry.CreatedAt, entry.UpdatedAt)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert taxonomy entry: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Entry, error) {
	const query = `SELECT id, kind, name, created_at, updated_at FROM taxonomy_entries WHERE id = $1`
	var (
		e    models.Entry
		kind string
	)
	err := s.querier(ctx).QueryRowContext(ctx, query, id).
		Scan(&e.ID, &kind, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan taxonomy entry: %w", err)
	}
	e.Kind = models.Kind(kind)
	return &e, nil
}

func (s *Postgres) ListByKind(ctx context.Context, kind models.Kind) ([]*models.Entry, error) {
	const query = `
		SELECT id, kind, name, created_at, updated_at
		FROM taxonomy_entries WHERE kind = $1 ORDER BY name ASC
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list taxonomy entries: %w", err)
	}
	defer rows.Close()

	var out []*models.Entry
	for rows.Next() {
		var (
			e models.Entry
			k string
		)
		if err := rows.Scan(&e.ID, &k, &e.Name, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan taxonomy entry: %w", err)
		}
		e.Kind = models.Kind(k)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Postgres) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Entry, error) {
	const query = `
		UPDATE taxonomy_entries SET name = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, kind, name, created_at, updated_at
	`
	var (
		e    models.Entry
		kind string
	)
	err := s.querier(ctx).QueryRowContext(ctx, query, id, name).
		Scan(&e.ID, &kind, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if isUniqueViolation(err) {
		return nil, sentinel.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("rename taxonomy entry: %w", err)
	}
	e.Kind = models.Kind(kind)
	return &e, nil
}

func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.querier(ctx).ExecContext(ctx, `DELETE FROM taxonomy_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete taxonomy entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete taxonomy entry: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
