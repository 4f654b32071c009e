package role

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"prismid/internal/role/models"
	"prismid/pkg/platform/sentinel"
	txcontext "prismid/pkg/platform/tx"
)

// Postgres persists roles with the same row-lock Execute discipline as the
// personnel store. A partial unique index keeps names unique among live rows.
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

const roleColumns = `id, name, description, clearance_level, is_active, created_at, updated_at, deleted_at, version`

func (s *Postgres) Create(ctx context.Context, role *models.Role) error {
	const query = `
		INSERT INTO roles (id, name, description, clearance_level, is_active, created_at, updated_at, deleted_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		role.ID, role.Name, nullStr(role.Description), role.ClearanceLevel,
		role.IsActive, role.CreatedAt, role.UpdatedAt, role.DeletedAt, role.Version,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	return scanRole(s.querier(ctx).QueryRowContext(ctx, query, id))
}

func (s *Postgres) List(ctx context.Context, includeDeleted bool) ([]*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.querier(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []*models.Role
	for rows.Next() {
		r, err := scanRoleRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) Execute(
	ctx context.Context,
	id uuid.UUID,
	validate func(*models.Role) error,
	mutate func(*models.Role),
) (*models.Role, error) {
	q := s.querier(ctx)
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("role execute requires an ambient transaction")
	}

	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1 FOR UPDATE`
	role, err := scanRole(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := validate(role); err != nil {
		return nil, err
	}
	mutate(role)
	role.Version++

	const update = `
		UPDATE roles SET
			name = $2, description = $3, clearance_level = $4, is_active = $5,
			updated_at = $6, deleted_at = $7, version = $8
		WHERE id = $1
	`
	_, err = q.ExecContext(ctx, update,
		role.ID, role.Name, nullStr(role.Description), role.ClearanceLevel,
		role.IsActive, role.UpdatedAt, role.DeletedAt, role.Version,
	)
	if isUniqueViolation(err) {
		return nil, sentinel.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	return role, nil
}

func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.querier(ctx).ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanRole(row *sql.Row) (*models.Role, error) {
	var (
		r    models.Role
		desc sql.NullString
	)
	err := row.Scan(&r.ID, &r.Name, &desc, &r.ClearanceLevel, &r.IsActive,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt, &r.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan role: %w", err)
	}
	r.Description = desc.String
	return &r, nil
}

func scanRoleRow(rows *sql.Rows) (*models.Role, error) {
	var (
		r    models.Role
		desc sql.NullString
	)
	if err := rows.Scan(&r.ID, &r.Name, &desc, &r.ClearanceLevel, &r.IsActive,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt, &r.Version); err != nil {
		return nil, fmt.Errorf("scan role: %w", err)
	}
	r.Description = desc.String
	return &r, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
