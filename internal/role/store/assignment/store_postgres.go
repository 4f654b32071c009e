package assignment

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

// Postgres persists role assignments in the role_assignments join table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Assign(ctx context.Context, a models.Assignment) error {
	const query = `
		INSERT INTO role_assignments (personnel_key, role_id, assigned_at, assigned_by)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, a.PersonnelKey, a.RoleID, a.AssignedAt, a.AssignedBy)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert role assignment: %w", err)
	}
	return nil
}

func (s *Postgres) Remove(ctx context.Context, personnelKey, roleID uuid.UUID) error {
	const query = `DELETE FROM role_assignments WHERE personnel_key = $1 AND role_id = $2`
	res, err := s.execer(ctx).ExecContext(ctx, query, personnelKey, roleID)
	if err != nil {
		return fmt.Errorf("remove role assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove role assignment: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListByPersonnel(ctx context.Context, personnelKey uuid.UUID) ([]models.Assignment, error) {
	const query = `
		SELECT personnel_key, role_id, assigned_at, assigned_by
		FROM role_assignments
		WHERE personnel_key = $1
		ORDER BY assigned_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, personnelKey)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}
	defer rows.Close()

	var out []models.Assignment
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.PersonnelKey, &a.RoleID, &a.AssignedAt, &a.AssignedBy); err != nil {
			return nil, fmt.Errorf("scan role assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) RemoveByPersonnel(ctx context.Context, personnelKey uuid.UUID) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM role_assignments WHERE personnel_key = $1`, personnelKey)
	if err != nil {
		return fmt.Errorf("cascade assignments by personnel: %w", err)
	}
	return nil
}

func (s *Postgres) RemoveByRole(ctx context.Context, roleID uuid.UUID) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM role_assignments WHERE role_id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("cascade assignments by role: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
