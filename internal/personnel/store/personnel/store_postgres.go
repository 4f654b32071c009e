package personnel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"prismid/internal/personnel/models"
	"prismid/pkg/platform/sentinel"
	txcontext "prismid/pkg/platform/tx"
)

// Postgres persists personnel records. Execute acquires a row lock
// (SELECT ... FOR UPDATE) inside the ambient transaction so concurrent
// operations on the same record are linearized by the database; operations
// on different records proceed in parallel.
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

const recordColumns = `
	internal_key, opaque_id, name, email, phone, category, status,
	domain_id, division_id, joined_on, start_date, end_date,
	converted_at, created_at, updated_at, deleted_at, version
`

func (s *Postgres) Create(ctx context.Context, record *models.Record) error {
	const query = `
		INSERT INTO personnel (
			internal_key, opaque_id, name, email, phone, category, status,
			domain_id, division_id, joined_on, start_date, end_date,
			converted_at, created_at, updated_at, deleted_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		record.InternalKey, record.OpaqueID, record.Name, record.Email,
		nullStr(record.Phone), string(record.Category), string(record.Status),
		record.DomainID, record.DivisionID, record.JoinedOn,
		record.StartDate, record.EndDate, record.ConvertedAt,
		record.CreatedAt, record.UpdatedAt, record.DeletedAt, record.Version,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert personnel record: %w", err)
	}
	return nil
}

func (s *Postgres) FindByKey(ctx context.Context, key uuid.UUID) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM personnel WHERE internal_key = $1`
	return scanRecord(s.querier(ctx).QueryRowContext(ctx, query, key))
}

func (s *Postgres) FindByOpaqueID(ctx context.Context, opaqueID string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM personnel WHERE opaque_id = $1`
	return scanRecord(s.querier(ctx).QueryRowContext(ctx, query, opaqueID))
}

func (s *Postgres) List(ctx context.Context, filter models.ListFilter) ([]*models.Record, error) {
	var (
		conds []string
		args  []any
	)
	if !filter.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conds = append(conds, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + recordColumns + ` FROM personnel`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list personnel: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Postgres) ListExpiredKeys(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	const query = `
		SELECT internal_key FROM personnel
		WHERE category = 'INTERN' AND status = 'ACTIVE'
		  AND deleted_at IS NULL AND end_date < $1
		ORDER BY end_date ASC
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("list expired intern keys: %w", err)
	}
	defer rows.Close()

	var keys []uuid.UUID
	for rows.Next() {
		var key uuid.UUID
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan expired intern key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *Postgres) ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM personnel
		WHERE category = 'INTERN' AND status = 'ACTIVE'
		  AND deleted_at IS NULL AND end_date BETWEEN $1 AND $2
		ORDER BY end_date ASC`
	rows, err := s.querier(ctx).QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list expiring interns: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Execute locks the row, runs validate on the current state, applies mutate,
// and writes the result back with version+1. Must run inside a transaction
// (tx.Runner puts one in the context); without one the row lock would be
// released before the write.
func (s *Postgres) Execute(
	ctx context.Context,
	key uuid.UUID,
	validate func(*models.Record) error,
	mutate func(*models.Record),
) (*models.Record, error) {
	q := s.querier(ctx)
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("personnel execute requires an ambient transaction")
	}

	query := `SELECT ` + recordColumns + ` FROM personnel WHERE internal_key = $1 FOR UPDATE`
	record, err := scanRecord(q.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, err
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)
	record.Version++

	const update = `
		UPDATE personnel SET
			opaque_id = $2, name = $3, email = $4, phone = $5,
			category = $6, status = $7, domain_id = $8, division_id = $9,
			start_date = $10, end_date = $11, converted_at = $12,
			updated_at = $13, deleted_at = $14, version = $15
		WHERE internal_key = $1
	`
	_, err = q.ExecContext(ctx, update,
		record.InternalKey, record.OpaqueID, record.Name, record.Email,
		nullStr(record.Phone), string(record.Category), string(record.Status),
		record.DomainID, record.DivisionID, record.StartDate, record.EndDate,
		record.ConvertedAt, record.UpdatedAt, record.DeletedAt, record.Version,
	)
	if isUniqueViolation(err) {
		return nil, sentinel.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update personnel record: %w", err)
	}
	return record, nil
}

func (s *Postgres) Delete(ctx context.Context, key uuid.UUID) error {
	res, err := s.querier(ctx).ExecContext(ctx, `DELETE FROM personnel WHERE internal_key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete personnel record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete personnel record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	var (
		r        models.Record
		phone    sql.NullString
		category string
		status   string
	)
	err := row.Scan(
		&r.InternalKey, &r.OpaqueID, &r.Name, &r.Email, &phone,
		&category, &status, &r.DomainID, &r.DivisionID, &r.JoinedOn,
		&r.StartDate, &r.EndDate, &r.ConvertedAt,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt, &r.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan personnel record: %w", err)
	}
	r.Phone = phone.String
	r.Category = models.Category(category)
	r.Status = models.Status(status)
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*models.Record, error) {
	var out []*models.Record
	for rows.Next() {
		var (
			r        models.Record
			phone    sql.NullString
			category string
			status   string
		)
		if err := rows.Scan(
			&r.InternalKey, &r.OpaqueID, &r.Name, &r.Email, &phone,
			&category, &status, &r.DomainID, &r.DivisionID, &r.JoinedOn,
			&r.StartDate, &r.EndDate, &r.ConvertedAt,
			&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt, &r.Version,
		); err != nil {
			return nil, fmt.Errorf("scan personnel record: %w", err)
		}
		r.Phone = phone.String
		r.Category = models.Category(category)
		r.Status = models.Status(status)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
