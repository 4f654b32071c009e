package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"prismid/internal/auth/models"
	"prismid/pkg/access"
	"prismid/pkg/platform/sentinel"
)

const adminColumns = `id, username, email, display_name, password_hash, tier, is_active, created_at, last_login`

// Postgres persists admin accounts in the admin_accounts table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, account *models.AdminAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_accounts (`+adminColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.ID,
		account.Username,
		account.Email,
		account.DisplayName,
		account.PasswordHash,
		int(account.Tier),
		account.IsActive,
		account.CreatedAt,
		account.LastLogin,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert admin account: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.AdminAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+adminColumns+`
		FROM admin_accounts
		WHERE id = $1`, id)
	return scanAdmin(row)
}

func (s *Postgres) FindByUsername(ctx context.Context, username string) (*models.AdminAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+adminColumns+`
		FROM admin_accounts
		WHERE lower(username) = lower($1)`, username)
	return scanAdmin(row)
}

func (s *Postgres) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE admin_accounts SET last_login = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM admin_accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admin accounts: %w", err)
	}
	return n, nil
}

func scanAdmin(row *sql.Row) (*models.AdminAccount, error) {
	var (
		a    models.AdminAccount
		tier int
	)
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.DisplayName,
		&a.PasswordHash,
		&tier,
		&a.IsActive,
		&a.CreatedAt,
		&a.LastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan admin account: %w", err)
	}
	a.Tier = access.Tier(tier)
	return &a, nil
}
