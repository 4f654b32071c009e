package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"prismid/internal/auth/models"
	"prismid/internal/auth/secrets"
	"prismid/pkg/access"
	"prismid/pkg/platform/sentinel"
)

// Accounts is the subset of the account store that seeding needs.
type Accounts interface {
	Create(ctx context.Context, account *models.AdminAccount) error
	Count(ctx context.Context) (int, error)
}

// SeedBootstrapAdmin creates the initial superadmin account when the store is
// empty, so a fresh deployment can be administered at all. Existing
// deployments are left untouched.
func SeedBootstrapAdmin(ctx context.Context, accounts Accounts, username, password string) (*models.AdminAccount, error) {
	n, err := accounts.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}

	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, err
	}
	account, err := models.NewAdminAccount(uuid.New(), username, hash, access.TierSuperAdmin, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := accounts.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}
