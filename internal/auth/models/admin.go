package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"prismid/pkg/access"
	dErrors "prismid/pkg/domain-errors"
)

// AdminAccount is an authenticated operator of the governance system. Its
// access tier is the principal's clearance for every gated operation.
type AdminAccount struct {
	ID           uuid.UUID   `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email,omitempty"`
	DisplayName  string      `json:"display_name,omitempty"`
	PasswordHash string      `json:"-"`
	Tier         access.Tier `json:"tier"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
	LastLogin    *time.Time  `json:"last_login,omitempty"`
}

func NewAdminAccount(id uuid.UUID, username, passwordHash string, tier access.Tier, now time.Time) (*AdminAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "password hash is required")
	}
	if !tier.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid access tier")
	}
	return &AdminAccount{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		Tier:         tier,
		IsActive:     true,
		CreatedAt:    now,
	}, nil
}

// LoginRequest is the credential payload for token issuance.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult carries the issued bearer token.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	Tier        access.Tier `json:"tier"`
}
