package jwttoken

import (
	dErrors "prismid/pkg/domain-errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var adminID = uuid.New()
var username = "chief"
var tier = 3
var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(adminID, username, tier, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, adminID.String(), claims.AdminID)
	assert.Equal(t, username, claims.Username)
	assert.Equal(t, tier, claims.Tier)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	expiresIn := -time.Hour // Expired token

	token, err := jwtService.GenerateAccessToken(adminID, username, tier, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ExtractAdminIDFromToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(adminID, username, tier, expiresIn)
	require.NoError(t, err)

	got, err := jwtService.ExtractAdminIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, adminID, got)
}
