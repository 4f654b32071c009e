package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"prismid/internal/auth/models"
	"prismid/internal/auth/secrets"
	authstore "prismid/internal/auth/store"
	jwttoken "prismid/internal/jwt_token"
	"prismid/pkg/access"
	"prismid/pkg/audit"
	auditmemory "prismid/pkg/audit/store/memory"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/requestcontext"
)

var testNow = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

const testPassword = "correct-horse-battery"

type AuthServiceSuite struct {
	suite.Suite
	accounts *authstore.InMemory
	auditLog *auditmemory.InMemoryStore
	service  *Service
	account  *models.AdminAccount
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.accounts = authstore.NewInMemory()
	s.auditLog = auditmemory.NewInMemoryStore()
	tokens := jwttoken.NewJWTService("test-signing-key", "prismid-test", "prismid-api")
	s.service = New(s.accounts, tokens, s.auditLog)

	hash, err := secrets.Hash(testPassword)
	s.Require().NoError(err)
	s.account, err = models.NewAdminAccount(uuid.New(), "root-admin", hash, access.TierSuperAdmin, testNow)
	s.Require().NoError(err)
	s.Require().NoError(s.accounts.Create(context.Background(), s.account))
}

func (s *AuthServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), testNow)
}

func (s *AuthServiceSuite) TestLogin() {
	s.Run("valid credentials issue a bearer token", func() {
		result, err := s.service.Login(s.ctx(), &models.LoginRequest{
			Username: "root-admin",
			Password: testPassword,
		})
		s.Require().NoError(err)
		s.Equal("Bearer", result.TokenType)
		s.Equal(3600, result.ExpiresIn)
		s.Equal(access.TierSuperAdmin, result.Tier)
		s.NotEmpty(result.AccessToken)

		stored, err := s.accounts.FindByID(context.Background(), s.account.ID)
		s.Require().NoError(err)
		s.Require().NotNil(stored.LastLogin)
		s.Equal(testNow, *stored.LastLogin)
	})

	s.Run("username lookup is case-insensitive", func() {
		_, err := s.service.Login(s.ctx(), &models.LoginRequest{
			Username: "ROOT-Admin",
			Password: testPassword,
		})
		s.NoError(err)
	})

	s.Run("missing fields are rejected before any lookup", func() {
		_, err := s.service.Login(s.ctx(), &models.LoginRequest{Username: "root-admin"})
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("unknown username fails opaquely and is audited", func() {
		_, err := s.service.Login(s.ctx(), &models.LoginRequest{
			Username: "nobody",
			Password: testPassword,
		})
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
		s.Equal("invalid credentials", dErrors.MessageOf(err))

		event := s.lastEvent()
		s.Equal(audit.ActionLoginFailed, event.Action)
		s.Equal("nobody", event.ActorName)
		s.Equal("unknown username", event.Reason)
	})

	s.Run("wrong password fails with the same message", func() {
		_, err := s.service.Login(s.ctx(), &models.LoginRequest{
			Username: "root-admin",
			Password: "wrong",
		})
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
		s.Equal("invalid credentials", dErrors.MessageOf(err))
		s.Equal("wrong password", s.lastEvent().Reason)
	})

	s.Run("disabled accounts cannot log in", func() {
		hash, err := secrets.Hash(testPassword)
		s.Require().NoError(err)
		disabled, err := models.NewAdminAccount(uuid.New(), "ex-admin", hash, access.TierAdmin, testNow)
		s.Require().NoError(err)
		disabled.IsActive = false
		s.Require().NoError(s.accounts.Create(context.Background(), disabled))

		_, err = s.service.Login(s.ctx(), &models.LoginRequest{
			Username: "ex-admin",
			Password: testPassword,
		})
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
		s.Equal("account disabled", s.lastEvent().Reason)
	})
}

func (s *AuthServiceSuite) TestAuthenticate() {
	result, err := s.service.Login(s.ctx(), &models.LoginRequest{
		Username: "root-admin",
		Password: testPassword,
	})
	s.Require().NoError(err)

	s.Run("issued token resolves to the principal", func() {
		principal, err := s.service.Authenticate(s.ctx(), result.AccessToken)
		s.Require().NoError(err)
		s.Equal(s.account.ID, principal.ID)
		s.Equal("root-admin", principal.Username)
		s.Equal(access.TierSuperAdmin, principal.Tier)
	})

	s.Run("garbage token is unauthorized", func() {
		_, err := s.service.Authenticate(s.ctx(), "not.a.token")
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("token signed with another key is unauthorized", func() {
		foreign := jwttoken.NewJWTService("other-key", "prismid-test", "prismid-api")
		token, err := foreign.GenerateAccessToken(s.account.ID, "root-admin", int(access.TierSuperAdmin), time.Hour)
		s.Require().NoError(err)

		_, err = s.service.Authenticate(s.ctx(), token)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})
}

func (s *AuthServiceSuite) TestSeedBootstrapAdmin() {
	s.Run("empty store gets a superadmin", func() {
		accounts := authstore.NewInMemory()
		seeded, err := authstore.SeedBootstrapAdmin(context.Background(), accounts, "bootstrap", "initial-secret")
		s.Require().NoError(err)
		s.Require().NotNil(seeded)
		s.Equal(access.TierSuperAdmin, seeded.Tier)

		again, err := authstore.SeedBootstrapAdmin(context.Background(), accounts, "bootstrap", "initial-secret")
		s.NoError(err)
		s.Nil(again)
	})

	s.Run("populated store is never touched", func() {
		seeded, err := authstore.SeedBootstrapAdmin(context.Background(), s.accounts, "bootstrap", "initial-secret")
		s.NoError(err)
		s.Nil(seeded)
	})
}

func (s *AuthServiceSuite) lastEvent() audit.Event {
	events := s.auditLog.All()
	s.Require().NotEmpty(events)
	return events[len(events)-1]
}
