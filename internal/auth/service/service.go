package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"prismid/internal/auth/models"
	"prismid/internal/auth/secrets"
	jwttoken "prismid/internal/jwt_token"
	"prismid/pkg/audit"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/platform/sentinel"
	"prismid/pkg/requestcontext"
)

// AccountStore abstracts admin account persistence. Implemented by the
// memory and postgres stores under internal/auth/store.
type AccountStore interface {
	Create(ctx context.Context, account *models.AdminAccount) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.AdminAccount, error)
	FindByUsername(ctx context.Context, username string) (*models.AdminAccount, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Count(ctx context.Context) (int, error)
}

type Service struct {
	accounts AccountStore
	tokens   *jwttoken.JWTService
	auditor  audit.Store
	logger   *slog.Logger
	tokenTTL time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func New(accounts AccountStore, tokens *jwttoken.JWTService, auditor audit.Store, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		auditor:  auditor,
		logger:   slog.Default(),
		tokenTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errBadCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

// Login verifies the credentials and issues a bearer token carrying the
// account's access tier. Failed attempts are audited; the response never
// distinguishes unknown usernames from wrong passwords.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username and password are required")
	}

	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordFailure(ctx, username, "unknown username")
			return nil, errBadCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "account lookup failed")
	}
	if !account.IsActive {
		s.recordFailure(ctx, username, "account disabled")
		return nil, errBadCredentials
	}
	if err := secrets.Verify(req.Password, account.PasswordHash); err != nil {
		if dErrors.Is(err, dErrors.CodeUnauthorized) {
			s.recordFailure(ctx, username, "wrong password")
			return nil, errBadCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential check failed")
	}

	token, err := s.tokens.GenerateAccessToken(account.ID, account.Username, int(account.Tier), s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "token generation failed")
	}

	if err := s.accounts.RecordLogin(ctx, account.ID, requestcontext.Now(ctx)); err != nil {
		s.logger.WarnContext(ctx, "could not record login time",
			slog.String("username", account.Username), slog.Any("error", err))
	}

	return &models.LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		Tier:        account.Tier,
	}, nil
}

// Authenticate resolves a bearer token into the request principal.
func (s *Service) Authenticate(ctx context.Context, token string) (*requestcontext.Principal, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	adminID, err := uuid.Parse(claims.AdminID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	account, err := s.accounts.FindByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "account lookup failed")
	}
	if !account.IsActive {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account disabled")
	}

	return &requestcontext.Principal{
		ID:       account.ID,
		Username: account.Username,
		Tier:     account.Tier,
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, username, reason string) {
	event := audit.Event{
		ID:         uuid.New(),
		Timestamp:  requestcontext.Now(ctx),
		ActorName:  username,
		Action:     audit.ActionLoginFailed,
		EntityType: "admin_account",
		Reason:     reason,
		ClientIP:   requestcontext.ClientIP(ctx),
		RequestID:  requestcontext.RequestID(ctx),
	}
	if err := s.auditor.Append(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "could not audit failed login",
			slog.String("username", username), slog.Any("error", err))
	}
}
