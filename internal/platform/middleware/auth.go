package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"prismid/pkg/access"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/platform/httputil"
	"prismid/pkg/requestcontext"
)

// Authenticator resolves a bearer token into the request principal.
// Implemented by the auth service.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*requestcontext.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and places the
// authenticated principal in the context for downstream tier checks.
func RequireAuth(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					slog.String("request_id", requestcontext.RequestID(ctx)),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			principal, err := auth.Authenticate(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					slog.Any("error", err),
					slog.String("request_id", requestcontext.RequestID(ctx)),
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, *principal)))
		})
	}
}

// RequireTier gates a route group behind a minimum access tier. Most
// operations check their own tier inside the service; this exists for routes
// with no finer-grained operation, like the audit listing.
func RequireTier(min access.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := access.Authorize(requestcontext.Tier(r.Context()), min); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
