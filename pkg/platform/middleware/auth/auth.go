package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	"transitpass/pkg/platform/httputil"
	"transitpass/pkg/requestcontext"
)

//go:generate mockgen -source=auth.go -destination=mocks/mocks.go -package=mocks

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// TokenRevocationChecker reports whether a token id has been revoked by logout.
type TokenRevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID    id.UserID
	Role      string
	JTI       string // JWT ID for revocation tracking
	ExpiresAt time.Time
}

var errUnauthorized = dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token")

// RequireAuth rejects requests without a valid, unrevoked bearer token and
// stores the caller and token in the request context.
func RequireAuth(validator JWTValidator, revocationChecker TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, errUnauthorized)
				return
			}

			role, err := id.ParseRole(claims.Role)
			if err != nil || claims.UserID.IsZero() {
				logger.WarnContext(ctx, "unauthorized access - malformed claims",
					"request_id", requestID,
				)
				httputil.WriteError(w, errUnauthorized)
				return
			}

			if revocationChecker != nil {
				if claims.JTI == "" {
					logger.WarnContext(ctx, "unauthorized access - missing token jti",
						"request_id", requestID,
					)
					httputil.WriteError(w, errUnauthorized)
					return
				}
				revoked, err := revocationChecker.IsRevoked(ctx, claims.JTI)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation",
						"error", err,
						"request_id", requestID,
					)
					httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate token"))
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - token revoked",
						"jti", claims.JTI,
						"request_id", requestID,
					)
					httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked"))
					return
				}
			}

			ctx = requestcontext.WithCaller(ctx, id.Caller{UserID: claims.UserID, Role: role})
			ctx = requestcontext.WithAccessToken(ctx, requestcontext.Token{ID: claims.JTI, ExpiresAt: claims.ExpiresAt})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
