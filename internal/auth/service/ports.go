package service

import (
	"context"
	"time"

	"transitpass/internal/auth/models"
	jwttoken "transitpass/internal/jwt_token"
	id "transitpass/pkg/domain"
	audit "transitpass/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

type UserStore interface {
	Save(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, role id.Role, expiresIn time.Duration) (string, *jwttoken.Claims, error)
}

// TokenRevoker records logged-out tokens until they would have expired anyway.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
