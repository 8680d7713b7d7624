package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"transitpass/internal/auth/models"
	"transitpass/internal/notification"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/platform/sentinel"
	"transitpass/pkg/requestcontext"
)

const defaultTokenTTL = 24 * time.Hour

// Compared against when the email is unknown so both login failures cost one bcrypt check.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("transitpass-dummy-password"), bcrypt.MinCost)

var errBadCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")

// Service registers users, issues access tokens and revokes them on logout.
type Service struct {
	users          UserStore
	tokens         TokenIssuer
	revoker        TokenRevoker
	tx             TxRunner
	auditPublisher AuditPublisher
	logger         *slog.Logger
	tokenTTL       time.Duration
	bcryptCost     int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithBcryptCost is clamped to bcrypt's accepted range.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)
	}
}

func New(users UserStore, tokens TokenIssuer, revoker TokenRevoker, opts ...Option) *Service {
	s := &Service{
		users:      users,
		tokens:     tokens,
		revoker:    revoker,
		logger:     slog.Default(),
		tokenTTL:   defaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = noTx{}
	}
	return s
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// LoginResult is returned by Login.
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	UserID      id.UserID
	Name        string
	Role        id.Role
}

// Register creates a USER account. A taken email is a conflict.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	return s.createUser(ctx, name, email, password, id.RoleUser)
}

func (s *Service) createUser(ctx context.Context, name, email, password string, role id.Role) (*models.User, error) {
	if err := models.ValidateRegistration(name, email, password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	user := &models.User{
		Name:         strings.TrimSpace(name),
		Email:        models.NormalizeEmail(email),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    requestcontext.Now(ctx),
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.users.Save(ctx, user); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "email is already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save user")
		}
		if s.auditPublisher == nil {
			return nil
		}
		if err := s.auditPublisher.Emit(ctx, audit.Event{
			Action:  audit.EventUserRegistered.String(),
			UserID:  user.ID,
			Subject: "user:" + user.ID.String(),
			Details: map[string]string{"role": string(role)},
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
		}
		return nil
	})
	if err != nil {
		if _, ok := dErrors.As(err); !ok {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "registration failed")
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID,
		"role", role,
		"request_id", requestcontext.RequestID(ctx),
	)
	return user, nil
}

// Login checks the password and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "login failed",
			"user_id", user.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, errBadCredentials
	}

	token, claims, err := s.tokens.GenerateAccessToken(user.ID, user.Role, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	result := &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		UserID:      user.ID,
		Name:        user.Name,
		Role:        user.Role,
	}
	if claims != nil && claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

// Logout revokes the token that authenticated the request for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, token requestcontext.Token) error {
	if token.ID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	ttl := token.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := s.revoker.RevokeToken(ctx, token.ID, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	s.logger.InfoContext(ctx, "token revoked",
		"user_id", requestcontext.UserID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Contact resolves a user's name and email for notifications.
func (s *Service) Contact(ctx context.Context, userID id.UserID) (notification.Contact, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return notification.Contact{}, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return notification.Contact{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return notification.Contact{Name: user.Name, Email: user.Email}, nil
}

// SeedAdmin creates the bootstrap ADMIN account unless the email is already registered.
func (s *Service) SeedAdmin(ctx context.Context, name, email, password string) error {
	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		if existing.Role != id.RoleAdmin {
			s.logger.WarnContext(ctx, "admin seed email belongs to a non-admin user", "user_id", existing.ID)
		}
		return nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	_, err = s.createUser(ctx, name, email, password, id.RoleAdmin)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		return nil
	}
	return err
}
