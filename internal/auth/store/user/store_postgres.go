package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"transitpass/internal/auth/models"
	id "transitpass/pkg/domain"
	"transitpass/pkg/platform/sentinel"
	txcontext "transitpass/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresUserStore persists users in the users table.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) Save(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	var userID int64
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		user.Name, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt,
	).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = id.UserID(userID)
	return nil
}

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, `WHERE id = $1`, int64(userID))
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, `WHERE lower(email) = $1`, models.NormalizeEmail(email))
}

func (s *PostgresUserStore) findOne(ctx context.Context, where string, arg any) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, role, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Role = id.Role(role)
	return &u, nil
}
