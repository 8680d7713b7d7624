package models

import (
	"net/mail"
	"strings"
	"time"

	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// User is the identity root. Email is stored normalized and is unique.
type User struct {
	ID           id.UserID
	Name         string
	Email        string
	PasswordHash string
	Role         id.Role
	CreatedAt    time.Time
}

// NormalizeEmail trims and lowercases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateRegistration checks the user-supplied registration fields.
func ValidateRegistration(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	email = NormalizeEmail(email)
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if len(password) < MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	return nil
}
