package domain

import (
	"strings"

	dErrors "transitpass/pkg/domain-errors"
)

// Role is the authorization level of an authenticated user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole accepts roles case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid role")
	}
	return r, nil
}

// Caller identifies who is performing an operation. It is passed explicitly to
// every ledger and payment operation rather than read from ambient state.
type Caller struct {
	UserID UserID
	Role   Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// RequireUser fails with unauthorized when the caller is anonymous.
func (c Caller) RequireUser() error {
	if c.UserID.IsZero() || !c.Role.IsValid() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

// RequireAdmin fails with unauthorized for anonymous callers and forbidden for non-admins.
func (c Caller) RequireAdmin() error {
	if err := c.RequireUser(); err != nil {
		return err
	}
	if !c.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return nil
}
