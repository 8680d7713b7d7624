package domain

import (
	"strconv"
	"strings"

	dErrors "transitpass/pkg/domain-errors"
)

// Typed identifiers. All are positive database-assigned integers; zero means unset.
type (
	UserID    int64
	PassID    int64
	RenewalID int64
)

func (id UserID) IsZero() bool    { return id == 0 }
func (id PassID) IsZero() bool    { return id == 0 }
func (id RenewalID) IsZero() bool { return id == 0 }

func (id UserID) String() string    { return strconv.FormatInt(int64(id), 10) }
func (id PassID) String() string    { return strconv.FormatInt(int64(id), 10) }
func (id RenewalID) String() string { return strconv.FormatInt(int64(id), 10) }

// maxIDLength bounds the decimal representation of an int64 id.
const maxIDLength = 19

func parsePositive(kind, s string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeValidation, kind+" is required")
	}
	if len(s) > maxIDLength || strings.TrimSpace(s) != s {
		return 0, dErrors.New(dErrors.CodeValidation, "invalid "+kind)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "invalid "+kind)
	}
	return v, nil
}

// ParseUserID parses a decimal user id from untrusted input.
func ParseUserID(s string) (UserID, error) {
	v, err := parsePositive("user id", s)
	return UserID(v), err
}

// ParsePassID parses a decimal pass id from untrusted input.
func ParsePassID(s string) (PassID, error) {
	v, err := parsePositive("pass id", s)
	return PassID(v), err
}

// ParseRenewalID parses a decimal renewal id from untrusted input.
func ParseRenewalID(s string) (RenewalID, error) {
	v, err := parsePositive("renewal id", s)
	return RenewalID(v), err
}
