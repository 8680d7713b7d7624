package models

import (
	"strings"
	"time"
)

// EndpointClass groups routes that share a limit.
type EndpointClass string

const (
	// ClassPublic covers unauthenticated routes: login, register and payment callbacks.
	ClassPublic EndpointClass = "public"
	// ClassAuthenticated covers routes behind a bearer token.
	ClassAuthenticated EndpointClass = "authenticated"
)

// Rule is a sliding-window allowance.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of one check against a bucket.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until the oldest hit leaves the window.
	RetryAfter int
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Key builds the bucket key for a class and client address.
func Key(class EndpointClass, ip string) string {
	return "rl:" + string(class) + ":" + SanitizeKeySegment(ip)
}

// SanitizeKeySegment replaces the key delimiter so a caller-supplied segment
// cannot address another bucket. IPv6 addresses are the common case.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// RetryAfterSeconds rounds up so clients never retry early.
func RetryAfterSeconds(now, resetAt time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
