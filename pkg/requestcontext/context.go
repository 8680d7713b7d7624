// Package requestcontext provides HTTP-independent accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
//	caller := requestcontext.Caller(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithCaller(ctx, domain.Caller{UserID: 1, Role: domain.RoleUser})
package requestcontext

import (
	"context"
	"time"

	id "transitpass/pkg/domain"
)

type (
	callerKey      struct{}
	tokenKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need context.WithValue.
var (
	ContextKeyCaller      = callerKey{}
	ContextKeyToken       = tokenKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// Caller returns the authenticated caller, or the zero Caller for anonymous requests.
func Caller(ctx context.Context) id.Caller {
	if c, ok := ctx.Value(ContextKeyCaller).(id.Caller); ok {
		return c
	}
	return id.Caller{}
}

// WithCaller injects the authenticated caller.
func WithCaller(ctx context.Context, caller id.Caller) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, caller)
}

// UserID is shorthand for Caller(ctx).UserID.
func UserID(ctx context.Context) id.UserID {
	return Caller(ctx).UserID
}

// Token describes the bearer token that authenticated the request.
type Token struct {
	ID        string
	ExpiresAt time.Time
}

// AccessToken returns the token that authenticated the request, if any.
func AccessToken(ctx context.Context) (Token, bool) {
	t, ok := ctx.Value(ContextKeyToken).(Token)
	return t, ok
}

// WithAccessToken records the token that authenticated the request.
func WithAccessToken(ctx context.Context, t Token) context.Context {
	return context.WithValue(ctx, ContextKeyToken, t)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() outside HTTP requests (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
