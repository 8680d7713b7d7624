package service

import (
	"context"
	"io"

	"transitpass/internal/notification"
	id "transitpass/pkg/domain"
	audit "transitpass/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Notifier delivers best-effort user notifications.
type Notifier interface {
	Notify(ctx context.Context, userID id.UserID, t notification.Template, data notification.Data) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DocumentStore keeps identity-proof uploads and returns a reference to them.
// Remove discards an upload whose application was never recorded.
type DocumentStore interface {
	Save(ctx context.Context, r io.Reader, suggestedName string) (string, error)
	Remove(ctx context.Context, ref string) error
}
