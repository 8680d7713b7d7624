package service

import (
	"context"

	"transitpass/internal/notification"
	id "transitpass/pkg/domain"
	audit "transitpass/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Provider mints orders and checks checkout signatures.
type Provider interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

type Notifier interface {
	Notify(ctx context.Context, userID id.UserID, t notification.Template, data notification.Data) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
