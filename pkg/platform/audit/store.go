package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store appends audit events. Implementations must honour a transaction carried by ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Outbox is the read side used by the relay worker.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}
