package publisher

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/requestcontext"
)

// Publisher enriches events with request metadata and appends them synchronously,
// so they commit or roll back with the surrounding transaction.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps id, time and request id when missing, then appends.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "failed to append audit event",
				"action", event.Action,
				"request_id", event.RequestID,
				"error", err,
			)
		}
		return err
	}
	return nil
}
