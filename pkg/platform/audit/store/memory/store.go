package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	id "transitpass/pkg/domain"
	audit "transitpass/pkg/platform/audit"
)

// InMemoryStore keeps events in process and exposes them as an outbox, so the
// relay worker runs unchanged without Postgres.
type InMemoryStore struct {
	mu        sync.RWMutex
	events    []audit.Event
	published map[uuid.UUID]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{published: make(map[uuid.UUID]time.Time)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListByAction returns events with the given action in append order.
func (s *InMemoryStore) ListByAction(_ context.Context, action audit.AuditEvent) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.Action == string(action) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryStore) FetchUnpublished(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.OutboxEntry
	for _, e := range s.events {
		if _, done := s.published[e.ID]; done {
			continue
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal audit event: %w", err)
		}
		out = append(out, audit.OutboxEntry{
			ID:          e.ID,
			AggregateID: e.UserID.String(),
			EventType:   e.Action,
			Payload:     payload,
			CreatedAt:   e.Timestamp,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, eventID := range ids {
		s.published[eventID] = at
	}
	return nil
}
