package bucket

import (
	"context"
	"sync"
	"time"

	"transitpass/internal/ratelimit/models"
)

// InMemoryBucketStore is a per-process sliding window. Each replica keeps its own counts.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

type Option func(*InMemoryBucketStore)

func WithClock(now func() time.Time) Option {
	return func(s *InMemoryBucketStore) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow records a hit when the window has room.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string, rule models.Rule) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hits := prune(s.buckets[key], now.Add(-rule.Window))

	if len(hits) >= rule.Limit {
		s.buckets[key] = hits
		resetAt := now.Add(rule.Window)
		if len(hits) > 0 {
			resetAt = hits[0].Add(rule.Window)
		}
		return &models.Result{
			Allowed:    false,
			Limit:      rule.Limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: models.RetryAfterSeconds(now, resetAt),
		}, nil
	}

	hits = append(hits, now)
	s.buckets[key] = hits
	return &models.Result{
		Allowed:   true,
		Limit:     rule.Limit,
		Remaining: rule.Limit - len(hits),
		ResetAt:   hits[0].Add(rule.Window),
	}, nil
}

// Reset forgets every hit recorded for key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// prune drops timestamps at or before cutoff. Hits are appended in order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(hits); i++ {
		if hits[i].After(cutoff) {
			break
		}
	}
	return hits[i:]
}
