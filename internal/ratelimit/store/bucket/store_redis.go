package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"transitpass/internal/ratelimit/models"
)

// RedisBucketStore keeps one sorted set per key, scored by hit time in
// microseconds, so every replica shares the same window.
type RedisBucketStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client, now: time.Now}
}

// slidingWindow trims expired hits, then adds ARGV[3] when there is room.
// Returns {allowed, count, oldest_score}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local member = ARGV[3]
local limit = tonumber(ARGV[4])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, math.ceil(window / 1000))
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then oldestScore = tonumber(oldest[2]) end
return {allowed, count, tostring(oldestScore)}
`)

func (s *RedisBucketStore) Allow(ctx context.Context, key string, rule models.Rule) (*models.Result, error) {
	now := s.now()
	nowMicros := now.UnixMicro()
	windowMicros := rule.Window.Microseconds()

	raw, err := slidingWindow.Run(ctx, s.client, []string{key},
		nowMicros, windowMicros, uuid.NewString(), rule.Limit,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script for %s: %w", key, err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("rate limit script for %s: unexpected reply %v", key, raw)
	}
	allowed, _ := raw[0].(int64)
	count, _ := raw[1].(int64)
	oldestStr, _ := raw[2].(string)
	oldest, err := strconv.ParseFloat(oldestStr, 64)
	if err != nil {
		return nil, fmt.Errorf("rate limit script for %s: parse oldest score: %w", key, err)
	}

	resetAt := time.UnixMicro(int64(oldest)).Add(rule.Window)
	res := &models.Result{
		Allowed:   allowed == 1,
		Limit:     rule.Limit,
		Remaining: max(rule.Limit-int(count), 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = models.RetryAfterSeconds(now, resetAt)
	}
	return res, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", key, err)
	}
	return nil
}
