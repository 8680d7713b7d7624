package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryTRL(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	trl := NewInMemoryTRL(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	t.Run("revoked token is reported until its ttl elapses", func(t *testing.T) {
		require.NoError(t, trl.RevokeToken(ctx, "jti-1", time.Minute))
		revoked, err := trl.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, revoked)

		now = now.Add(time.Minute)
		revoked, err = trl.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("unknown and empty ids are not revoked", func(t *testing.T) {
		revoked, err := trl.IsRevoked(ctx, "never")
		require.NoError(t, err)
		assert.False(t, revoked)
		require.NoError(t, trl.RevokeToken(ctx, "", time.Minute))
	})

	t.Run("non-positive ttl is rejected", func(t *testing.T) {
		err := trl.RevokeToken(ctx, "jti-2", 0)
		assert.ErrorIs(t, err, ErrInvalidTTL)
	})

	t.Run("expired entries are pruned on write", func(t *testing.T) {
		require.NoError(t, trl.RevokeToken(ctx, "jti-3", time.Second))
		now = now.Add(2 * time.Second)
		require.NoError(t, trl.RevokeToken(ctx, "jti-4", time.Minute))
		assert.NotContains(t, trl.revoked, "jti-3")
	})
}
