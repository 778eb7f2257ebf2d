package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, ttl time.Duration) (*RedisClaimStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisClaimStore(rdb, ttl), mr
}

func TestRedisClaimStore_OneClaimPerDraft(t *testing.T) {
	s, mr := newStore(t, time.Minute)
	ctx := context.Background()

	ok, err := s.TryClaim(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryClaim(ctx, "1001")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.TryClaim(ctx, "1002")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, mr.Exists("webhook:claim:draft:1001"))
	assert.Equal(t, time.Minute, mr.TTL("webhook:claim:draft:1001"))
}

func TestRedisClaimStore_ReleaseAllowsReclaim(t *testing.T) {
	s, _ := newStore(t, time.Minute)
	ctx := context.Background()

	ok, err := s.TryClaim(ctx, "1001")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Release(ctx, "1001"))

	ok, err = s.TryClaim(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisClaimStore_ClaimExpires(t *testing.T) {
	s, mr := newStore(t, 0)
	ctx := context.Background()

	ok, err := s.TryClaim(ctx, "1001")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(5*time.Minute + time.Second)
	ok, err = s.TryClaim(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisClaimStore_Unavailable(t *testing.T) {
	s, mr := newStore(t, time.Minute)
	mr.Close()

	_, err := s.TryClaim(context.Background(), "1001")
	assert.Error(t, err)
}
