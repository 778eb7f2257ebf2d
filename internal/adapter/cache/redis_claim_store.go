package cache

import (
	"context"
	"time"

	"github.com/Xolta0/shopify/internal/usecase"
	"github.com/redis/go-redis/v9"
)

// RedisClaimStore lets one webhook delivery at a time finalize a draft.
// Claims expire after ttl so a crashed delivery cannot block re-delivery.
type RedisClaimStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClaimStore(rdb *redis.Client, ttl time.Duration) *RedisClaimStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisClaimStore{rdb: rdb, ttl: ttl}
}

func claimKey(draftID string) string {
	return "webhook:claim:draft:" + draftID
}

func (s *RedisClaimStore) TryClaim(ctx context.Context, draftID string) (bool, error) {
	return s.rdb.SetNX(ctx, claimKey(draftID), "1", s.ttl).Result()
}

func (s *RedisClaimStore) Release(ctx context.Context, draftID string) error {
	return s.rdb.Del(ctx, claimKey(draftID)).Err()
}

var _ usecase.ClaimStore = (*RedisClaimStore)(nil)
