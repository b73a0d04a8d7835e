package friendship

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const previewKeyPrefix = "conversation:preview:"

// RedisPreviewCache invalidates cached conversation previews. The durable
// preview rows are deleted inside the engine transaction; this drops the
// cached copy after commit.
type RedisPreviewCache struct {
	client *redis.Client
}

// NewRedisPreviewCache creates a Redis-backed preview invalidator.
// A nil client disables invalidation.
func NewRedisPreviewCache(client *redis.Client) *RedisPreviewCache {
	return &RedisPreviewCache{client: client}
}

func (c *RedisPreviewCache) InvalidatePair(ctx context.Context, pair Pair) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := fmt.Sprintf("%s%s:%s", previewKeyPrefix, pair.Low, pair.High)
	return c.client.Del(ctx, key).Err()
}
