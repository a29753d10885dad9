package authz

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DecisionCache stores definitive remote decisions for a short time.
// Implementations must treat every failure as a miss.
type DecisionCache interface {
	Get(ctx context.Context, key string) (allowed bool, ok bool)
	Set(ctx context.Context, key string, allowed bool)
}

// RedisCache is a DecisionCache backed by Redis.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger Logger
}

// NewRedisCache creates a RedisCache that keeps decisions for ttl.
func NewRedisCache(client redis.Cmdable, ttl time.Duration, logger Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (bool, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false
	}
	if err != nil {
		c.logger.Debug("decision cache read failed", "key", key, "error", err)
		return false, false
	}
	switch val {
	case "1":
		return true, true
	case "0":
		return false, true
	}
	return false, false
}

func (c *RedisCache) Set(ctx context.Context, key string, allowed bool) {
	val := "0"
	if allowed {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Debug("decision cache write failed", "key", key, "error", err)
	}
}
