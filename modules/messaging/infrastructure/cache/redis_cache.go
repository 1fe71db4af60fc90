package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/talkbase/talkbase/modules/messaging/domain/entities/responsecache"
)

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	result, err := c.client.Get(ctx, c.prefixed(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", responsecache.ErrKeyNotFound
		}
		return "", errors.Wrap(err, "failed to read cached response")
	}
	return result, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value string) error {
	if err := c.client.Set(ctx, c.prefixed(key), value, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to cache response")
	}
	return nil
}

func (c *RedisCache) prefixed(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}
