package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const activityTTL = 24 * time.Hour

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func slugKey(slug string) string     { return "endpoint:" + slug }
func activityKey(slug string) string { return "endpoint:" + slug + ":requests" }

func (c *RedisCache) RegisterSlug(ctx context.Context, slug, endpointID string, ttl time.Duration) error {
	return c.client.Set(ctx, slugKey(slug), endpointID, ttl).Err()
}

func (c *RedisCache) LookupSlug(ctx context.Context, slug string) (string, error) {
	id, err := c.client.Get(ctx, slugKey(slug)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (c *RedisCache) EvictSlug(ctx context.Context, slug string) error {
	return c.client.Del(ctx, slugKey(slug), activityKey(slug)).Err()
}

func (c *RedisCache) BumpActivity(ctx context.Context, slug string) error {
	pipe := c.client.Pipeline()
	pipe.Incr(ctx, activityKey(slug))
	pipe.Expire(ctx, activityKey(slug), activityTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
