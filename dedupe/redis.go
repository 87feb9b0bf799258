package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for seen message ids
	keyPrefix = "wa:seen:"
	// Default TTL for seen keys (24 hours)
	defaultTTL = 24 * time.Hour
)

// Redis shares the seen set between replicas behind the same webhook URL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed deduper.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{
		client: client,
		ttl:    ttl,
	}
}

// NewRedisFromURL parses a redis:// URL and creates a deduper over it.
func NewRedisFromURL(url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), ttl), nil
}

// Seen implements Deduper using SET NX so concurrent replicas agree on a
// single winner.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	created, err := r.client.SetNX(ctx, r.key(key), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking %s: %w", key, err)
	}
	return !created, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Deduper.
func (r *Redis) Close() error {
	return r.client.Close()
}

// key constructs the Redis key for a message id.
func (r *Redis) key(id string) string {
	return keyPrefix + id
}

// Compile-time checks.
var (
	_ Deduper = (*Memory)(nil)
	_ Deduper = (*Redis)(nil)
)
