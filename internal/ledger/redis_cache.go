package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLs maps a namespace to how long its keys live in Redis. Namespaces not
// listed use Default.
type TTLs struct {
	Default     time.Duration
	ByNamespace map[string]time.Duration
}

func (t TTLs) For(namespace string) time.Duration {
	if ttl, ok := t.ByNamespace[namespace]; ok && ttl > 0 {
		return ttl
	}
	if t.Default > 0 {
		return t.Default
	}
	return 6 * time.Hour
}

// DefaultTTLs keeps notification keys for hours and message keys for days.
func DefaultTTLs(notified, message time.Duration) TTLs {
	return TTLs{
		Default: notified,
		ByNamespace: map[string]time.Duration{
			ProcessedMessage: message,
			PendingDraft:     message,
			MeetingDraft:     message,
			WorkflowStep:     message,
		},
	}
}

// RedisCache implements FastCache using Redis
type RedisCache struct {
	client *redis.Client
	prefix string
	ttls   TTLs
}

func NewRedisCache(redisURL string, ttls TTLs) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttls), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttls TTLs) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "clientflow:ledger:",
		ttls:   ttls,
	}
}

func (c *RedisCache) key(key Key) string {
	return c.prefix + key.Namespace + ":" + key.ExternalID
}

func (c *RedisCache) Seen(ctx context.Context, key Key) (bool, error) {
	err := c.client.Get(ctx, c.key(key)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	return true, nil
}

func (c *RedisCache) Remember(ctx context.Context, key Key) error {
	if err := c.client.Set(ctx, c.key(key), time.Now().UTC().Format(time.RFC3339), c.ttls.For(key.Namespace)).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
