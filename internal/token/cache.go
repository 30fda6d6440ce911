package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rotationKeyPrefix = "mps:refresh:"

// RotationCache remembers the pair issued for a just-consumed refresh
// token so that a late or concurrent request on any instance can reuse
// it instead of presenting a single-use token twice.
type RotationCache interface {
	Lookup(ctx context.Context, fingerprint string) (Pair, bool, error)
	Remember(ctx context.Context, fingerprint string, pair Pair, ttl time.Duration) error
}

type RedisRotationCache struct {
	client redis.UniversalClient
}

func NewRedisRotationCache(client redis.UniversalClient) *RedisRotationCache {
	return &RedisRotationCache{client: client}
}

// NewRedisRotationCacheFromURL parses a redis:// URL and pings the server.
func NewRedisRotationCacheFromURL(ctx context.Context, rawURL string) (*RedisRotationCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisRotationCache{client: client}, nil
}

func (c *RedisRotationCache) Lookup(ctx context.Context, fingerprint string) (Pair, bool, error) {
	raw, err := c.client.Get(ctx, rotationKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return Pair{}, false, nil
	}
	if err != nil {
		return Pair{}, false, fmt.Errorf("lookup rotated pair: %w", err)
	}

	var pair Pair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return Pair{}, false, fmt.Errorf("decode rotated pair: %w", err)
	}
	if pair.AccessToken == "" {
		return Pair{}, false, nil
	}

	return pair, true, nil
}

func (c *RedisRotationCache) Remember(ctx context.Context, fingerprint string, pair Pair, ttl time.Duration) error {
	raw, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode rotated pair: %w", err)
	}

	// SET NX keeps the first winner if two instances race on one token.
	if err := c.client.SetNX(ctx, rotationKeyPrefix+fingerprint, raw, ttl).Err(); err != nil {
		return fmt.Errorf("remember rotated pair: %w", err)
	}
	return nil
}

func (c *RedisRotationCache) Close() error {
	return c.client.Close()
}

func (c *RedisRotationCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
