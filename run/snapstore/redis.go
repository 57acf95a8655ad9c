package snapstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type (
	// Redis stores snapshot payloads in Redis so paused runs survive process
	// restarts and can resume on another host.
	Redis struct {
		client redis.UniversalClient
		prefix string
		ttl    time.Duration
	}

	// RedisOption configures a Redis store.
	RedisOption func(*Redis)
)

// WithKeyPrefix namespaces all keys with the given prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithTTL expires stored payloads after d. Zero means no expiry.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

// NewRedis returns a Store backed by the given Redis client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: "grail:snapshot:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save stores the payload under key, applying the configured TTL.
func (r *Redis) Save(ctx context.Context, key string, payload []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot %q: %w", key, err)
	}
	return nil
}

// Load returns the payload stored under key.
func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	payload, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", key, err)
	}
	return payload, nil
}

// Delete removes the payload stored under key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.prefix+key).Result()
	if err != nil {
		return fmt.Errorf("delete snapshot %q: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)
