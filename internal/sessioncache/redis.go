package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "triage:session:"
	maxWatchAttempts = 3
)

// Redis stores JSON snapshots with a TTL that is refreshed on every read.
type Redis[V any] struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis[V any](client *redis.Client, ttl time.Duration) *Redis[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis[V]{client: client, ttl: ttl}
}

func (c *Redis[V]) Get(ctx context.Context, id string) (V, bool, error) {
	var v V
	key := keyPrefix + id
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode cached session %s: %w", id, err)
	}
	// TTL refresh is best-effort
	_ = c.client.Expire(ctx, key, c.ttl).Err()
	return v, true, nil
}

// Set writes v under WATCH so a concurrent writer holding a newer version
// is never overwritten.
func (c *Redis[V]) Set(ctx context.Context, id string, v V) error {
	key := keyPrefix + id
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}

	txf := func(tx *redis.Tx) error {
		if _, ok := any(v).(Versioned); ok {
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				var stored V
				if err := json.Unmarshal(raw, &stored); err == nil && isOlder(v, stored) {
					return nil
				}
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, c.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchAttempts; i++ {
		err = c.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks that the server is reachable.
func (c *Redis[V]) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Redis[V]) Close() error { return c.client.Close() }
