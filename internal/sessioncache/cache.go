// Package sessioncache holds session snapshots used when the primary store
// cannot be read or written. Every cache evicts on its own: by size and age
// in process, by TTL in redis.
package sessioncache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 10_000
	DefaultTTL  = 24 * time.Hour
)

// Versioned values carry a monotonically increasing version. Caches that
// understand it never replace a newer value with an older one.
type Versioned interface {
	CacheVersion() int64
}

// LRU is an in-process cache bounded by size and entry age.
type LRU[V any] struct {
	entries *expirable.LRU[string, V]
}

func NewLRU[V any](size int, ttl time.Duration) *LRU[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU[V]{entries: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (c *LRU[V]) Get(_ context.Context, id string) (V, bool, error) {
	v, ok := c.entries.Get(id)
	return v, ok, nil
}

func (c *LRU[V]) Set(_ context.Context, id string, v V) error {
	if old, ok := c.entries.Peek(id); ok && isOlder(v, old) {
		return nil
	}
	c.entries.Add(id, v)
	return nil
}

func (c *LRU[V]) Len() int { return c.entries.Len() }

// Noop never stores anything.
type Noop[V any] struct{}

func (Noop[V]) Get(context.Context, string) (V, bool, error) {
	var zero V
	return zero, false, nil
}

func (Noop[V]) Set(context.Context, string, V) error { return nil }

// isOlder reports whether next carries a lower version than current.
func isOlder[V any](next, current V) bool {
	n, ok1 := any(next).(Versioned)
	c, ok2 := any(current).(Versioned)
	return ok1 && ok2 && n.CacheVersion() < c.CacheVersion()
}
