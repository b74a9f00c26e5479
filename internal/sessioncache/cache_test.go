package sessioncache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

func (s *snapshot) CacheVersion() int64 { return s.Version }

type cache interface {
	Get(ctx context.Context, id string) (*snapshot, bool, error)
	Set(ctx context.Context, id string, v *snapshot) error
}

func newRedisCache(t *testing.T) (*Redis[*snapshot], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedis[*snapshot](client, time.Hour)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCaches(t *testing.T) {
	rc, _ := newRedisCache(t)
	caches := map[string]cache{
		"lru":   NewLRU[*snapshot](10, time.Hour),
		"redis": rc,
	}
	for name, c := range caches {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := c.Get(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "s1", &snapshot{ID: "s1", Version: 2}))
			got, ok, err := c.Get(ctx, "s1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(2), got.Version)

			// older versions never replace newer ones
			require.NoError(t, c.Set(ctx, "s1", &snapshot{ID: "s1", Version: 1}))
			got, _, _ = c.Get(ctx, "s1")
			assert.Equal(t, int64(2), got.Version)

			// equal or newer versions do
			require.NoError(t, c.Set(ctx, "s1", &snapshot{ID: "s1", Version: 3}))
			got, _, _ = c.Get(ctx, "s1")
			assert.Equal(t, int64(3), got.Version)
		})
	}
}

func TestLRU_EvictsBySize(t *testing.T) {
	ctx := context.Background()
	c := NewLRU[*snapshot](2, time.Hour)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, id, &snapshot{ID: id}))
	}
	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestLRU_EvictsByAge(t *testing.T) {
	ctx := context.Background()
	c := NewLRU[*snapshot](10, 20*time.Millisecond)
	require.NoError(t, c.Set(ctx, "a", &snapshot{ID: "a"}))

	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestLRU_Defaults(t *testing.T) {
	c := NewLRU[string](0, 0)
	require.NoError(t, c.Set(context.Background(), "k", "v"))
	v, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestRedis_TTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	require.NoError(t, c.Set(ctx, "s1", &snapshot{ID: "s1"}))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"s1"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_CorruptEntry(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, mr.Set(keyPrefix+"bad", "{not json"))

	_, ok, err := c.Get(context.Background(), "bad")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNoop(t *testing.T) {
	var c Noop[*snapshot]
	require.NoError(t, c.Set(context.Background(), "s1", &snapshot{}))
	v, ok, err := c.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestRedisPing(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
