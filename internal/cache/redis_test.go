package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("TRIPENGINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRIPENGINE_TEST_REDIS_ADDR not set; skipping redis-backed cache tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ns := "tripengine:test:" + t.Name() + ":"
	store := NewRedisStore(client, ns)
	_, err := store.DeletePrefix(context.Background(), "")
	require.NoError(t, err)
	return store
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	it := Item{Data: []byte(`["t1"]`), FetchedAt: now, ExpiresAt: now.Add(time.Second)}
	require.NoError(t, store.Set(ctx, "available:taxi:w1", it, time.Minute))
	require.NoError(t, store.Set(ctx, "available:taxi:w10", it, time.Minute))
	require.NoError(t, store.Set(ctx, "stats:w1", it, time.Minute))

	got, ok, err := store.Get(ctx, "available:taxi:w1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, it.Data, got.Data)
	assert.True(t, it.FetchedAt.Equal(got.FetchedAt))

	require.NoError(t, store.Delete(ctx, "available:taxi:w1"))
	_, ok, err = store.Get(ctx, "available:taxi:w1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.DeletePrefix(ctx, "available:")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err = store.Get(ctx, "stats:w1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
}
