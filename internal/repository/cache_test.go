package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheStoreRoundTrip(t *testing.T) {
	store := NewMemoryCacheStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "rates")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "rates", []byte(`{"EUR":1.1}`), 0))
	got, found, err := store.Get(ctx, "rates")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`{"EUR":1.1}`), got)
}

func TestMemoryCacheStoreExpires(t *testing.T) {
	store := NewMemoryCacheStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "short", []byte("v"), 20*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	_, found, err := store.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found)
}

func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("EXTGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EXTGATE_TEST_REDIS_ADDR not set")
	}
	return addr
}

func TestRedisCacheStoreRoundTrip(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: redisAddr(t)})
	defer client.Close()
	ctx := context.Background()

	prefix := "extgate:test:" + time.Now().Format("150405.000000") + ":"
	store := NewRedisCacheStore(client, prefix, time.Minute)

	_, found, err := store.Get(ctx, "rates")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "rates", []byte("v1"), 0))
	got, found, err := store.Get(ctx, "rates")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v1"), got)

	ttl, err := client.TTL(ctx, prefix+"rates").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	client.Del(ctx, prefix+"rates")
}

func TestRedisCacheStoreErrorSurfaces(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	store := NewRedisCacheStore(client, "x:", 0)

	_, found, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, found)
}
