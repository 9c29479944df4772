package cache_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/scot00671234/Files-Network-Visualizer/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c := cache.NewMemoryCache(16, time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx, "graph:full")
	assert.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, c.Set(ctx, "graph:full", []byte(`{"nodes":[]}`), 0))
	val, err := c.Get(ctx, "graph:full")
	require.NoError(t, err)
	assert.Equal(t, `{"nodes":[]}`, string(val))

	require.NoError(t, c.Delete(ctx, "graph:full"))
	_, err = c.Get(ctx, "graph:full")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestMemoryCache_DeletePrefix(t *testing.T) {
	c := cache.NewMemoryCache(16, time.Minute)
	ctx := context.Background()

	for _, key := range []string{"graph:full", "graph:node:1", "graph:node:2", "other"} {
		require.NoError(t, c.Set(ctx, key, []byte("x"), 0))
	}

	require.NoError(t, c.DeletePrefix(ctx, "graph:"))
	assert.Equal(t, 1, c.Len())

	_, err := c.Get(ctx, "other")
	assert.NoError(t, err)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := cache.NewMemoryCache(16, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.Eventually(t, func() bool {
		_, err := c.Get(ctx, "k")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCache_Eviction(t *testing.T) {
	c := cache.NewMemoryCache(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, cache.ErrMiss)
	assert.Equal(t, 2, c.Len())
}

func TestNew(t *testing.T) {
	c, err := cache.New(cache.Options{Type: "memory", Size: 8, TTL: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryCache{}, c)

	_, err = cache.New(cache.Options{Type: "memcached"})
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	host := os.Getenv("NETGRAPH_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("NETGRAPH_TEST_REDIS_HOST not set")
	}
	port := 6379
	if p, err := strconv.Atoi(os.Getenv("NETGRAPH_TEST_REDIS_PORT")); err == nil {
		port = p
	}

	c, err := cache.NewRedisCache(host, port, time.Minute)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "netgraph-test:graph:full", []byte("payload"), 0))
	val, err := c.Get(ctx, "netgraph-test:graph:full")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(val))

	require.NoError(t, c.DeletePrefix(ctx, "netgraph-test:"))
	_, err = c.Get(ctx, "netgraph-test:graph:full")
	assert.ErrorIs(t, err, cache.ErrMiss)
}
