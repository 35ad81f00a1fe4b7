//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedisContainer(t *testing.T) *Redis {
	t.Helper()
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Type = "redis"
	cfg.URL = connStr
	cfg.DefaultTTL = time.Minute
	cfg.Prefix = "alhs-test"

	cache, err := NewRedis(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		cache.Close()
		container.Terminate(ctx)
	})
	return cache
}

func TestRedisIntegrationRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	ctx := context.Background()

	key := Key("dispense(pumpA, 5mL)", "1", "fp")
	require.NoError(t, cache.Set(ctx, key, []byte(`{"commands":3}`), 0))

	data, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"commands":3}`), data)

	ok, err := cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cache.Delete(ctx, key))
	_, err = cache.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisIntegrationTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "ephemeral", []byte("v"), time.Second))

	_, err := cache.Get(ctx, "ephemeral")
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)
	_, err = cache.Get(ctx, "ephemeral")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisIntegrationPurge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, cache.Purge(ctx))

	_, err := cache.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = cache.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisIntegrationHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	assert.NoError(t, cache.Health(context.Background()))
}
