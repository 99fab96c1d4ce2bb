package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/config"
)

func failingConnect(context.Context, config.RedisConfig) (shared.IdempotencyStore, error) {
	return nil, errors.New("connection refused")
}

func TestIdempotencyStoreFactory_FallsBackToMemory(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := NewIdempotencyStoreFactory(config.RedisConfig{Host: "redis", Port: 6379}, WithLogger(zap.New(core)))
	f.connect = failingConnect

	store, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "redis:6379", logs.All()[0].ContextMap()["addr"])
}

func TestIdempotencyStoreFactory_FallbackDisabled(t *testing.T) {
	f := NewIdempotencyStoreFactory(config.RedisConfig{Host: "redis", Port: 6379}, WithInMemoryFallback(false))
	f.connect = failingConnect

	_, err := f.CreateStore(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestIdempotencyStoreFactory_UsesRedis(t *testing.T) {
	mem := NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = mem.Close() })

	f := NewIdempotencyStoreFactory(config.RedisConfig{Host: "redis", Port: 6379})
	f.connect = func(context.Context, config.RedisConfig) (shared.IdempotencyStore, error) { return mem, nil }

	store, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	assert.Same(t, mem, store)
}

func TestNewRedisIdempotencyStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRedisIdempotencyStore(ctx, config.RedisConfig{Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}

func TestRedisIdempotencyStore_DefaultPrefix(t *testing.T) {
	s := NewRedisIdempotencyStoreWithClient(nil, "")
	assert.Equal(t, DefaultKeyPrefix, s.keyPrefix)
}
