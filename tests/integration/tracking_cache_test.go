package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiflow/internal/config"
	"logiflow/internal/tracking"
	pkgerrors "logiflow/pkg/errors"
)

func TestRedisCache_SetAndGetLatest(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	cache := tracking.NewRedisCache(infra.RedisClient, config.RedisConfig{TTLSeconds: 60})
	ctx := context.Background()

	loc := createTestLocation(7, time.Now().UTC().Truncate(time.Millisecond))
	loc.OrderID = int64Ptr(42)
	require.NoError(t, cache.SetLatest(ctx, loc))

	got, err := cache.GetLatest(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, loc.CourierID, got.CourierID)
	assert.Equal(t, loc.Lat, got.Lat)
	assert.Equal(t, loc.Lng, got.Lng)
	require.NotNil(t, got.OrderID)
	assert.Equal(t, int64(42), *got.OrderID)
}

func TestRedisCache_MissIsNotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	cache := tracking.NewRedisCache(infra.RedisClient, config.RedisConfig{TTLSeconds: 60})

	_, err := cache.GetLatest(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRedisCache_OverwriteKeepsLatest(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	cache := tracking.NewRedisCache(infra.RedisClient, config.RedisConfig{TTLSeconds: 60})
	ctx := context.Background()

	first := createTestLocation(7, time.Now())
	require.NoError(t, cache.SetLatest(ctx, first))

	second := createTestLocation(7, time.Now())
	second.Lat = 48.137
	require.NoError(t, cache.SetLatest(ctx, second))

	got, err := cache.GetLatest(ctx, 7)
	require.NoError(t, err)
	assert.InDelta(t, 48.137, got.Lat, 0.001)
}

func TestCircuitBreakerCache_PassThrough(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	base := tracking.NewRedisCache(infra.RedisClient, config.RedisConfig{TTLSeconds: 60})
	cache := tracking.NewCircuitBreakerCache(base, config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Second,
		FailureRatio: 0.5,
		MinRequests:  3,
	})
	ctx := context.Background()

	loc := createTestLocation(9, time.Now())
	require.NoError(t, cache.SetLatest(ctx, loc))

	got, err := cache.GetLatest(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.CourierID)
}
