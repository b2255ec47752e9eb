package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"logiflow/internal/config"
	"logiflow/internal/constants"
	pkgerrors "logiflow/pkg/errors"
)

// LatestCache holds the most recent location per courier so the hot
// "where is my courier" query skips MongoDB.
type LatestCache interface {
	SetLatest(ctx context.Context, loc *Location) error
	GetLatest(ctx context.Context, courierID int64) (*Location, error)
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, cfg config.RedisConfig) *RedisCache {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(courierID int64) string {
	return fmt.Sprintf("%s%d", constants.CacheKeyPrefixLocation, courierID)
}

func (c *RedisCache) SetLatest(ctx context.Context, loc *Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(loc.CourierID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) GetLatest(ctx context.Context, courierID int64) (*Location, error) {
	data, err := c.client.Get(ctx, cacheKey(courierID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, pkgerrors.ErrNotFound.WithDetail("courier_id", courierID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var loc Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached location: %w", err)
	}
	return &loc, nil
}
