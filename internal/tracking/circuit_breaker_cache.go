package tracking

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"logiflow/internal/config"
	"logiflow/pkg/circuitbreaker"
)

// CircuitBreakerCache shields the service from a misbehaving Redis. When
// the breaker is open, callers fall back to MongoDB.
type CircuitBreakerCache struct {
	cache LatestCache
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerCache(cache LatestCache, cfg config.CircuitBreakerConfig) *CircuitBreakerCache {
	if !cfg.Enabled {
		return &CircuitBreakerCache{cache: cache, cb: nil}
	}

	cbConfig := circuitbreaker.DefaultConfig("redis-location-cache")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerCache{
		cache: cache,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (c *CircuitBreakerCache) SetLatest(ctx context.Context, loc *Location) error {
	if c.cb == nil {
		return c.cache.SetLatest(ctx, loc)
	}

	_, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, c.cache.SetLatest(ctx, loc)
	})

	c.cb.RecordRequest(err == nil)

	if err != nil && c.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for redis-location-cache: %w", err)
	}
	return err
}

func (c *CircuitBreakerCache) GetLatest(ctx context.Context, courierID int64) (*Location, error) {
	if c.cb == nil {
		return c.cache.GetLatest(ctx, courierID)
	}

	result, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return c.cache.GetLatest(ctx, courierID)
	})

	c.cb.RecordRequest(err == nil)

	if err != nil {
		if c.cb.IsOpen() {
			return nil, fmt.Errorf("circuit breaker is open for redis-location-cache: %w", err)
		}
		return nil, err
	}

	loc, ok := result.(*Location)
	if !ok {
		return nil, fmt.Errorf("cache returned invalid result type")
	}
	return loc, nil
}

func (c *CircuitBreakerCache) State() string {
	if c.cb == nil {
		return "disabled"
	}
	return c.cb.State().String()
}
