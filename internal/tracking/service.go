package tracking

import (
	"context"
	"fmt"
	"time"

	"logiflow/internal/constants"
	"logiflow/internal/logger"
	pkgerrors "logiflow/pkg/errors"
)

type Service interface {
	RecordLocation(ctx context.Context, req RecordLocationRequest) (*Location, error)
	GetLatest(ctx context.Context, courierID int64) (*Location, error)
	GetHistory(ctx context.Context, courierID int64, limit int) ([]Location, error)
	GetByOrder(ctx context.Context, orderID int64, limit int) ([]Location, error)
	GetActiveCouriers(ctx context.Context) ([]int64, error)
	GetByTimeRange(ctx context.Context, courierID int64, from, to time.Time) ([]Location, error)
}

type service struct {
	repo     Repository
	cache    LatestCache
	producer *Producer
	logger   logger.Logger
}

func NewService(repo Repository, cache LatestCache, producer *Producer, log logger.Logger) Service {
	return &service{repo: repo, cache: cache, producer: producer, logger: log}
}

// RecordLocation persists the report, refreshes the latest-location
// cache and emits a location event. Only the MongoDB write is load
// bearing; cache and publish failures degrade to logs.
func (s *service) RecordLocation(ctx context.Context, req RecordLocationRequest) (*Location, error) {
	if req.CourierID <= 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "courier_id must be positive")
	}
	if req.Lat < -90 || req.Lat > 90 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "lat must be between -90 and 90")
	}
	if req.Lng < -180 || req.Lng > 180 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "lng must be between -180 and 180")
	}

	state := req.State
	if state == "" {
		state = constants.CourierStateEnRoute
	}
	if !ValidCourierState(state) {
		return nil, pkgerrors.ErrValidation.WithDetail("message",
			fmt.Sprintf("unknown courier state: %s", state))
	}

	loc := &Location{
		CourierID:  req.CourierID,
		Lat:        req.Lat,
		Lng:        req.Lng,
		State:      state,
		OrderID:    req.OrderID,
		Speed:      req.Speed,
		Address:    req.Address,
		RecordedAt: time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, loc); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	if err := s.cache.SetLatest(ctx, loc); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to cache latest location",
			"error", err,
			"courier_id", loc.CourierID,
		)
	}

	s.producer.LocationUpdated(ctx, loc)
	return loc, nil
}

// GetLatest serves from the cache and falls back to MongoDB when the
// cache misses or is unavailable.
func (s *service) GetLatest(ctx context.Context, courierID int64) (*Location, error) {
	if courierID <= 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "courier_id must be positive")
	}

	loc, err := s.cache.GetLatest(ctx, courierID)
	if err == nil {
		return loc, nil
	}
	if !pkgerrors.IsNotFound(err) {
		s.logger.WarnwCtx(ctx, "Location cache unavailable, falling back to store",
			"error", err,
			"courier_id", courierID,
		)
	}

	return s.repo.Latest(ctx, courierID)
}

func (s *service) GetHistory(ctx context.Context, courierID int64, limit int) ([]Location, error) {
	if courierID <= 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "courier_id must be positive")
	}
	return s.repo.History(ctx, courierID, limit)
}

func (s *service) GetByOrder(ctx context.Context, orderID int64, limit int) ([]Location, error) {
	if orderID <= 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "order_id must be positive")
	}
	return s.repo.ByOrder(ctx, orderID, limit)
}

func (s *service) GetActiveCouriers(ctx context.Context) ([]int64, error) {
	since := time.Now().Add(-constants.ActiveCourierWindow)
	return s.repo.ActiveCouriers(ctx, since)
}

func (s *service) GetByTimeRange(ctx context.Context, courierID int64, from, to time.Time) ([]Location, error) {
	if courierID <= 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "courier_id must be positive")
	}
	if !to.After(from) {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "to must be after from")
	}
	return s.repo.ByTimeRange(ctx, courierID, from, to)
}
