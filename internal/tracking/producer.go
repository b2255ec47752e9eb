package tracking

import (
	"context"

	"logiflow/internal/bus"
	"logiflow/internal/logger"
	"logiflow/pkg/metrics"
	"logiflow/pkg/models"
)

// Producer publishes location events. The persisted record is the source
// of truth; publish failures are logged and swallowed.
type Producer struct {
	publisher bus.Publisher
	logger    logger.Logger
}

func NewProducer(publisher bus.Publisher, log logger.Logger) *Producer {
	return &Producer{publisher: publisher, logger: log}
}

func (p *Producer) LocationUpdated(ctx context.Context, loc *Location) {
	env, err := models.NewLocationEvent(models.LocationPayload{
		CourierID: loc.CourierID,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		State:     loc.State,
		OrderID:   loc.OrderID,
		Speed:     loc.Speed,
		Address:   loc.Address,
	})
	if err != nil {
		metrics.LocationEventsTotal.WithLabelValues("error").Inc()
		p.logger.ErrorwCtx(ctx, "Failed to build location event",
			"error", err,
			"courier_id", loc.CourierID,
		)
		return
	}

	if err := p.publisher.Publish(ctx, bus.TopicTracking, models.EventLocationUpdated, env); err != nil {
		metrics.LocationEventsTotal.WithLabelValues("error").Inc()
		p.logger.ErrorwCtx(ctx, "Failed to publish location event",
			"error", err,
			"event_id", env.EventID,
			"courier_id", loc.CourierID,
		)
		return
	}

	metrics.LocationEventsTotal.WithLabelValues("ok").Inc()
	p.logger.DebugwCtx(ctx, "Published location event",
		"event_id", env.EventID,
		"courier_id", loc.CourierID,
		"state", loc.State,
	)
}
