package orders

import (
	"context"

	"logiflow/internal/bus"
	"logiflow/internal/logger"
	"logiflow/pkg/metrics"
	"logiflow/pkg/models"
)

// Producer publishes order lifecycle events. Publish failures are logged
// and swallowed: the order write has already committed and is the source
// of truth, the event stream is best-effort.
type Producer struct {
	publisher bus.Publisher
	logger    logger.Logger
}

func NewProducer(publisher bus.Publisher, log logger.Logger) *Producer {
	return &Producer{publisher: publisher, logger: log}
}

func (p *Producer) OrderCreated(ctx context.Context, order *Order) {
	p.publish(ctx, models.EventOrderCreated, order)
}

func (p *Producer) OrderUpdated(ctx context.Context, order *Order) {
	p.publish(ctx, models.EventOrderUpdated, order)
}

func (p *Producer) publish(ctx context.Context, eventType string, order *Order) {
	env, err := models.NewOrderEvent(eventType, models.OrderPayload{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		State:      order.State,
		Address:    order.Address,
		Fare:       order.Fare,
	}, order.CourierID)
	if err != nil {
		metrics.OrderEventsTotal.WithLabelValues(eventType, "error").Inc()
		p.logger.ErrorwCtx(ctx, "Failed to build order event",
			"error", err,
			"event_type", eventType,
			"order_id", order.ID,
		)
		return
	}

	if err := p.publisher.Publish(ctx, bus.TopicOrders, eventType, env); err != nil {
		metrics.OrderEventsTotal.WithLabelValues(eventType, "error").Inc()
		p.logger.ErrorwCtx(ctx, "Failed to publish order event",
			"error", err,
			"event_type", eventType,
			"event_id", env.EventID,
			"order_id", order.ID,
		)
		return
	}

	metrics.OrderEventsTotal.WithLabelValues(eventType, "ok").Inc()
	p.logger.InfowCtx(ctx, "Published order event",
		"event_type", eventType,
		"event_id", env.EventID,
		"order_id", order.ID,
		"state", order.State,
	)
}
