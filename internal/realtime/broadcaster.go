package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"logiflow/internal/logger"
	"logiflow/pkg/metrics"
	"logiflow/pkg/models"
)

// ChannelMessage is the wire format pushed to WebSocket subscribers.
type ChannelMessage struct {
	Channel   string          `json:"channel"`
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Broadcaster maps bus events onto realtime channels. Each destination
// channel is handled independently so one bad fan-out leg cannot starve
// the others.
type Broadcaster struct {
	hub    *Hub
	logger logger.Logger
}

func NewBroadcaster(hub *Hub, log logger.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, logger: log}
}

// HandleOrderCreated fans out to the firehose, the per-order channel and
// the per-customer channel.
func (b *Broadcaster) HandleOrderCreated(ctx context.Context, env models.Envelope) error {
	payload, err := env.OrderPayload()
	if err != nil {
		return fmt.Errorf("invalid order payload: %w", err)
	}

	b.fanOut(ctx, env,
		"topic/orders",
		fmt.Sprintf("topic/order/%d", payload.OrderID),
		fmt.Sprintf("topic/customer/%d", payload.CustomerID),
	)
	return nil
}

// HandleOrderUpdated fans out to the updates firehose plus the same
// per-order and per-customer channels.
func (b *Broadcaster) HandleOrderUpdated(ctx context.Context, env models.Envelope) error {
	payload, err := env.OrderPayload()
	if err != nil {
		return fmt.Errorf("invalid order payload: %w", err)
	}

	b.fanOut(ctx, env,
		"topic/orders/updates",
		fmt.Sprintf("topic/order/%d", payload.OrderID),
		fmt.Sprintf("topic/customer/%d", payload.CustomerID),
	)
	return nil
}

// HandleLocationUpdated fans out to the location firehose and the
// per-courier channel, plus the per-order location channel when the
// report is tied to an order.
func (b *Broadcaster) HandleLocationUpdated(ctx context.Context, env models.Envelope) error {
	payload, err := env.LocationPayload()
	if err != nil {
		return fmt.Errorf("invalid location payload: %w", err)
	}

	channels := []string{
		"topic/locations",
		fmt.Sprintf("topic/courier/%d", payload.CourierID),
	}
	if payload.OrderID != nil {
		channels = append(channels, fmt.Sprintf("topic/order/%d/location", *payload.OrderID))
	}

	b.fanOut(ctx, env, channels...)
	return nil
}

func (b *Broadcaster) fanOut(ctx context.Context, env models.Envelope, channels ...string) {
	for _, channel := range channels {
		msg := ChannelMessage{
			Channel:   channel,
			EventID:   env.EventID,
			EventType: env.EventType,
			Payload:   env.Payload,
		}

		data, err := json.Marshal(msg)
		if err != nil {
			metrics.BroadcastDeliveriesTotal.WithLabelValues(env.EventType, "error").Inc()
			b.logger.ErrorwCtx(ctx, "Failed to marshal channel message",
				"error", err,
				"channel", channel,
				"event_id", env.EventID,
			)
			continue
		}

		delivered := b.hub.Broadcast(channel, data)
		metrics.BroadcastDeliveriesTotal.WithLabelValues(env.EventType, "ok").Add(float64(delivered))
		b.logger.DebugwCtx(ctx, "Broadcast event",
			"channel", channel,
			"event_id", env.EventID,
			"subscribers", delivered,
		)
	}
}
