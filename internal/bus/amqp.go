package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"logiflow/internal/config"
	"logiflow/internal/logger"
	"logiflow/pkg/errors"
	"logiflow/pkg/metrics"
	"logiflow/pkg/models"
	"logiflow/pkg/retry"
	"logiflow/pkg/tracing"
)

// AMQPBus is the production bus: topic exchanges, durable queues and
// pattern bindings are delegated to the broker. Publishing borrows a channel
// from a small pool; each subscription runs on its own channel.
type AMQPBus struct {
	conn        *amqp.Connection
	channelPool chan *amqp.Channel
	cfg         config.RabbitMQConfig
	logger      logger.Logger
}

func NewAMQPBus(cfg config.RabbitMQConfig, log logger.Logger) (*AMQPBus, error) {
	if cfg.ChannelPoolSize <= 0 {
		cfg.ChannelPoolSize = 4
	}

	var conn *amqp.Connection
	dial := func() error {
		var err error
		conn, err = amqp.Dial(cfg.URL)
		return err
	}
	if err := retry.Retry(context.Background(), retry.Policy{
		MaxAttempts:     cfg.ConnectAttempts,
		InitialInterval: time.Second,
		MaxInterval:     15 * time.Second,
		Multiplier:      2.0,
	}, dial); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	b := &AMQPBus{
		conn:        conn,
		channelPool: make(chan *amqp.Channel, cfg.ChannelPoolSize),
		cfg:         cfg,
		logger:      log,
	}

	for i := 0; i < cfg.ChannelPoolSize; i++ {
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to open channel: %w", err)
		}
		b.channelPool <- ch
	}

	notifyClose := make(chan *amqp.Error)
	conn.NotifyClose(notifyClose)
	go func() {
		for err := range notifyClose {
			log.Errorw("RabbitMQ connection closed", "error", err)
		}
	}()

	return b, nil
}

// Connection exposes the underlying AMQP connection for health checks.
func (b *AMQPBus) Connection() *amqp.Connection {
	return b.conn
}

func (b *AMQPBus) getChannel() (*amqp.Channel, error) {
	select {
	case ch := <-b.channelPool:
		return ch, nil
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("timed out waiting for a free channel")
	}
}

func (b *AMQPBus) releaseChannel(ch *amqp.Channel) {
	b.channelPool <- ch
}

// DeclareTopology is idempotent: exchange, queue and binding declarations
// are no-ops when they already exist.
func (b *AMQPBus) DeclareTopology(ctx context.Context, bindings []Binding) error {
	ch, err := b.getChannel()
	if err != nil {
		return err
	}
	defer b.releaseChannel(ch)

	for _, binding := range bindings {
		if err := ch.ExchangeDeclare(binding.Topic, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", binding.Topic, err)
		}
		if binding.Queue == "" {
			// Publishers declare their exchange without binding a queue.
			continue
		}
		if _, err := ch.QueueDeclare(binding.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", binding.Queue, err)
		}
		if err := ch.QueueBind(binding.Queue, binding.Pattern, binding.Topic, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", binding.Queue, binding.Topic, err)
		}
	}
	return nil
}

func (b *AMQPBus) Publish(ctx context.Context, topic, routingKey string, env models.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	headers := amqp.Table{}
	for k, v := range tracing.InjectTraceHeaders(ctx) {
		headers[k] = v
	}

	ch, err := b.getChannel()
	if err != nil {
		metrics.BusPublishedTotal.WithLabelValues(topic, routingKey, "error").Inc()
		return err
	}
	defer b.releaseChannel(ch)

	err = ch.Publish(topic, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   env.EventID,
		Timestamp:   env.PublishedAt,
		Body:        body,
		Headers:     headers,
	})
	if err != nil {
		metrics.BusPublishedTotal.WithLabelValues(topic, routingKey, "error").Inc()
		return fmt.Errorf("failed to publish to %s/%s: %w", topic, routingKey, err)
	}

	metrics.BusPublishedTotal.WithLabelValues(topic, routingKey, "ok").Inc()
	return nil
}

func (b *AMQPBus) Subscribe(ctx context.Context, queue string, handler HandlerFunc) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", queue, err)
	}

	b.logger.Infow("Started consuming", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			b.handleDelivery(ctx, queue, d, handler)
		}
	}
}

func (b *AMQPBus) handleDelivery(ctx context.Context, queue string, d amqp.Delivery, handler HandlerFunc) {
	// Ack no matter what happens below: at-least-once, but a poison message
	// never stalls the queue.
	defer func() {
		if r := recover(); r != nil {
			metrics.BusConsumedTotal.WithLabelValues(queue, "panic").Inc()
			b.logger.Errorw("Panic in queue handler",
				"error", errors.RecoverPanic(r),
				"queue", queue,
			)
		}
		if err := d.Ack(false); err != nil {
			b.logger.Errorw("Failed to ack delivery", "error", err, "queue", queue)
		}
	}()

	var env models.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		metrics.BusConsumedTotal.WithLabelValues(queue, "malformed").Inc()
		b.logger.Errorw("Failed to unmarshal envelope",
			"error", err,
			"queue", queue,
		)
		return
	}

	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	msgCtx := tracing.ExtractTraceHeaders(ctx, headers)

	if err := handler(msgCtx, env); err != nil {
		metrics.BusConsumedTotal.WithLabelValues(queue, "error").Inc()
		b.logger.Errorw("Handler failed, message acknowledged",
			"error", err,
			"queue", queue,
			"event_id", env.EventID,
		)
		return
	}
	metrics.BusConsumedTotal.WithLabelValues(queue, "ok").Inc()
}

func (b *AMQPBus) Close() error {
	close(b.channelPool)
	for ch := range b.channelPool {
		ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
