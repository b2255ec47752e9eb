package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"logiflow/internal/config"
	"logiflow/internal/constants"
	"logiflow/internal/logger"
	"logiflow/pkg/errors"
	"logiflow/pkg/metrics"
	"logiflow/pkg/models"
	"logiflow/pkg/tracing"
)

const routingKeyHeader = "routing-key"

// KafkaBus emulates topic-exchange semantics on Kafka: a bus topic is a
// Kafka topic, the routing key travels in a message header, and binding
// patterns are applied consumer-side since Kafka has no broker-side
// routing-key matching. Each queue maps to a consumer group.
type KafkaBus struct {
	writer *kafka.Writer
	cfg    config.KafkaConfig
	logger logger.Logger

	mu       sync.RWMutex
	bindings []Binding
	wg       sync.WaitGroup
	readers  []*kafka.Reader
}

func NewKafkaBus(cfg config.KafkaConfig, log logger.Logger) *KafkaBus {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaBus{writer: w, cfg: cfg, logger: log}
}

// DeclareTopology records bindings for consumer-side pattern filtering.
// Topics are auto-created on first write; re-declaring is a no-op.
func (b *KafkaBus) DeclareTopology(ctx context.Context, bindings []Binding) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, binding := range bindings {
		exists := false
		for _, existing := range b.bindings {
			if existing == binding {
				exists = true
				break
			}
		}
		if !exists {
			b.bindings = append(b.bindings, binding)
		}
	}
	return nil
}

func (b *KafkaBus) bindingsForQueue(queue string) []Binding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Binding
	for _, binding := range b.bindings {
		if binding.Queue == queue {
			out = append(out, binding)
		}
	}
	return out
}

func (b *KafkaBus) Publish(ctx context.Context, topic, routingKey string, env models.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	headers := []kafka.Header{{Key: routingKeyHeader, Value: []byte(routingKey)}}
	for k, v := range tracing.InjectTraceHeaders(ctx) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err = b.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(env.EventID),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		metrics.BusPublishedTotal.WithLabelValues(topic, routingKey, "error").Inc()
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.BusPublishedTotal.WithLabelValues(topic, routingKey, "ok").Inc()
	return nil
}

func (b *KafkaBus) Subscribe(ctx context.Context, queue string, handler HandlerFunc) error {
	bindings := b.bindingsForQueue(queue)
	if len(bindings) == 0 {
		return fmt.Errorf("queue %s has no declared bindings", queue)
	}

	for _, binding := range bindings {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  b.cfg.Brokers,
			GroupID:  queue,
			Topic:    binding.Topic,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		})

		b.mu.Lock()
		b.readers = append(b.readers, reader)
		b.mu.Unlock()

		b.wg.Add(1)
		go b.consume(ctx, reader, binding, handler)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (b *KafkaBus) consume(ctx context.Context, reader *kafka.Reader, binding Binding, handler HandlerFunc) {
	defer b.wg.Done()
	b.logger.Infow("Started consuming",
		"queue", binding.Queue,
		"topic", binding.Topic,
		"pattern", binding.Pattern,
	)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Errorw("Error fetching kafka message",
				"error", err,
				"queue", binding.Queue,
			)
			time.Sleep(time.Second)
			continue
		}

		b.handleMessage(ctx, binding, m, handler)
		_ = reader.CommitMessages(ctx, m)
	}
}

func (b *KafkaBus) handleMessage(ctx context.Context, binding Binding, m kafka.Message, handler HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BusConsumedTotal.WithLabelValues(binding.Queue, "panic").Inc()
			b.logger.Errorw("Panic in queue handler",
				"error", errors.RecoverPanic(r),
				"queue", binding.Queue,
			)
		}
	}()

	routingKey := ""
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
		if h.Key == routingKeyHeader {
			routingKey = string(h.Value)
		}
	}

	if !MatchTopic(binding.Pattern, routingKey) {
		metrics.BusConsumedTotal.WithLabelValues(binding.Queue, "filtered").Inc()
		return
	}

	var env models.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		metrics.BusConsumedTotal.WithLabelValues(binding.Queue, "malformed").Inc()
		b.logger.Errorw("Failed to unmarshal envelope",
			"error", err,
			"queue", binding.Queue,
		)
		return
	}

	msgCtx := tracing.ExtractTraceHeaders(ctx, headers)
	if err := handler(msgCtx, env); err != nil {
		metrics.BusConsumedTotal.WithLabelValues(binding.Queue, "error").Inc()
		b.logger.Errorw("Handler failed, message acknowledged",
			"error", err,
			"queue", binding.Queue,
			"event_id", env.EventID,
		)
		return
	}
	metrics.BusConsumedTotal.WithLabelValues(binding.Queue, "ok").Inc()
}

func (b *KafkaBus) Close() error {
	err := b.writer.Close()

	b.mu.Lock()
	readers := b.readers
	b.readers = nil
	b.mu.Unlock()

	for _, r := range readers {
		if closeErr := r.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	b.wg.Wait()
	return err
}
