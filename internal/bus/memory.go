package bus

import (
	"context"
	"fmt"
	"sync"

	"logiflow/internal/logger"
	"logiflow/pkg/errors"
	"logiflow/pkg/metrics"
	"logiflow/pkg/models"
)

const memoryQueueDepth = 1024

// MemoryBus is an in-process bus used by tests and single-process runs. It
// implements the same topic/routing-key contract as the AMQP bus: publishing
// never blocks the producer, each queue dispatches on its own goroutine, and
// handler failures are logged and acknowledged.
type MemoryBus struct {
	logger logger.Logger

	mu       sync.RWMutex
	bindings []Binding
	queues   map[string]chan models.Envelope
	started  map[string]bool
	wg       sync.WaitGroup
	closed   bool
}

func NewMemoryBus(log logger.Logger) *MemoryBus {
	return &MemoryBus{
		logger:  log,
		queues:  make(map[string]chan models.Envelope),
		started: make(map[string]bool),
	}
}

func (b *MemoryBus) DeclareTopology(ctx context.Context, bindings []Binding) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, binding := range bindings {
		if binding.Queue == "" {
			// Exchange-only declaration from a publisher.
			continue
		}
		if _, ok := b.queues[binding.Queue]; !ok {
			b.queues[binding.Queue] = make(chan models.Envelope, memoryQueueDepth)
		}
		if b.hasBinding(binding) {
			continue
		}
		b.bindings = append(b.bindings, binding)
	}
	return nil
}

func (b *MemoryBus) hasBinding(binding Binding) bool {
	for _, existing := range b.bindings {
		if existing == binding {
			return true
		}
	}
	return false
}

func (b *MemoryBus) Publish(ctx context.Context, topic, routingKey string, env models.Envelope) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid envelope: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	for _, binding := range b.bindings {
		if binding.Topic != topic || !MatchTopic(binding.Pattern, routingKey) {
			continue
		}
		select {
		case b.queues[binding.Queue] <- env:
			metrics.BusPublishedTotal.WithLabelValues(topic, routingKey, "ok").Inc()
		default:
			// Producers never block on slow consumers.
			metrics.BusPublishedTotal.WithLabelValues(topic, routingKey, "dropped").Inc()
			b.logger.Warnw("Queue full, dropping delivery",
				"queue", binding.Queue,
				"routing_key", routingKey,
			)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, queue string, handler HandlerFunc) error {
	b.mu.Lock()
	deliveries, ok := b.queues[queue]
	if !ok {
		deliveries = make(chan models.Envelope, memoryQueueDepth)
		b.queues[queue] = deliveries
	}
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-deliveries:
				b.dispatch(ctx, queue, env, handler)
			}
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (b *MemoryBus) dispatch(ctx context.Context, queue string, env models.Envelope, handler HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BusConsumedTotal.WithLabelValues(queue, "panic").Inc()
			b.logger.Errorw("Panic in queue handler",
				"error", errors.RecoverPanic(r),
				"queue", queue,
				"event_id", env.EventID,
			)
		}
	}()

	if err := handler(ctx, env); err != nil {
		// The message is considered acknowledged either way; nothing
		// redelivers here.
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

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
