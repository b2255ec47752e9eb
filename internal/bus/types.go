package bus

import (
	"context"

	"logiflow/pkg/models"
)

// HandlerFunc is invoked once per delivered envelope. A returned error is
// logged by the bus and the message is acknowledged anyway; there is no
// redelivery loop for poison messages.
type HandlerFunc func(ctx context.Context, env models.Envelope) error

type Publisher interface {
	// Publish is a fire-and-forget handoff: it returns as soon as the bus
	// accepts the message. Delivery to bound queues is asynchronous and
	// at-least-once.
	Publish(ctx context.Context, topic, routingKey string, env models.Envelope) error
	Close() error
}

type Subscriber interface {
	// Subscribe registers the handler for a durable queue and starts
	// consuming until ctx is canceled. The bus may invoke the handler
	// concurrently for different messages.
	Subscribe(ctx context.Context, queue string, handler HandlerFunc) error
	Close() error
}

// Binding attaches a durable queue to a topic through a routing-key pattern.
// Bindings are immutable once declared; changing a pattern means declaring a
// new queue.
type Binding struct {
	Topic   string
	Queue   string
	Pattern string
}

// Declarator sets up topics, queues and bindings at startup. Declaring an
// existing topic, queue or binding is a no-op, never an error.
type Declarator interface {
	DeclareTopology(ctx context.Context, bindings []Binding) error
}

const (
	TopicOrders   = "orders"
	TopicTracking = "tracking"

	KeyOrderCreated    = models.EventOrderCreated
	KeyOrderUpdated    = models.EventOrderUpdated
	KeyLocationUpdated = models.EventLocationUpdated
)
