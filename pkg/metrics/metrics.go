package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BusPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_published_total",
			Help: "Total number of envelopes handed to the bus (count)",
		},
		[]string{"topic", "routing_key", "status"},
	)

	BusConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_consumed_total",
			Help: "Total number of envelopes delivered to queue handlers (count)",
		},
		[]string{"queue", "status"},
	)

	OrderEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_events_total",
			Help: "Total number of order lifecycle events emitted (count)",
		},
		[]string{"event_type", "status"},
	)

	LocationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_events_total",
			Help: "Total number of location events emitted (count)",
		},
		[]string{"status"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification records processed (count)",
		},
		[]string{"channel", "status"},
	)

	NotificationSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_send_duration_ms",
			Help:    "Simulated delivery duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"channel", "status"},
	)

	NotificationRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Total number of failed notifications swept for retry (count)",
		},
	)

	DuplicateEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_events_total",
			Help: "Total number of events suppressed by the idempotency check (count)",
		},
		[]string{"event_type"},
	)

	BroadcastDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Total number of per-channel broadcast deliveries (count)",
		},
		[]string{"event_type", "status"},
	)

	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Number of live WebSocket subscriptions (count)",
		},
	)

	WebSocketHandshakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_handshakes_total",
			Help: "Total number of WebSocket handshake attempts (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)
)

var (
	busOnce            set
	orderOnce          set
	trackingOnce       set
	notificationsOnce  set
	realtimeOnce       set
	circuitBreakerOnce set
	rateLimitOnce      set
	databaseOnce       set
)

type set struct{ once sync.Once }

func (s *set) register(collectors ...prometheus.Collector) {
	s.once.Do(func() {
		prometheus.MustRegister(collectors...)
	})
}

func RegisterBusMetrics() {
	busOnce.register(BusPublishedTotal, BusConsumedTotal)
}

func RegisterOrderMetrics() {
	orderOnce.register(OrderEventsTotal)
}

func RegisterTrackingMetrics() {
	trackingOnce.register(LocationEventsTotal)
}

func RegisterNotificationMetrics() {
	notificationsOnce.register(
		NotificationsTotal,
		NotificationSendDuration,
		NotificationRetriesTotal,
		DuplicateEventsTotal,
	)
}

func RegisterRealtimeMetrics() {
	realtimeOnce.register(
		BroadcastDeliveriesTotal,
		WebSocketConnections,
		WebSocketHandshakesTotal,
	)
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.register(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func RegisterRateLimitMetrics() {
	rateLimitOnce.register(RateLimitRequestsTotal)
}

func RegisterDatabaseMetrics() {
	databaseOnce.register(DatabaseQueriesTotal)
}

func ObserveNotificationSend(channel, status string, duration time.Duration) {
	NotificationSendDuration.WithLabelValues(channel, status).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}
