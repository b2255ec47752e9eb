package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

// Durable queue names, one set per consuming service.
const (
	QueueNotificationsOrderCreated    = "notifications.order-created"
	QueueNotificationsOrderUpdated    = "notifications.order-updated"
	QueueNotificationsLocationUpdated = "notifications.location-updated"

	QueueRealtimeOrderCreated    = "realtime.order-created"
	QueueRealtimeOrderUpdated    = "realtime.order-updated"
	QueueRealtimeLocationUpdated = "realtime.location-updated"
)

// Order lifecycle states.
const (
	OrderStateReceived   = "RECEIVED"
	OrderStateAssigned   = "ASSIGNED"
	OrderStateDelivering = "DELIVERING"
	OrderStateDelivered  = "DELIVERED"
	OrderStateCancelled  = "CANCELLED"
)

// Courier states carried on location updates.
const (
	CourierStateEnRoute    = "EN_ROUTE"
	CourierStateDelivering = "DELIVERING"
	CourierStateIdle       = "IDLE"
)

const (
	CacheKeyPrefixLocation = "location:latest:"
)

const (
	DefaultMongoDBName = "logiflow"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Window used by the active-couriers query.
const ActiveCourierWindow = 30 * time.Minute
