package integration

import (
	"time"

	"github.com/google/uuid"

	"logiflow/internal/constants"
	"logiflow/internal/logger"
	"logiflow/internal/notifications"
	"logiflow/internal/orders"
	"logiflow/internal/tracking"
)

const (
	containerStartupTimeout = 60
	timestampDelay          = 10 * time.Millisecond
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestOrder(customerID int64, address string) *orders.Order {
	return &orders.Order{
		CustomerID: customerID,
		Address:    address,
		State:      constants.OrderStateReceived,
		Fare:       12.50,
	}
}

func createTestNotification(recipient, channel string) *notifications.Notification {
	return &notifications.Notification{
		OriginEventID: uuid.New().String(),
		Recipient:     recipient,
		Channel:       channel,
		Subject:       "Order received",
		Message:       "Your order is on its way",
	}
}

func createTestLocation(courierID int64, recordedAt time.Time) *tracking.Location {
	return &tracking.Location{
		CourierID:  courierID,
		Lat:        52.52,
		Lng:        13.405,
		State:      constants.CourierStateEnRoute,
		RecordedAt: recordedAt,
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}
