package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiflow/internal/constants"
	"logiflow/internal/logger"
	"logiflow/pkg/models"
)

func orderEnvelope(t *testing.T, eventType string, orderID, customerID int64) models.Envelope {
	t.Helper()
	env, err := models.NewOrderEvent(eventType, models.OrderPayload{
		OrderID:    orderID,
		CustomerID: customerID,
		State:      constants.OrderStateDelivering,
		Address:    "somewhere",
	}, nil)
	require.NoError(t, err)
	return env
}

func locationEnvelope(t *testing.T, courierID int64, orderID *int64) models.Envelope {
	t.Helper()
	env, err := models.NewLocationEvent(models.LocationPayload{
		CourierID: courierID,
		Lat:       1,
		Lng:       2,
		State:     constants.CourierStateDelivering,
		OrderID:   orderID,
	})
	require.NoError(t, err)
	return env
}

// subscribeAll attaches one client per channel and returns them by name.
func subscribeAll(t *testing.T, hub *Hub, channels ...string) map[string]*Client {
	t.Helper()
	clients := make(map[string]*Client, len(channels))
	for _, ch := range channels {
		client := testClient(16)
		require.True(t, hub.Subscribe(client, ch))
		clients[ch] = client
	}
	return clients
}

func receivedChannels(t *testing.T, clients map[string]*Client) map[string][]ChannelMessage {
	t.Helper()
	out := make(map[string][]ChannelMessage)
	for name, client := range clients {
		for _, raw := range drain(client) {
			var msg ChannelMessage
			require.NoError(t, json.Unmarshal(raw, &msg))
			out[name] = append(out[name], msg)
		}
	}
	return out
}

func TestBroadcaster_OrderUpdatedFanOut(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	b := NewBroadcaster(hub, logger.NopLogger())

	clients := subscribeAll(t, hub,
		"topic/orders",
		"topic/orders/updates",
		"topic/order/42",
		"topic/order/43",
		"topic/customer/7",
		"topic/customer/8",
		"topic/locations",
	)

	env := orderEnvelope(t, models.EventOrderUpdated, 42, 7)
	require.NoError(t, b.HandleOrderUpdated(context.Background(), env))

	got := receivedChannels(t, clients)

	// Exactly three destinations for an update of order 42 / customer 7.
	assert.Len(t, got["topic/orders/updates"], 1)
	assert.Len(t, got["topic/order/42"], 1)
	assert.Len(t, got["topic/customer/7"], 1)

	assert.Empty(t, got["topic/orders"])
	assert.Empty(t, got["topic/order/43"])
	assert.Empty(t, got["topic/customer/8"])
	assert.Empty(t, got["topic/locations"])

	msg := got["topic/order/42"][0]
	assert.Equal(t, models.EventOrderUpdated, msg.EventType)
	assert.Equal(t, env.EventID, msg.EventID)
	assert.Equal(t, "topic/order/42", msg.Channel)
}

func TestBroadcaster_OrderCreatedFanOut(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	b := NewBroadcaster(hub, logger.NopLogger())

	clients := subscribeAll(t, hub,
		"topic/orders",
		"topic/orders/updates",
		"topic/order/42",
		"topic/customer/7",
	)

	env := orderEnvelope(t, models.EventOrderCreated, 42, 7)
	require.NoError(t, b.HandleOrderCreated(context.Background(), env))

	got := receivedChannels(t, clients)
	assert.Len(t, got["topic/orders"], 1)
	assert.Len(t, got["topic/order/42"], 1)
	assert.Len(t, got["topic/customer/7"], 1)
	assert.Empty(t, got["topic/orders/updates"])
}

func TestBroadcaster_LocationFanOut(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	b := NewBroadcaster(hub, logger.NopLogger())

	orderID := int64(42)
	clients := subscribeAll(t, hub,
		"topic/locations",
		"topic/courier/9",
		"topic/order/42/location",
		"topic/order/42",
	)

	env := locationEnvelope(t, 9, &orderID)
	require.NoError(t, b.HandleLocationUpdated(context.Background(), env))

	got := receivedChannels(t, clients)
	assert.Len(t, got["topic/locations"], 1)
	assert.Len(t, got["topic/courier/9"], 1)
	assert.Len(t, got["topic/order/42/location"], 1)
	assert.Empty(t, got["topic/order/42"])
}

func TestBroadcaster_LocationWithoutOrderSkipsOrderChannel(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	b := NewBroadcaster(hub, logger.NopLogger())

	clients := subscribeAll(t, hub,
		"topic/locations",
		"topic/courier/9",
		"topic/order/42/location",
	)

	env := locationEnvelope(t, 9, nil)
	require.NoError(t, b.HandleLocationUpdated(context.Background(), env))

	got := receivedChannels(t, clients)
	assert.Len(t, got["topic/locations"], 1)
	assert.Len(t, got["topic/courier/9"], 1)
	assert.Empty(t, got["topic/order/42/location"])
}

func TestBroadcaster_MalformedPayloadReturnsError(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	b := NewBroadcaster(hub, logger.NopLogger())

	env := orderEnvelope(t, models.EventOrderCreated, 42, 7)
	env.Payload = json.RawMessage(`not-json`)

	assert.Error(t, b.HandleOrderCreated(context.Background(), env))
}
