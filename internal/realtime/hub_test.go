package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiflow/internal/auth"
	"logiflow/internal/logger"
)

func testClient(buffer int) *Client {
	return NewClient(&auth.Claims{Subject: "user-1"}, buffer)
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	client := testClient(8)

	require.True(t, hub.Subscribe(client, "topic/orders"))
	assert.Equal(t, 1, hub.SubscriberCount("topic/orders"))

	delivered := hub.Broadcast("topic/orders", []byte(`{"hello":"world"}`))
	assert.Equal(t, 1, delivered)

	messages := drain(client)
	require.Len(t, messages, 1)
	assert.JSONEq(t, `{"hello":"world"}`, string(messages[0]))
}

func TestHub_RejectsInvalidChannel(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	client := testClient(8)

	assert.False(t, hub.Subscribe(client, "orders"))
	assert.False(t, hub.Subscribe(client, "topic/"))
	assert.False(t, hub.Subscribe(client, ""))
}

func TestHub_BroadcastOnlyToSubscribedChannel(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	ordersClient := testClient(8)
	locationsClient := testClient(8)

	require.True(t, hub.Subscribe(ordersClient, "topic/orders"))
	require.True(t, hub.Subscribe(locationsClient, "topic/locations"))

	hub.Broadcast("topic/orders", []byte(`{}`))

	assert.Len(t, drain(ordersClient), 1)
	assert.Empty(t, drain(locationsClient))
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	client := testClient(8)

	require.True(t, hub.Subscribe(client, "topic/orders"))
	hub.Unsubscribe(client, "topic/orders")

	assert.Zero(t, hub.SubscriberCount("topic/orders"))
	assert.Zero(t, hub.Broadcast("topic/orders", []byte(`{}`)))
}

func TestHub_SlowClientDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	slow := testClient(1)
	fast := testClient(8)

	require.True(t, hub.Subscribe(slow, "topic/orders"))
	require.True(t, hub.Subscribe(fast, "topic/orders"))

	// Fill the slow client's queue, then broadcast again.
	hub.Broadcast("topic/orders", []byte(`{"n":1}`))
	delivered := hub.Broadcast("topic/orders", []byte(`{"n":2}`))

	// Only the fast client took the second message.
	assert.Equal(t, 1, delivered)
	assert.Len(t, drain(slow), 1)
	assert.Len(t, drain(fast), 2)
}

func TestHub_DisconnectRemovesAllSubscriptions(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	client := testClient(8)

	require.True(t, hub.Subscribe(client, "topic/orders"))
	require.True(t, hub.Subscribe(client, "topic/locations"))

	hub.Disconnect(client)

	assert.Zero(t, hub.SubscriberCount("topic/orders"))
	assert.Zero(t, hub.SubscriberCount("topic/locations"))

	// Idempotent.
	hub.Disconnect(client)

	// Broadcasting after disconnect delivers nothing and does not panic.
	assert.Zero(t, hub.Broadcast("topic/orders", []byte(`{}`)))
}
