package realtime

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"logiflow/internal/auth"
	"logiflow/internal/logger"
	"logiflow/pkg/metrics"
)

const channelPrefix = "topic/"

// Client is one WebSocket connection. Outbound messages go through a
// buffered send queue; the connection's write pump drains it.
type Client struct {
	ID     string
	Claims *auth.Claims
	send   chan []byte

	mu       sync.Mutex
	channels map[string]bool
	closed   bool
}

func NewClient(claims *auth.Claims, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Client{
		ID:       uuid.New().String(),
		Claims:   claims,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]bool),
	}
}

// Send returns the outbound queue for the connection's write pump.
func (c *Client) Send() <-chan []byte {
	return c.send
}

func (c *Client) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// Hub keeps the channel subscription registry and fans messages out to
// subscribers.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]bool
	logger   logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]bool),
		logger:   log,
	}
}

func ValidChannel(channel string) bool {
	return strings.HasPrefix(channel, channelPrefix) && len(channel) > len(channelPrefix)
}

func (h *Hub) Subscribe(client *Client, channel string) bool {
	if !ValidChannel(channel) {
		return false
	}

	client.mu.Lock()
	if client.closed {
		client.mu.Unlock()
		return false
	}
	client.channels[channel] = true
	client.mu.Unlock()

	h.mu.Lock()
	subscribers, ok := h.channels[channel]
	if !ok {
		subscribers = make(map[*Client]bool)
		h.channels[channel] = subscribers
	}
	subscribers[client] = true
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	h.logger.Debugw("Client subscribed", "client_id", client.ID, "channel", channel)
	return true
}

func (h *Hub) Unsubscribe(client *Client, channel string) {
	client.mu.Lock()
	delete(client.channels, channel)
	client.mu.Unlock()

	h.mu.Lock()
	if subscribers, ok := h.channels[channel]; ok {
		if subscribers[client] {
			delete(subscribers, client)
			metrics.WebSocketConnections.Dec()
		}
		if len(subscribers) == 0 {
			delete(h.channels, channel)
		}
	}
	h.mu.Unlock()
}

// Disconnect removes the client from every channel and closes its send
// queue. Safe to call more than once.
func (h *Hub) Disconnect(client *Client) {
	client.mu.Lock()
	if client.closed {
		client.mu.Unlock()
		return
	}
	client.closed = true
	channels := make([]string, 0, len(client.channels))
	for ch := range client.channels {
		channels = append(channels, ch)
	}
	client.channels = make(map[string]bool)
	client.mu.Unlock()

	h.mu.Lock()
	for _, channel := range channels {
		if subscribers, ok := h.channels[channel]; ok {
			if subscribers[client] {
				delete(subscribers, client)
				metrics.WebSocketConnections.Dec()
			}
			if len(subscribers) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	h.mu.Unlock()

	close(client.send)
	h.logger.Debugw("Client disconnected", "client_id", client.ID)
}

// Broadcast delivers the message to every subscriber of the channel.
// Slow clients have the message dropped rather than blocking the rest.
func (h *Hub) Broadcast(channel string, message []byte) int {
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.channels[channel]))
	for client := range h.channels[channel] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range subscribers {
		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			continue
		}
		select {
		case client.send <- message:
			delivered++
		default:
			h.logger.Warnw("Dropping message for slow client",
				"client_id", client.ID,
				"channel", channel,
			)
		}
		client.mu.Unlock()
	}
	return delivered
}

// CloseAll disconnects every client, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make(map[*Client]bool)
	for _, subscribers := range h.channels {
		for client := range subscribers {
			clients[client] = true
		}
	}
	h.mu.RUnlock()

	for client := range clients {
		h.Disconnect(client)
	}
}

// SubscriberCount reports the number of subscribers on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
