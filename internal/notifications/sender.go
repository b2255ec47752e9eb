package notifications

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"logiflow/pkg/metrics"
)

// Sender performs the actual delivery for a single notification.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// SimulatedSender stands in for real email, SMS and push gateways. It
// sleeps a channel dependent latency and fails a configurable fraction
// of deliveries.
type SimulatedSender struct {
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedSender(failureRate float64) *SimulatedSender {
	if failureRate < 0 {
		failureRate = 0
	}
	if failureRate > 1 {
		failureRate = 1
	}
	return &SimulatedSender{
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SimulatedSender) Send(ctx context.Context, n *Notification) error {
	start := time.Now()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.latency(n.Channel)):
	}

	s.mu.Lock()
	failed := s.rng.Float64() < s.failureRate
	s.mu.Unlock()

	if failed {
		metrics.ObserveNotificationSend(n.Channel, "error", time.Since(start))
		return fmt.Errorf("simulated %s gateway failure for %s", n.Channel, n.Recipient)
	}

	metrics.ObserveNotificationSend(n.Channel, "ok", time.Since(start))
	return nil
}

func (s *SimulatedSender) latency(channel string) time.Duration {
	switch channel {
	case ChannelEmail:
		return 30 * time.Millisecond
	case ChannelSMS:
		return 20 * time.Millisecond
	default:
		return 5 * time.Millisecond
	}
}
