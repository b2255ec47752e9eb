package notifications

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiflow/internal/constants"
	"logiflow/internal/logger"
	"logiflow/pkg/models"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]int64
	rows   map[int64]Notification
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, byKey: make(map[string]int64), rows: make(map[int64]Notification)}
}

func (m *memoryRepo) CreateIfAbsent(ctx context.Context, n *Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[n.OriginEventID]; exists {
		return false, nil
	}
	n.ID = m.nextID
	m.nextID++
	if n.Status == "" {
		n.Status = StatusPending
	}
	m.byKey[n.OriginEventID] = n.ID
	m.rows[n.ID] = *n
	return true, nil
}

func (m *memoryRepo) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.rows[id]
	n.Status = StatusSent
	n.Detail = ""
	n.SentAt = &sentAt
	m.rows[id] = n
	return nil
}

func (m *memoryRepo) MarkFailed(ctx context.Context, id int64, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.rows[id]
	n.Status = StatusFailed
	n.Detail = detail
	m.rows[id] = n
	return nil
}

func (m *memoryRepo) ResetFailed(ctx context.Context) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for id, n := range m.rows {
		if n.Status == StatusFailed {
			n.Status = StatusPending
			n.Detail = ""
			m.rows[id] = n
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListByRecipient(ctx context.Context, recipient string, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.rows {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListByStatus(ctx context.Context, status string, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.rows {
		if n.Status == status {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memoryRepo) all() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, 0, len(m.rows))
	for _, n := range m.rows {
		out = append(out, n)
	}
	return out
}

// scriptedSender fails the first failFirst deliveries, then succeeds.
type scriptedSender struct {
	mu        sync.Mutex
	calls     int
	failFirst int
}

func (s *scriptedSender) Send(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return fmt.Errorf("gateway unavailable")
	}
	return nil
}

func orderEnvelope(t *testing.T, eventType string, orderID, customerID int64, state string) models.Envelope {
	t.Helper()
	env, err := models.NewOrderEvent(eventType, models.OrderPayload{
		OrderID:    orderID,
		CustomerID: customerID,
		State:      state,
		Address:    "somewhere",
	}, nil)
	require.NoError(t, err)
	return env
}

func locationEnvelope(t *testing.T, courierID int64, state string, orderID *int64) models.Envelope {
	t.Helper()
	env, err := models.NewLocationEvent(models.LocationPayload{
		CourierID: courierID,
		Lat:       -34.6,
		Lng:       -58.4,
		State:     state,
		OrderID:   orderID,
	})
	require.NoError(t, err)
	return env
}

func TestHandleOrderCreated_EmailAndPush(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &scriptedSender{}, logger.NopLogger())

	env := orderEnvelope(t, models.EventOrderCreated, 1, 42, constants.OrderStateReceived)
	require.NoError(t, svc.HandleOrderCreated(context.Background(), env))

	rows := repo.all()
	require.Len(t, rows, 2)

	channels := map[string]Notification{}
	for _, n := range rows {
		channels[n.Channel] = n
		assert.Equal(t, "customer_42", n.Recipient)
		assert.Equal(t, StatusSent, n.Status)
		assert.Equal(t, models.EventOrderCreated, n.OriginEventType)
	}
	require.Contains(t, channels, ChannelEmail)
	require.Contains(t, channels, ChannelPush)
	assert.Equal(t, env.EventID, channels[ChannelEmail].OriginEventID)
	assert.Equal(t, env.EventID+"_push", channels[ChannelPush].OriginEventID)
}

func TestHandleOrderCreated_RedeliveryIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	sender := &scriptedSender{}
	svc := NewService(repo, sender, logger.NopLogger())

	env := orderEnvelope(t, models.EventOrderCreated, 1, 42, constants.OrderStateReceived)
	require.NoError(t, svc.HandleOrderCreated(context.Background(), env))
	require.NoError(t, svc.HandleOrderCreated(context.Background(), env))

	assert.Len(t, repo.all(), 2)
	assert.Equal(t, 2, sender.calls)
}

func TestHandleOrderUpdated_PushOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &scriptedSender{}, logger.NopLogger())

	env := orderEnvelope(t, models.EventOrderUpdated, 1, 42, constants.OrderStateDelivering)
	require.NoError(t, svc.HandleOrderUpdated(context.Background(), env))

	rows := repo.all()
	require.Len(t, rows, 1)
	assert.Equal(t, ChannelPush, rows[0].Channel)
}

func TestHandleOrderUpdated_DeliveredAddsEmailReceipt(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &scriptedSender{}, logger.NopLogger())

	env := orderEnvelope(t, models.EventOrderUpdated, 1, 42, constants.OrderStateDelivered)
	require.NoError(t, svc.HandleOrderUpdated(context.Background(), env))

	rows := repo.all()
	require.Len(t, rows, 2)

	var email *Notification
	for i := range rows {
		if rows[i].Channel == ChannelEmail {
			email = &rows[i]
		}
	}
	require.NotNil(t, email)
	assert.Equal(t, env.EventID+"_email", email.OriginEventID)
}

func TestHandleLocationUpdated_Gating(t *testing.T) {
	orderID := int64(5)

	tests := []struct {
		name    string
		state   string
		orderID *int64
		expect  int
	}{
		{"delivering with order", constants.CourierStateDelivering, &orderID, 1},
		{"delivering without order", constants.CourierStateDelivering, nil, 0},
		{"en route with order", constants.CourierStateEnRoute, &orderID, 0},
		{"idle without order", constants.CourierStateIdle, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepo()
			svc := NewService(repo, &scriptedSender{}, logger.NopLogger())

			env := locationEnvelope(t, 7, tt.state, tt.orderID)
			require.NoError(t, svc.HandleLocationUpdated(context.Background(), env))

			rows := repo.all()
			require.Len(t, rows, tt.expect)
			if tt.expect == 1 {
				assert.Equal(t, "order_5", rows[0].Recipient)
				assert.Equal(t, ChannelPush, rows[0].Channel)
			}
		})
	}
}

func TestRetryFailed_ResendsAndClearsDetail(t *testing.T) {
	repo := newMemoryRepo()
	sender := &scriptedSender{failFirst: 1}
	svc := NewService(repo, sender, logger.NopLogger())

	env := orderEnvelope(t, models.EventOrderUpdated, 1, 42, constants.OrderStateDelivering)
	require.NoError(t, svc.HandleOrderUpdated(context.Background(), env))

	failed, err := repo.ListByStatus(context.Background(), StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotEmpty(t, failed[0].Detail)

	count, err := svc.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	sent, err := repo.ListByStatus(context.Background(), StatusSent, 0)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Detail)
}

func TestRetryFailed_NothingToRetry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &scriptedSender{}, logger.NopLogger())

	count, err := svc.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
