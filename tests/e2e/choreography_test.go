package e2e

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiflow/internal/bus"
	"logiflow/internal/constants"
	"logiflow/internal/logger"
	"logiflow/internal/notifications"
	"logiflow/internal/realtime"
	"logiflow/pkg/models"
)

const eventWaitTimeout = 5 * time.Second

// memoryNotificationRepo stands in for Postgres: it enforces the same
// uniqueness over origin event ids.
type memoryNotificationRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*notifications.Notification
	byKey  map[string]int64
}

func newMemoryNotificationRepo() *memoryNotificationRepo {
	return &memoryNotificationRepo{
		rows:  make(map[int64]*notifications.Notification),
		byKey: make(map[string]int64),
	}
}

func (r *memoryNotificationRepo) CreateIfAbsent(ctx context.Context, n *notifications.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[n.OriginEventID]; ok {
		return false, nil
	}

	r.nextID++
	n.ID = r.nextID
	if n.Status == "" {
		n.Status = notifications.StatusPending
	}
	stored := *n
	r.rows[n.ID] = &stored
	r.byKey[n.OriginEventID] = n.ID
	return true, nil
}

func (r *memoryNotificationRepo) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		row.Status = notifications.StatusSent
		row.Detail = ""
		row.SentAt = &sentAt
	}
	return nil
}

func (r *memoryNotificationRepo) MarkFailed(ctx context.Context, id int64, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		row.Status = notifications.StatusFailed
		row.Detail = detail
	}
	return nil
}

func (r *memoryNotificationRepo) ResetFailed(ctx context.Context) ([]notifications.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notifications.Notification
	for _, row := range r.rows {
		if row.Status == notifications.StatusFailed {
			row.Status = notifications.StatusPending
			row.Detail = ""
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memoryNotificationRepo) ListByRecipient(ctx context.Context, recipient string, limit int) ([]notifications.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notifications.Notification
	for _, row := range r.rows {
		if row.Recipient == recipient {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memoryNotificationRepo) ListByStatus(ctx context.Context, status string, limit int) ([]notifications.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notifications.Notification
	for _, row := range r.rows {
		if row.Status == status {
			out = append(out, *row)
		}
	}
	return out, nil
}

// wsRecorder drains a client's send queue so the hub never sees it as slow.
type wsRecorder struct {
	mu       sync.Mutex
	messages []realtime.ChannelMessage
}

func (w *wsRecorder) drain(client *realtime.Client) {
	for raw := range client.Send() {
		var msg realtime.ChannelMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		w.mu.Lock()
		w.messages = append(w.messages, msg)
		w.mu.Unlock()
	}
}

func (w *wsRecorder) channels() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.messages))
	for _, msg := range w.messages {
		out = append(out, msg.Channel)
	}
	sort.Strings(out)
	return out
}

type fixture struct {
	bus       bus.Bus
	repo      *memoryNotificationRepo
	hub       *realtime.Hub
	client    *realtime.Client
	recorder  *wsRecorder
	cancelCtx context.CancelFunc
}

// startChoreography wires the full event path in process: one bus, the
// notification consumer and the realtime fan-out, each on its own queues.
func startChoreography(t *testing.T) *fixture {
	t.Helper()

	log := logger.NopLogger()
	eventBus := bus.NewMemoryBus(log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() { eventBus.Close() })
	t.Cleanup(cancel)

	bindings := []bus.Binding{
		{Topic: bus.TopicOrders, Queue: constants.QueueNotificationsOrderCreated, Pattern: bus.KeyOrderCreated},
		{Topic: bus.TopicOrders, Queue: constants.QueueNotificationsOrderUpdated, Pattern: bus.KeyOrderUpdated},
		{Topic: bus.TopicTracking, Queue: constants.QueueNotificationsLocationUpdated, Pattern: bus.KeyLocationUpdated},
		{Topic: bus.TopicOrders, Queue: constants.QueueRealtimeOrderCreated, Pattern: bus.KeyOrderCreated},
		{Topic: bus.TopicOrders, Queue: constants.QueueRealtimeOrderUpdated, Pattern: bus.KeyOrderUpdated},
		{Topic: bus.TopicTracking, Queue: constants.QueueRealtimeLocationUpdated, Pattern: bus.KeyLocationUpdated},
	}
	require.NoError(t, eventBus.DeclareTopology(ctx, bindings))

	repo := newMemoryNotificationRepo()
	notifSvc := notifications.NewService(repo, notifications.NewSimulatedSender(0), log)

	hub := realtime.NewHub(log)
	broadcaster := realtime.NewBroadcaster(hub, log)

	consumers := map[string]bus.HandlerFunc{
		constants.QueueNotificationsOrderCreated:    notifSvc.HandleOrderCreated,
		constants.QueueNotificationsOrderUpdated:    notifSvc.HandleOrderUpdated,
		constants.QueueNotificationsLocationUpdated: notifSvc.HandleLocationUpdated,
		constants.QueueRealtimeOrderCreated:         broadcaster.HandleOrderCreated,
		constants.QueueRealtimeOrderUpdated:         broadcaster.HandleOrderUpdated,
		constants.QueueRealtimeLocationUpdated:      broadcaster.HandleLocationUpdated,
	}
	for queue, handler := range consumers {
		queue, handler := queue, handler
		go eventBus.Subscribe(ctx, queue, handler)
	}

	client := realtime.NewClient(nil, 64)
	recorder := &wsRecorder{}
	go recorder.drain(client)
	t.Cleanup(func() { hub.Disconnect(client) })

	return &fixture{
		bus:       eventBus,
		repo:      repo,
		hub:       hub,
		client:    client,
		recorder:  recorder,
		cancelCtx: cancel,
	}
}

func TestOrderCreated_NotifiesAndBroadcasts(t *testing.T) {
	f := startChoreography(t)
	ctx := context.Background()

	require.True(t, f.hub.Subscribe(f.client, "topic/orders"))
	require.True(t, f.hub.Subscribe(f.client, "topic/customer/7"))

	env, err := models.NewOrderEvent(models.EventOrderCreated, models.OrderPayload{
		OrderID:    42,
		CustomerID: 7,
		State:      constants.OrderStateReceived,
		Address:    "Invalidenstr. 117, Berlin",
		Fare:       12.50,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(ctx, bus.TopicOrders, bus.KeyOrderCreated, env))

	require.Eventually(t, func() bool {
		sent, err := f.repo.ListByStatus(ctx, notifications.StatusSent, 10)
		return err == nil && len(sent) == 2
	}, eventWaitTimeout, 20*time.Millisecond, "order.created should produce an email and a push")

	rows, err := f.repo.ListByRecipient(ctx, "customer_7", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	channels := []string{rows[0].Channel, rows[1].Channel}
	assert.ElementsMatch(t, []string{notifications.ChannelEmail, notifications.ChannelPush}, channels)

	require.Eventually(t, func() bool {
		return len(f.recorder.channels()) == 2
	}, eventWaitTimeout, 20*time.Millisecond)
	assert.Equal(t, []string{"topic/customer/7", "topic/orders"}, f.recorder.channels())
}

func TestOrderCreated_RedeliveryIsSuppressed(t *testing.T) {
	f := startChoreography(t)
	ctx := context.Background()

	env, err := models.NewOrderEvent(models.EventOrderCreated, models.OrderPayload{
		OrderID:    42,
		CustomerID: 7,
		State:      constants.OrderStateReceived,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(ctx, bus.TopicOrders, bus.KeyOrderCreated, env))
	require.Eventually(t, func() bool {
		sent, err := f.repo.ListByStatus(ctx, notifications.StatusSent, 10)
		return err == nil && len(sent) == 2
	}, eventWaitTimeout, 20*time.Millisecond)

	// Same envelope again, as an at-least-once bus is allowed to do.
	require.NoError(t, f.bus.Publish(ctx, bus.TopicOrders, bus.KeyOrderCreated, env))
	time.Sleep(200 * time.Millisecond)

	rows, err := f.repo.ListByRecipient(ctx, "customer_7", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "redelivery must not create new notifications")
}

func TestLocationDelivering_ReachesOrderWatchers(t *testing.T) {
	f := startChoreography(t)
	ctx := context.Background()

	require.True(t, f.hub.Subscribe(f.client, "topic/order/42/location"))
	require.True(t, f.hub.Subscribe(f.client, "topic/courier/9"))

	orderID := int64(42)
	env, err := models.NewLocationEvent(models.LocationPayload{
		CourierID: 9,
		Lat:       52.52,
		Lng:       13.405,
		State:     constants.CourierStateDelivering,
		OrderID:   &orderID,
	})
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(ctx, bus.TopicTracking, bus.KeyLocationUpdated, env))

	require.Eventually(t, func() bool {
		rows, err := f.repo.ListByRecipient(ctx, "order_42", 10)
		return err == nil && len(rows) == 1 && rows[0].Status == notifications.StatusSent
	}, eventWaitTimeout, 20*time.Millisecond, "delivering location should push to the order watcher")

	require.Eventually(t, func() bool {
		return len(f.recorder.channels()) == 2
	}, eventWaitTimeout, 20*time.Millisecond)
	assert.Equal(t, []string{"topic/courier/9", "topic/order/42/location"}, f.recorder.channels())
}

func TestLocationEnRoute_NoNotification(t *testing.T) {
	f := startChoreography(t)
	ctx := context.Background()

	orderID := int64(42)
	env, err := models.NewLocationEvent(models.LocationPayload{
		CourierID: 9,
		Lat:       52.52,
		Lng:       13.405,
		State:     constants.CourierStateEnRoute,
		OrderID:   &orderID,
	})
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(ctx, bus.TopicTracking, bus.KeyLocationUpdated, env))

	time.Sleep(200 * time.Millisecond)

	rows, err := f.repo.ListByRecipient(ctx, "order_42", 10)
	require.NoError(t, err)
	assert.Empty(t, rows, "only DELIVERING locations notify order watchers")
}
