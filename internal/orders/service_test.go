package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiflow/internal/constants"
	"logiflow/internal/logger"
	pkgerrors "logiflow/pkg/errors"
	"logiflow/pkg/models"
)

type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]Order
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1, orders: make(map[int64]Order)}
}

func (f *fakeRepo) Create(ctx context.Context, order *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order.ID = f.nextID
	f.nextID++
	f.orders[order.ID] = *order
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("order_id", id)
	}
	return &order, nil
}

func (f *fakeRepo) Update(ctx context.Context, order *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[order.ID]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("order_id", order.ID)
	}
	f.orders[order.ID] = *order
	return nil
}

func (f *fakeRepo) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByState(ctx context.Context, state string, limit int) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.orders {
		if o.State == state {
			out = append(out, o)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	envelopes []models.Envelope
	keys      []string
	fail      bool
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, routingKey string, env models.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return assert.AnError
	}
	p.envelopes = append(p.envelopes, env)
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []models.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Envelope, len(p.envelopes))
	copy(out, p.envelopes)
	return out
}

type fakeFleet struct {
	known map[int64]bool
}

func (f *fakeFleet) CourierExists(ctx context.Context, courierID int64) (bool, error) {
	return f.known[courierID], nil
}

func newTestService(pub *recordingPublisher) (Service, *fakeRepo) {
	repo := newFakeRepo()
	producer := NewProducer(pub, logger.NopLogger())
	fleet := &fakeFleet{known: map[int64]bool{7: true, 9: true}}
	return NewService(repo, producer, fleet), repo
}

func TestCreateOrder_ForcesReceivedState(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: 42,
		Address:    "Av. Siempre Viva 742",
		Fare:       12.50,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStateReceived, order.State)
	assert.NotZero(t, order.ID)

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOrderCreated, events[0].EventType)
	assert.Equal(t, order.ID, events[0].SubjectID)
}

func TestCreateOrder_UnknownCourierRejected(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	unknown := int64(99)
	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: 1,
		Address:    "somewhere",
		CourierID:  &unknown,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Empty(t, pub.published())
}

func TestCreateOrder_PublishFailureDoesNotFailCreate(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	svc, repo := newTestService(pub)

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: 42,
		Address:    "somewhere",
	})
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStateReceived, stored.State)
}

func TestUpdateOrder_EmitsEventOnlyOnStateChange(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: 42,
		Address:    "old address",
	})
	require.NoError(t, err)

	// Address-only update: no state change, no event.
	newAddr := "new address"
	updated, err := svc.UpdateOrder(context.Background(), order.ID, UpdateOrderRequest{Address: &newAddr})
	require.NoError(t, err)
	assert.Equal(t, "new address", updated.Address)
	assert.Len(t, pub.published(), 1) // only the creation event

	// State transition emits an update event.
	delivering := constants.OrderStateDelivering
	updated, err = svc.UpdateOrder(context.Background(), order.ID, UpdateOrderRequest{State: &delivering})
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStateDelivering, updated.State)

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventOrderUpdated, events[1].EventType)

	// Re-applying the same state is not a change.
	_, err = svc.UpdateOrder(context.Background(), order.ID, UpdateOrderRequest{State: &delivering})
	require.NoError(t, err)
	assert.Len(t, pub.published(), 2)
}

func TestUpdateOrder_RejectsCancelledOrder(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: 42,
		Address:    "somewhere",
	})
	require.NoError(t, err)

	_, err = svc.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)

	delivered := constants.OrderStateDelivered
	_, err = svc.UpdateOrder(context.Background(), order.ID, UpdateOrderRequest{State: &delivered})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestUpdateOrder_InvalidState(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: 42,
		Address:    "somewhere",
	})
	require.NoError(t, err)

	bogus := "TELEPORTED"
	_, err = svc.UpdateOrder(context.Background(), order.ID, UpdateOrderRequest{State: &bogus})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCancelOrder_AlwaysEmitsUpdateEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: 42,
		Address:    "somewhere",
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStateCancelled, cancelled.State)

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventOrderUpdated, events[1].EventType)

	// Double cancel is a conflict and emits nothing further.
	_, err = svc.CancelOrder(context.Background(), order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
	assert.Len(t, pub.published(), 2)
}
