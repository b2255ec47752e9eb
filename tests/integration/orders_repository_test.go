package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiflow/internal/constants"
	"logiflow/internal/orders"
	pkgerrors "logiflow/pkg/errors"
)

func TestOrderRepository_CreateAndGet(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := orders.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	order := createTestOrder(7, "Invalidenstr. 117, Berlin")
	require.NoError(t, repo.Create(ctx, order))
	require.NotZero(t, order.ID)

	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.CustomerID)
	assert.Equal(t, "Invalidenstr. 117, Berlin", got.Address)
	assert.Equal(t, constants.OrderStateReceived, got.State)
	assert.Nil(t, got.CourierID)
	assert.InDelta(t, 12.50, got.Fare, 0.001)
}

func TestOrderRepository_GetMissing(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := orders.NewRepository(infra.PostgresDB)

	_, err := repo.Get(context.Background(), 999999)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestOrderRepository_Update(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := orders.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	order := createTestOrder(7, "Invalidenstr. 117, Berlin")
	require.NoError(t, repo.Create(ctx, order))

	order.State = constants.OrderStateAssigned
	order.CourierID = int64Ptr(3)
	require.NoError(t, repo.Update(ctx, order))

	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStateAssigned, got.State)
	require.NotNil(t, got.CourierID)
	assert.Equal(t, int64(3), *got.CourierID)
}

func TestOrderRepository_UpdateMissing(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := orders.NewRepository(infra.PostgresDB)

	missing := createTestOrder(7, "nowhere")
	missing.ID = 999999
	err := repo.Update(context.Background(), missing)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestOrderRepository_ListByCustomerOrdering(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := orders.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	first := createTestOrder(42, "first address")
	require.NoError(t, repo.Create(ctx, first))
	time.Sleep(timestampDelay)
	second := createTestOrder(42, "second address")
	require.NoError(t, repo.Create(ctx, second))

	other := createTestOrder(43, "other customer")
	require.NoError(t, repo.Create(ctx, other))

	list, err := repo.ListByCustomer(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second address", list[0].Address)
	assert.Equal(t, "first address", list[1].Address)
}

func TestOrderRepository_ListByState(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := orders.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	received := createTestOrder(1, "received order")
	require.NoError(t, repo.Create(ctx, received))

	delivering := createTestOrder(2, "delivering order")
	require.NoError(t, repo.Create(ctx, delivering))
	delivering.State = constants.OrderStateDelivering
	require.NoError(t, repo.Update(ctx, delivering))

	list, err := repo.ListByState(ctx, constants.OrderStateDelivering, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, delivering.ID, list[0].ID)
}
