package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiflow/internal/notifications"
)

func TestNotificationRepository_CreateIfAbsent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := notifications.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	n := createTestNotification("customer_7", notifications.ChannelEmail)
	created, err := repo.CreateIfAbsent(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, n.ID)
	assert.Equal(t, notifications.StatusPending, n.Status)

	duplicate := createTestNotification("customer_7", notifications.ChannelEmail)
	duplicate.OriginEventID = n.OriginEventID
	created, err = repo.CreateIfAbsent(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created, "second insert with the same origin event must be suppressed")
}

func TestNotificationRepository_MarkSent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := notifications.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	n := createTestNotification("customer_7", notifications.ChannelPush)
	_, err := repo.CreateIfAbsent(ctx, n)
	require.NoError(t, err)

	sentAt := time.Now()
	require.NoError(t, repo.MarkSent(ctx, n.ID, sentAt))

	sent, err := repo.ListByStatus(ctx, notifications.StatusSent, 10)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, n.ID, sent[0].ID)
	require.NotNil(t, sent[0].SentAt)
	assert.WithinDuration(t, sentAt, *sent[0].SentAt, time.Second)
}

func TestNotificationRepository_ResetFailed(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := notifications.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	failed := createTestNotification("customer_7", notifications.ChannelEmail)
	_, err := repo.CreateIfAbsent(ctx, failed)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, failed.ID, "smtp timeout"))

	sent := createTestNotification("customer_8", notifications.ChannelPush)
	_, err = repo.CreateIfAbsent(ctx, sent)
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(ctx, sent.ID, time.Now()))

	reset, err := repo.ResetFailed(ctx)
	require.NoError(t, err)
	require.Len(t, reset, 1)
	assert.Equal(t, failed.ID, reset[0].ID)
	assert.Equal(t, notifications.StatusPending, reset[0].Status)
	assert.Empty(t, reset[0].Detail, "failure detail must be cleared on reset")

	remaining, err := repo.ListByStatus(ctx, notifications.StatusFailed, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestNotificationRepository_ListByRecipient(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	repo := notifications.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	first := createTestNotification("customer_7", notifications.ChannelEmail)
	_, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	time.Sleep(timestampDelay)
	second := createTestNotification("customer_7", notifications.ChannelPush)
	_, err = repo.CreateIfAbsent(ctx, second)
	require.NoError(t, err)

	other := createTestNotification("customer_8", notifications.ChannelPush)
	_, err = repo.CreateIfAbsent(ctx, other)
	require.NoError(t, err)

	list, err := repo.ListByRecipient(ctx, "customer_7", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest notification comes first")
	assert.Equal(t, first.ID, list[1].ID)
}
