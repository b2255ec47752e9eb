package notifications

import (
	"context"
	"fmt"
	"time"

	"logiflow/internal/constants"
	"logiflow/internal/logger"
	pkgerrors "logiflow/pkg/errors"
	"logiflow/pkg/metrics"
	"logiflow/pkg/models"
)

type Service interface {
	HandleOrderCreated(ctx context.Context, env models.Envelope) error
	HandleOrderUpdated(ctx context.Context, env models.Envelope) error
	HandleLocationUpdated(ctx context.Context, env models.Envelope) error
	RetryFailed(ctx context.Context) (int, error)
	RunRetrySweep(ctx context.Context, interval time.Duration)
	ListByRecipient(ctx context.Context, recipient string, limit int) ([]Notification, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]Notification, error)
}

type service struct {
	repo   Repository
	sender Sender
	logger logger.Logger
}

func NewService(repo Repository, sender Sender, log logger.Logger) Service {
	return &service{repo: repo, sender: sender, logger: log}
}

// HandleOrderCreated notifies the customer over email and push. The
// derived origin keys keep each channel independently idempotent under
// event redelivery.
func (s *service) HandleOrderCreated(ctx context.Context, env models.Envelope) error {
	payload, err := env.OrderPayload()
	if err != nil {
		return fmt.Errorf("invalid order payload: %w", err)
	}

	recipient := customerRecipient(payload.CustomerID)

	s.process(ctx, env.EventType, &Notification{
		OriginEventID: env.EventID,
		Recipient:     recipient,
		Channel:       ChannelEmail,
		Subject:       "Order received",
		Message:       fmt.Sprintf("Your order %d has been received and is being prepared.", payload.OrderID),
	})

	s.process(ctx, env.EventType, &Notification{
		OriginEventID: env.EventID + "_push",
		Recipient:     recipient,
		Channel:       ChannelPush,
		Subject:       "Order received",
		Message:       fmt.Sprintf("Order %d confirmed.", payload.OrderID),
	})

	return nil
}

// HandleOrderUpdated pushes every state change. Delivered orders get an
// additional email receipt.
func (s *service) HandleOrderUpdated(ctx context.Context, env models.Envelope) error {
	payload, err := env.OrderPayload()
	if err != nil {
		return fmt.Errorf("invalid order payload: %w", err)
	}

	recipient := customerRecipient(payload.CustomerID)

	s.process(ctx, env.EventType, &Notification{
		OriginEventID: env.EventID,
		Recipient:     recipient,
		Channel:       ChannelPush,
		Subject:       "Order update",
		Message:       fmt.Sprintf("Order %d is now %s.", payload.OrderID, payload.State),
	})

	if payload.State == constants.OrderStateDelivered {
		s.process(ctx, env.EventType, &Notification{
			OriginEventID: env.EventID + "_email",
			Recipient:     recipient,
			Channel:       ChannelEmail,
			Subject:       "Order delivered",
			Message:       fmt.Sprintf("Order %d was delivered. Thank you!", payload.OrderID),
		})
	}

	return nil
}

// HandleLocationUpdated only notifies when the courier is actively
// delivering a known order; idle movement is ignored.
func (s *service) HandleLocationUpdated(ctx context.Context, env models.Envelope) error {
	payload, err := env.LocationPayload()
	if err != nil {
		return fmt.Errorf("invalid location payload: %w", err)
	}

	if payload.OrderID == nil || payload.State != constants.CourierStateDelivering {
		return nil
	}

	s.process(ctx, env.EventType, &Notification{
		OriginEventID: env.EventID,
		Recipient:     orderRecipient(*payload.OrderID),
		Channel:       ChannelPush,
		Subject:       "Courier on the move",
		Message:       fmt.Sprintf("Your courier is at (%.5f, %.5f).", payload.Lat, payload.Lng),
	})

	return nil
}

// process stores the notification and delivers it synchronously. A
// duplicate origin key means the event was already handled; nothing is
// sent again.
func (s *service) process(ctx context.Context, eventType string, n *Notification) {
	n.OriginEventType = eventType
	created, err := s.repo.CreateIfAbsent(ctx, n)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(n.Channel, "error").Inc()
		s.logger.ErrorwCtx(ctx, "Failed to store notification",
			"error", err,
			"origin_event_id", n.OriginEventID,
			"channel", n.Channel,
		)
		return
	}
	if !created {
		metrics.DuplicateEventsTotal.WithLabelValues(eventType).Inc()
		s.logger.DebugwCtx(ctx, "Duplicate event suppressed",
			"origin_event_id", n.OriginEventID,
			"event_type", eventType,
		)
		return
	}

	s.deliver(ctx, n)
}

func (s *service) deliver(ctx context.Context, n *Notification) {
	if err := s.sender.Send(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues(n.Channel, "failed").Inc()
		n.Status = StatusFailed
		n.Detail = err.Error()
		if markErr := s.repo.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
			s.logger.ErrorwCtx(ctx, "Failed to record notification failure",
				"error", markErr,
				"notification_id", n.ID,
			)
		}
		return
	}

	sentAt := time.Now()
	metrics.NotificationsTotal.WithLabelValues(n.Channel, "sent").Inc()
	n.Status = StatusSent
	n.SentAt = &sentAt
	if err := s.repo.MarkSent(ctx, n.ID, sentAt); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to record notification delivery",
			"error", err,
			"notification_id", n.ID,
		)
	}
}

// RetryFailed sweeps every failed notification back to pending and
// attempts delivery again. Returns the number of swept records.
func (s *service) RetryFailed(ctx context.Context) (int, error) {
	reset, err := s.repo.ResetFailed(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	for i := range reset {
		metrics.NotificationRetriesTotal.Inc()
		n := reset[i]
		s.deliver(ctx, &n)
	}

	s.logger.InfowCtx(ctx, "Retried failed notifications", "count", len(reset))
	return len(reset), nil
}

// RunRetrySweep periodically retries failed notifications until the
// context is cancelled.
func (s *service) RunRetrySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RetryFailed(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Retry sweep failed", "error", err)
			}
		}
	}
}

func (s *service) ListByRecipient(ctx context.Context, recipient string, limit int) ([]Notification, error) {
	if recipient == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "recipient is required")
	}
	return s.repo.ListByRecipient(ctx, recipient, limit)
}

func (s *service) ListByStatus(ctx context.Context, status string, limit int) ([]Notification, error) {
	if !ValidStatus(status) {
		return nil, pkgerrors.ErrValidation.WithDetail("message",
			fmt.Sprintf("unknown notification status: %s", status))
	}
	return s.repo.ListByStatus(ctx, status, limit)
}

func customerRecipient(customerID int64) string {
	return fmt.Sprintf("customer_%d", customerID)
}

func orderRecipient(orderID int64) string {
	return fmt.Sprintf("order_%d", orderID)
}
