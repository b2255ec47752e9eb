package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"logiflow/internal/constants"
	"logiflow/pkg/metrics"
)

type Repository interface {
	// CreateIfAbsent inserts the notification unless one with the same
	// origin event ID already exists. Returns false on a duplicate.
	CreateIfAbsent(ctx context.Context, n *Notification) (bool, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, detail string) error
	ResetFailed(ctx context.Context) ([]Notification, error)
	ListByRecipient(ctx context.Context, recipient string, limit int) ([]Notification, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]Notification, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

// CreateIfAbsent relies on the unique index over origin_event_id: a
// concurrent redelivery of the same event loses the insert race and is
// reported as a duplicate instead of an error.
func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, n *Notification) (bool, error) {
	now := time.Now()
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = StatusPending
	}

	query := `
		INSERT INTO notifications (origin_event_id, origin_event_type, recipient, channel, subject, message, status, detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (origin_event_id) DO NOTHING
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		n.OriginEventID, n.OriginEventType, n.Recipient, n.Channel, n.Subject,
		n.Message, n.Status, n.Detail, n.CreatedAt, n.UpdatedAt,
	).Scan(&n.ID)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.IncDatabaseQuery("notification-service", "postgres", "create", "duplicate")
		return false, nil
	}
	if err != nil {
		metrics.IncDatabaseQuery("notification-service", "postgres", "create", "error")
		return false, fmt.Errorf("failed to create notification: %w", err)
	}

	metrics.IncDatabaseQuery("notification-service", "postgres", "create", "ok")
	return true, nil
}

func (r *PostgresRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `
		UPDATE notifications
		SET status = $1, detail = '', sent_at = $2, updated_at = $3
		WHERE id = $4
	`
	if _, err := r.db.ExecContext(ctx, query, StatusSent, sentAt, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, detail string) error {
	query := `
		UPDATE notifications
		SET status = $1, detail = $2, updated_at = $3
		WHERE id = $4
	`
	if _, err := r.db.ExecContext(ctx, query, StatusFailed, detail, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

// ResetFailed flips every FAILED notification back to PENDING, clears
// the failure detail and returns the affected rows for re-sending.
func (r *PostgresRepository) ResetFailed(ctx context.Context) ([]Notification, error) {
	query := `
		UPDATE notifications
		SET status = $1, detail = '', updated_at = $2
		WHERE status = $3
		RETURNING id, origin_event_id, origin_event_type, recipient, channel, subject, message, status, detail, sent_at, created_at, updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, StatusPending, time.Now(), StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to reset failed notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func (r *PostgresRepository) ListByRecipient(ctx context.Context, recipient string, limit int) ([]Notification, error) {
	query := `
		SELECT id, origin_event_id, origin_event_type, recipient, channel, subject, message, status, detail, sent_at, created_at, updated_at
		FROM notifications
		WHERE recipient = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, recipient, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications by recipient: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status string, limit int) ([]Notification, error) {
	query := `
		SELECT id, origin_event_id, origin_event_type, recipient, channel, subject, message, status, detail, sent_at, created_at, updated_at
		FROM notifications
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, status, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications by status: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.ID, &n.OriginEventID, &n.OriginEventType, &n.Recipient, &n.Channel,
			&n.Subject, &n.Message, &n.Status, &n.Detail, &n.SentAt, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > constants.MaxLimit {
		return constants.DefaultLimit
	}
	return limit
}
