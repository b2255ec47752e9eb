package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"logiflow/internal/constants"
	pkgerrors "logiflow/pkg/errors"
	"logiflow/pkg/metrics"
)

type Repository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	Update(ctx context.Context, order *Order) error
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]Order, error)
	ListByState(ctx context.Context, state string, limit int) ([]Order, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, order *Order) error {
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	query := `
		INSERT INTO orders (customer_id, courier_id, address, state, fare, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		order.CustomerID, order.CourierID, order.Address,
		order.State, order.Fare, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		metrics.IncDatabaseQuery("order-service", "postgres", "create", "error")
		return fmt.Errorf("failed to create order: %w", err)
	}

	metrics.IncDatabaseQuery("order-service", "postgres", "create", "ok")
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*Order, error) {
	query := `
		SELECT id, customer_id, courier_id, address, state, fare, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var order Order
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID, &order.CustomerID, &order.CourierID, &order.Address,
		&order.State, &order.Fare, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("order_id", id)
	}
	if err != nil {
		metrics.IncDatabaseQuery("order-service", "postgres", "get", "error")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	metrics.IncDatabaseQuery("order-service", "postgres", "get", "ok")
	return &order, nil
}

func (r *PostgresRepository) Update(ctx context.Context, order *Order) error {
	order.UpdatedAt = time.Now()

	query := `
		UPDATE orders
		SET courier_id = $1, address = $2, state = $3, fare = $4, updated_at = $5
		WHERE id = $6
	`

	res, err := r.db.ExecContext(ctx, query,
		order.CourierID, order.Address, order.State, order.Fare,
		order.UpdatedAt, order.ID,
	)
	if err != nil {
		metrics.IncDatabaseQuery("order-service", "postgres", "update", "error")
		return fmt.Errorf("failed to update order: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("order_id", order.ID)
	}

	metrics.IncDatabaseQuery("order-service", "postgres", "update", "ok")
	return nil
}

func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]Order, error) {
	query := `
		SELECT id, customer_id, courier_id, address, state, fare, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, customerID, normalizeLimit(limit))
}

func (r *PostgresRepository) ListByState(ctx context.Context, state string, limit int) ([]Order, error) {
	query := `
		SELECT id, customer_id, courier_id, address, state, fare, created_at, updated_at
		FROM orders
		WHERE state = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, state, normalizeLimit(limit))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...interface{}) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.IncDatabaseQuery("order-service", "postgres", "list", "error")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var order Order
		if err := rows.Scan(
			&order.ID, &order.CustomerID, &order.CourierID, &order.Address,
			&order.State, &order.Fare, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	metrics.IncDatabaseQuery("order-service", "postgres", "list", "ok")
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > constants.MaxLimit {
		return constants.DefaultLimit
	}
	return limit
}
