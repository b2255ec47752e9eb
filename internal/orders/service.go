package orders

import (
	"context"
	"fmt"

	"logiflow/internal/constants"
	pkgerrors "logiflow/pkg/errors"
)

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, id int64) (*Order, error)
	UpdateOrder(ctx context.Context, id int64, req UpdateOrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, id int64) (*Order, error)
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]Order, error)
	ListByState(ctx context.Context, state string, limit int) ([]Order, error)
}

type service struct {
	repo     Repository
	producer *Producer
	fleet    FleetChecker
}

func NewService(repo Repository, producer *Producer, fleet FleetChecker) Service {
	return &service{repo: repo, producer: producer, fleet: fleet}
}

// CreateOrder persists a new order and emits a creation event. New orders
// always start in the RECEIVED state regardless of client input.
func (s *service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.CustomerID <= 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "customer_id must be positive")
	}
	if req.Address == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "address is required")
	}
	if req.Fare < 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "fare must be non-negative")
	}

	if req.CourierID != nil {
		exists, err := s.fleet.CourierExists(ctx, *req.CourierID)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrServiceUnavailable)
		}
		if !exists {
			return nil, pkgerrors.ErrValidation.WithDetail("message",
				fmt.Sprintf("courier %d does not exist", *req.CourierID))
		}
	}

	order := &Order{
		CustomerID: req.CustomerID,
		CourierID:  req.CourierID,
		Address:    req.Address,
		State:      constants.OrderStateReceived,
		Fare:       req.Fare,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.producer.OrderCreated(ctx, order)
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// UpdateOrder applies a partial update. Cancelled orders are immutable.
// An update event is emitted only when the state actually changed.
func (s *service) UpdateOrder(ctx context.Context, id int64, req UpdateOrderRequest) (*Order, error) {
	if req.Empty() {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "no fields to update")
	}
	if req.State != nil && !ValidState(*req.State) {
		return nil, pkgerrors.ErrValidation.WithDetail("message",
			fmt.Sprintf("unknown order state: %s", *req.State))
	}
	if req.Fare != nil && *req.Fare < 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "fare must be non-negative")
	}

	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.State == constants.OrderStateCancelled {
		return nil, pkgerrors.ErrConflict.WithDetail("message", "cancelled orders cannot be updated")
	}

	if req.CourierID != nil {
		exists, err := s.fleet.CourierExists(ctx, *req.CourierID)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrServiceUnavailable)
		}
		if !exists {
			return nil, pkgerrors.ErrValidation.WithDetail("message",
				fmt.Sprintf("courier %d does not exist", *req.CourierID))
		}
	}

	previousState := order.State
	applyUpdate(order, req)

	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}

	if order.State != previousState {
		s.producer.OrderUpdated(ctx, order)
	}
	return order, nil
}

// CancelOrder moves an order to CANCELLED and always emits an update
// event. Cancelling an already cancelled order is a no-op conflict.
func (s *service) CancelOrder(ctx context.Context, id int64) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.State == constants.OrderStateCancelled {
		return nil, pkgerrors.ErrConflict.WithDetail("message", "order is already cancelled")
	}

	order.State = constants.OrderStateCancelled
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}

	s.producer.OrderUpdated(ctx, order)
	return order, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]Order, error) {
	if customerID <= 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "customer_id must be positive")
	}
	return s.repo.ListByCustomer(ctx, customerID, limit)
}

func (s *service) ListByState(ctx context.Context, state string, limit int) ([]Order, error) {
	if !ValidState(state) {
		return nil, pkgerrors.ErrValidation.WithDetail("message",
			fmt.Sprintf("unknown order state: %s", state))
	}
	return s.repo.ListByState(ctx, state, limit)
}

func applyUpdate(order *Order, req UpdateOrderRequest) {
	if req.Address != nil {
		order.Address = *req.Address
	}
	if req.State != nil {
		order.State = *req.State
	}
	if req.CourierID != nil {
		order.CourierID = req.CourierID
	}
	if req.Fare != nil {
		order.Fare = *req.Fare
	}
}
