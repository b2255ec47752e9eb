package orders

import (
	"time"

	"logiflow/internal/constants"
)

type Order struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	CourierID  *int64    `json:"courier_id,omitempty"`
	Address    string    `json:"address"`
	State      string    `json:"state"`
	Fare       float64   `json:"fare"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CreateOrderRequest struct {
	CustomerID int64   `json:"customer_id" binding:"required"`
	Address    string  `json:"address" binding:"required"`
	Fare       float64 `json:"fare"`
	CourierID  *int64  `json:"courier_id,omitempty"`
}

// UpdateOrderRequest is a partial update: nil fields are left untouched.
// Unknown JSON fields are silently ignored.
type UpdateOrderRequest struct {
	Address   *string  `json:"address,omitempty"`
	State     *string  `json:"state,omitempty"`
	CourierID *int64   `json:"courier_id,omitempty"`
	Fare      *float64 `json:"fare,omitempty"`
}

func (r UpdateOrderRequest) Empty() bool {
	return r.Address == nil && r.State == nil && r.CourierID == nil && r.Fare == nil
}

var validStates = map[string]bool{
	constants.OrderStateReceived:   true,
	constants.OrderStateAssigned:   true,
	constants.OrderStateDelivering: true,
	constants.OrderStateDelivered:  true,
	constants.OrderStateCancelled:  true,
}

func ValidState(state string) bool {
	return validStates[state]
}
