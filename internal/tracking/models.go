package tracking

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"logiflow/internal/constants"
)

type Location struct {
	ID         primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	CourierID  int64              `json:"courier_id" bson:"courier_id"`
	Lat        float64            `json:"lat" bson:"lat"`
	Lng        float64            `json:"lng" bson:"lng"`
	State      string             `json:"state" bson:"state"`
	OrderID    *int64             `json:"order_id,omitempty" bson:"order_id,omitempty"`
	Speed      *float64           `json:"speed,omitempty" bson:"speed,omitempty"`
	Address    string             `json:"address,omitempty" bson:"address,omitempty"`
	RecordedAt time.Time          `json:"recorded_at" bson:"recorded_at"`
}

type RecordLocationRequest struct {
	CourierID int64    `json:"courier_id" binding:"required"`
	Lat       float64  `json:"lat" binding:"required"`
	Lng       float64  `json:"lng" binding:"required"`
	State     string   `json:"state,omitempty"`
	OrderID   *int64   `json:"order_id,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Address   string   `json:"address,omitempty"`
}

var validCourierStates = map[string]bool{
	constants.CourierStateEnRoute:    true,
	constants.CourierStateDelivering: true,
	constants.CourierStateIdle:       true,
}

func ValidCourierState(state string) bool {
	return validCourierStates[state]
}
