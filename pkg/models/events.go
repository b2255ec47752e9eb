package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewOrderEvent builds an envelope for an order lifecycle event with a fresh
// event id. eventType must be EventOrderCreated or EventOrderUpdated.
func NewOrderEvent(eventType string, p OrderPayload, courierID *int64) (Envelope, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		SubjectID:   p.OrderID,
		SecondaryID: courierID,
		Payload:     body,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// NewLocationEvent builds an envelope for a courier location sample with a
// fresh event id. The secondary id is the associated order, when present.
func NewLocationEvent(p LocationPayload) (Envelope, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:     uuid.New().String(),
		EventType:   EventLocationUpdated,
		SubjectID:   p.CourierID,
		SecondaryID: p.OrderID,
		Payload:     body,
		PublishedAt: time.Now().UTC(),
	}, nil
}
