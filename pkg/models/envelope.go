package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventOrderCreated    = "order.created"
	EventOrderUpdated    = "order.updated"
	EventLocationUpdated = "location.updated"
)

// Envelope is the wire format shared by every producer and consumer.
// EventID is generated once by the producer and never reused; it is the
// sole idempotency key on the consumer side.
type Envelope struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	SubjectID   int64           `json:"subject_id"`
	SecondaryID *int64          `json:"secondary_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

func (e *Envelope) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("envelope missing event_id")
	}
	switch e.EventType {
	case EventOrderCreated, EventOrderUpdated, EventLocationUpdated:
	default:
		return fmt.Errorf("unknown event type: %q", e.EventType)
	}
	return nil
}

// OrderPayload carries the full order snapshot for order lifecycle events.
type OrderPayload struct {
	OrderID    int64   `json:"order_id"`
	CustomerID int64   `json:"customer_id"`
	State      string  `json:"state"`
	Address    string  `json:"address"`
	Fare       float64 `json:"fare"`
}

// LocationPayload carries a courier position sample. OrderID is nil when the
// update is not associated with any order.
type LocationPayload struct {
	CourierID int64    `json:"courier_id"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	State     string   `json:"state"`
	OrderID   *int64   `json:"order_id,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Address   string   `json:"address,omitempty"`
}

func (e *Envelope) OrderPayload() (*OrderPayload, error) {
	if e.EventType != EventOrderCreated && e.EventType != EventOrderUpdated {
		return nil, fmt.Errorf("event %s carries no order payload", e.EventType)
	}
	var p OrderPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode order payload: %w", err)
	}
	return &p, nil
}

func (e *Envelope) LocationPayload() (*LocationPayload, error) {
	if e.EventType != EventLocationUpdated {
		return nil, fmt.Errorf("event %s carries no location payload", e.EventType)
	}
	var p LocationPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode location payload: %w", err)
	}
	return &p, nil
}
