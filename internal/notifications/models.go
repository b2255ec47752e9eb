package notifications

import "time"

const (
	ChannelEmail = "EMAIL"
	ChannelSMS   = "SMS"
	ChannelPush  = "PUSH"
)

const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

type Notification struct {
	ID              int64      `json:"id"`
	OriginEventID   string     `json:"origin_event_id"`
	OriginEventType string     `json:"origin_event_type"`
	Recipient       string     `json:"recipient"`
	Channel         string     `json:"channel"`
	Subject         string     `json:"subject"`
	Message         string     `json:"message"`
	Status          string     `json:"status"`
	Detail          string     `json:"detail,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

var validStatuses = map[string]bool{
	StatusPending: true,
	StatusSent:    true,
	StatusFailed:  true,
}

func ValidStatus(status string) bool {
	return validStatuses[status]
}
