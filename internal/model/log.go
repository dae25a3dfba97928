package model

import (
	"time"

	"github.com/google/uuid"
)

// Delivery log statuses. A log row records one attempt, so retries produce
// multiple rows for the same notification. sent_after_cancel marks an
// attempt that delivered successfully but whose item had been cancelled
// while the delivery was in flight.
const (
	LogStatusSent            = "sent"
	LogStatusFailed          = "failed"
	LogStatusSentAfterCancel = "sent_after_cancel"
)

// DeliveryLog is an immutable audit record of a single delivery attempt.
type DeliveryLog struct {
	ID             uuid.UUID  `json:"id"`
	NotificationID *uuid.UUID `json:"notification_id,omitempty"` // nil when a failure predates a persisted item
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	Channel        string     `json:"channel"`
	Recipient      string     `json:"recipient"`
	Status         string     `json:"status"` // sent, failed or sent_after_cancel
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ChannelStats is the per-channel slice of delivery statistics.
type ChannelStats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Stats aggregates delivery outcomes over a date range, plus the current
// pending backlog.
type Stats struct {
	Total       int                     `json:"total"`
	Sent        int                     `json:"sent"`
	Failed      int                     `json:"failed"`
	Pending     int                     `json:"pending"`
	SuccessRate float64                 `json:"success_rate"`
	PerChannel  map[string]ChannelStats `json:"per_channel"`
}
