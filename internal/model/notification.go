package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification statuses. Transitions are monotonic along
// pending -> processing -> {sent, failed, cancelled}, with a retryable
// failure looping processing -> pending until retries are exhausted.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Supported channel types.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelPush     = "push"
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
	ChannelWebhook  = "webhook"
)

// Priority bounds. Lower value means more urgent.
const (
	PriorityHighest = 1
	PriorityDefault = 5
	PriorityLowest  = 10
)

// ChannelTypes lists every recognized channel type.
var ChannelTypes = []string{
	ChannelEmail, ChannelSMS, ChannelPush,
	ChannelTelegram, ChannelDiscord, ChannelWebhook,
}

// KnownChannelType reports whether t is a recognized channel type.
func KnownChannelType(t string) bool {
	for _, ct := range ChannelTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// TerminalStatus reports whether s is a terminal notification status.
func TerminalStatus(s string) bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Notification represents a single unit of delivery work in the queue.
type Notification struct {
	ID           uuid.UUID         `json:"id"`                      // unique identifier for the notification
	UserID       *uuid.UUID        `json:"user_id,omitempty"`       // owning recipient, nil for system broadcasts
	Channel      string            `json:"channel"`                 // delivery channel type, e.g. "email", "telegram"
	Recipient    string            `json:"recipient"`               // channel-specific address: email, chat id, URL
	Subject      string            `json:"subject"`                 // message subject, may be overridden by a template
	Message      string            `json:"message"`                 // resolved message body
	TemplateType string            `json:"template_type,omitempty"` // logical template type, empty for literal messages
	Variables    map[string]string `json:"variables,omitempty"`     // template variables, used when TemplateType is set
	Priority     int               `json:"priority"`                // 1..10, lower dispatched first
	Status       string            `json:"status"`                  // current lifecycle state
	ScheduledFor time.Time         `json:"scheduled_for"`           // item not eligible for dispatch before this time
	RetryCount   int               `json:"retry_count"`             // delivery attempts consumed by failures so far
	MaxRetries   int               `json:"max_retries"`             // retries allowed after the first failure
	LastError    string            `json:"last_error,omitempty"`    // error from the most recent failed attempt
	Metadata     map[string]string `json:"metadata,omitempty"`      // opaque producer-supplied key/value pairs
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
