package model

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a configured delivery transport. The registry may hold several
// channels of the same type; at most one enabled healthy channel serves a
// given notification at dispatch time.
type Channel struct {
	ID                  uuid.UUID         `json:"id"`
	Name                string            `json:"name"`
	Type                string            `json:"type"`     // same enum as Notification.Channel
	Provider            string            `json:"provider"` // implementation identifier, e.g. "smtp", "twilio"
	Config              map[string]string `json:"config,omitempty"`
	IsEnabled           bool              `json:"is_enabled"`
	IsHealthy           bool              `json:"is_healthy"`
	ErrorCount          int               `json:"error_count"`   // cumulative failed deliveries
	SuccessCount        int               `json:"success_count"` // cumulative successful deliveries
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastError           string            `json:"last_error,omitempty"`
	LastHealthCheck     time.Time         `json:"last_health_check"`
	HealthCheckInterval time.Duration     `json:"health_check_interval"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}
