package model

import (
	"time"

	"github.com/google/uuid"
)

// Template is a reusable message shape for a logical notification type,
// e.g. "buy_signal". Subject and Content may reference variables with
// {{name}} placeholders; every referenced name must appear in Variables.
type Template struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // logical notification type resolved at dispatch
	Subject   string    `json:"subject"`
	Content   string    `json:"content"`
	Variables []string  `json:"variables"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
