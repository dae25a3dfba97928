// Package storage defines the persistence contract for the notification
// pipeline. Two implementations exist: postgres (durable) and memory
// (test double / single-node mode). Business rules that both must honor,
// such as the status state machine and the retry bound, live in the
// contract below, not in callers.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"signal-notifier/internal/model"
)

var (
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned on an illegal status transition, e.g.
	// cancelling an item that already reached a terminal state.
	ErrInvalidState = errors.New("invalid state transition")
)

// Queue is the durable, priority-ordered holding area for delivery work.
type Queue interface {
	// Enqueue persists a pending item and returns its ID.
	Enqueue(ctx context.Context, n model.Notification) (uuid.UUID, error)

	// ClaimReady atomically transitions up to limit eligible items
	// (status pending, scheduled_for <= now) to processing and returns
	// them ordered by priority ascending, then scheduled_for ascending.
	// Two concurrent callers never receive the same item. A limit of
	// zero or less claims nothing.
	ClaimReady(ctx context.Context, limit int) ([]model.Notification, error)

	// MarkSent moves a processing item to the terminal sent state.
	MarkSent(ctx context.Context, id uuid.UUID) error

	// MarkFailed records a failed attempt on a processing item. While
	// retry_count < max_retries it increments the counter and returns the
	// item to pending with scheduled_for set to nextAttempt; otherwise the
	// item becomes terminally failed and the counter is left untouched.
	// Returns the resulting status and retry count.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time) (string, int, error)

	// FailPermanently moves a processing item straight to the terminal
	// failed state, bypassing the retry budget. Used for errors retrying
	// cannot fix, e.g. a structurally invalid recipient.
	FailPermanently(ctx context.Context, id uuid.UUID, errMsg string) error

	// Cancel moves a pending or processing item to cancelled.
	// ErrInvalidState if the item is already terminal.
	Cancel(ctx context.Context, id uuid.UUID) error

	// RetryFailed resets a terminally failed item back to pending with a
	// zero retry count. ErrInvalidState unless status is failed.
	RetryFailed(ctx context.Context, id uuid.UUID) error

	GetByID(ctx context.Context, id uuid.UUID) (model.Notification, error)
	GetByStatus(ctx context.Context, status string, limit int) ([]model.Notification, error)
	GetFailed(ctx context.Context, minRetryCount int) ([]model.Notification, error)
	CountByStatus(ctx context.Context, status string) (int, error)

	// PurgeTerminal deletes sent/failed/cancelled items whose last update
	// is older than the cutoff and returns the number removed.
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)

	// ReleaseStale requeues processing items whose last update predates
	// olderThan and returns the number requeued. Such items were claimed
	// by a worker that died mid-delivery; the retry budget is left
	// untouched because the attempt's outcome is unknown. A delivery that
	// completed just before the crash may be repeated.
	ReleaseStale(ctx context.Context, olderThan time.Time) (int, error)
}

// ChannelRegistry stores configured delivery channels and their health.
// Counter updates are atomic increments so concurrent workers never lose
// updates to a stale read-modify-write copy.
type ChannelRegistry interface {
	CreateChannel(ctx context.Context, ch model.Channel) (uuid.UUID, error)
	UpdateChannel(ctx context.Context, ch model.Channel) error
	GetChannel(ctx context.Context, id uuid.UUID) (model.Channel, error)
	GetChannels(ctx context.Context) ([]model.Channel, error)

	// ResolveChannel returns the first enabled, healthy channel of the
	// given type in creation order. ErrNotFound when none qualifies.
	ResolveChannel(ctx context.Context, channelType string) (model.Channel, error)

	// RecordSuccess increments success_count, clears the consecutive
	// failure streak and marks the channel healthy.
	RecordSuccess(ctx context.Context, id uuid.UUID) error

	// RecordFailure increments error_count and the failure streak, stores
	// the error, and flips is_healthy to false once the streak reaches
	// threshold.
	RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, threshold int) error

	// SetHealth records a health probe outcome without touching the
	// delivery counters.
	SetHealth(ctx context.Context, id uuid.UUID, healthy bool, errMsg string) error
}

// TemplateStore persists reusable message templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t model.Template) (uuid.UUID, error)
	GetTemplateByType(ctx context.Context, templateType string) (model.Template, error)
	GetTemplates(ctx context.Context) ([]model.Template, error)
}

// DeliveryLog is the append-only audit trail, one row per attempt.
type DeliveryLog interface {
	AppendLog(ctx context.Context, entry model.DeliveryLog) error
	GetLogs(ctx context.Context, limit int) ([]model.DeliveryLog, error)
	GetStats(ctx context.Context, from, to time.Time) (model.Stats, error)
}

// Storage bundles the four capability sets behind one constructor-friendly
// interface.
type Storage interface {
	Queue
	ChannelRegistry
	TemplateStore
	DeliveryLog
}
