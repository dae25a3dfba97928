// Package notification implements the application service behind the API:
// enqueue validation, status caching, queue management operations and
// channel administration.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"signal-notifier/internal/model"
	"signal-notifier/internal/rabbitmq/queue"
	"signal-notifier/internal/storage"
)

var (
	// ErrUnknownChannel is returned when the requested channel type is not
	// one of the supported transports.
	ErrUnknownChannel = errors.New("unknown channel type")

	// ErrEmptyRecipient is returned when the notification has no recipient.
	ErrEmptyRecipient = errors.New("recipient must not be empty")

	// ErrEmptyMessage is returned when neither a message body nor a
	// template type is provided.
	ErrEmptyMessage = errors.New("message or template type required")

	// ErrInvalidPriority is returned when priority falls outside 1..10.
	ErrInvalidPriority = errors.New("priority must be between 1 and 10")
)

type wakePublisher interface {
	Publish(msg queue.WakeMessage, strategy retry.Strategy) error
}

type channelTester interface {
	Test(ctx context.Context, channelID uuid.UUID) error
}

type cache interface {
	SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error
	GetWithRetry(ctx context.Context, strategy retry.Strategy, key string) (string, error)
}

// Service coordinates the queue storage, the status cache and the wake-up
// broker behind the HTTP API.
type Service struct {
	storage  storage.Storage
	queue    wakePublisher
	registry channelTester
	cache    cache
}

// NewService wires the service dependencies together.
func NewService(
	st storage.Storage,
	wake wakePublisher,
	registry channelTester,
	cache cache,
) *Service {
	return &Service{storage: st, queue: wake, registry: registry, cache: cache}
}

// Enqueue validates and persists a notification, then wakes dispatchers.
// A cache or broker failure is logged and swallowed: the item is durable
// and pollers will pick it up regardless.
func (s *Service) Enqueue(ctx context.Context, strategy retry.Strategy, n model.Notification) (uuid.UUID, error) {
	if err := validate(&n); err != nil {
		return uuid.Nil, err
	}

	id, err := s.storage.Enqueue(ctx, n)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue notification: %w", err)
	}

	err = s.cache.SetWithRetry(ctx, strategy, id.String(), model.StatusPending)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache notification status")
	}

	msg := queue.WakeMessage{ID: id, EnqueuedAt: time.Now()}
	if err := s.queue.Publish(msg, strategy); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to publish wake-up")
	}

	return id, nil
}

func validate(n *model.Notification) error {
	if !model.KnownChannelType(n.Channel) {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, n.Channel)
	}
	if n.Recipient == "" {
		return ErrEmptyRecipient
	}
	if n.Message == "" && n.TemplateType == "" {
		return ErrEmptyMessage
	}

	if n.Priority == 0 {
		n.Priority = model.PriorityDefault
	}
	if n.Priority < model.PriorityHighest || n.Priority > model.PriorityLowest {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, n.Priority)
	}

	if n.ScheduledFor.IsZero() {
		n.ScheduledFor = time.Now()
	}

	return nil
}

// GetStatus returns the current status of a notification, consulting the
// cache before storage.
func (s *Service) GetStatus(ctx context.Context, strategy retry.Strategy, id uuid.UUID) (string, error) {
	status, err := s.cache.GetWithRetry(ctx, strategy, id.String())
	if err != nil && !errors.Is(err, redis.Nil) {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get notification status from cache")
	}

	if err != nil {
		n, err := s.storage.GetByID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("get notification: %w", err)
		}
		status = n.Status

		err = s.cache.SetWithRetry(ctx, strategy, id.String(), status)
		if err != nil {
			zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache notification status")
		}
	}

	return status, nil
}

// GetByID returns one notification.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	return s.storage.GetByID(ctx, id)
}

// GetQueue returns up to limit items in the given status; when status is
// empty it returns pending items.
func (s *Service) GetQueue(ctx context.Context, status string, limit int) ([]model.Notification, error) {
	if status == "" {
		status = model.StatusPending
	}

	items, err := s.storage.GetByStatus(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return items, nil
}

// GetFailed returns terminally failed items with at least minRetryCount
// recorded attempts.
func (s *Service) GetFailed(ctx context.Context, minRetryCount int) ([]model.Notification, error) {
	items, err := s.storage.GetFailed(ctx, minRetryCount)
	if err != nil {
		return nil, fmt.Errorf("list failed notifications: %w", err)
	}

	return items, nil
}

// Cancel withdraws a pending or processing notification.
func (s *Service) Cancel(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error {
	if err := s.storage.Cancel(ctx, id); err != nil {
		return err
	}

	s.syncStatus(ctx, strategy, id, model.StatusCancelled)
	return nil
}

// Retry re-queues a terminally failed notification with a fresh retry
// budget and wakes dispatchers.
func (s *Service) Retry(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error {
	if err := s.storage.RetryFailed(ctx, id); err != nil {
		return err
	}

	s.syncStatus(ctx, strategy, id, model.StatusPending)

	msg := queue.WakeMessage{ID: id, EnqueuedAt: time.Now()}
	if err := s.queue.Publish(msg, strategy); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to publish wake-up")
	}

	return nil
}

// GetStats aggregates delivery outcomes over the given window. Zero
// bounds leave that side of the window open.
func (s *Service) GetStats(ctx context.Context, from, to time.Time) (model.Stats, error) {
	return s.storage.GetStats(ctx, from, to)
}

// GetLogs returns the most recent delivery log entries.
func (s *Service) GetLogs(ctx context.Context, limit int) ([]model.DeliveryLog, error) {
	return s.storage.GetLogs(ctx, limit)
}

// ListChannels returns every configured channel.
func (s *Service) ListChannels(ctx context.Context) ([]model.Channel, error) {
	return s.storage.GetChannels(ctx)
}

// CreateChannel registers a delivery channel.
func (s *Service) CreateChannel(ctx context.Context, ch model.Channel) (uuid.UUID, error) {
	if !model.KnownChannelType(ch.Type) {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ch.Type)
	}

	return s.storage.CreateChannel(ctx, ch)
}

// UpdateChannel changes channel configuration.
func (s *Service) UpdateChannel(ctx context.Context, ch model.Channel) error {
	return s.storage.UpdateChannel(ctx, ch)
}

// TestChannel probes a channel's transport on demand and records the
// outcome.
func (s *Service) TestChannel(ctx context.Context, id uuid.UUID) error {
	return s.registry.Test(ctx, id)
}

// SetStatus refreshes the cached status after a worker-side transition.
func (s *Service) SetStatus(ctx context.Context, strategy retry.Strategy, id uuid.UUID, status string) {
	s.syncStatus(ctx, strategy, id, status)
}

func (s *Service) syncStatus(ctx context.Context, strategy retry.Strategy, id uuid.UUID, status string) {
	err := s.cache.SetWithRetry(ctx, strategy, id.String(), status)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache notification status")
	}
}
