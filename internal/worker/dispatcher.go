// Package worker runs the delivery side of the pipeline: the dispatcher
// claims ready notifications and drives them through channel adapters,
// the janitor purges old terminal items.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/time/rate"

	"signal-notifier/internal/delivery"
	"signal-notifier/internal/model"
	"signal-notifier/internal/rabbitmq/queue"
	"signal-notifier/internal/registry"
	"signal-notifier/internal/storage"
	"signal-notifier/internal/template"
)

type wakeConsumer interface {
	Consume(out chan<- queue.WakeMessage, strategy retry.Strategy) error
}

type statusCache interface {
	SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error
}

// Config holds dispatcher tuning knobs.
type Config struct {
	Workers         int           // delivery goroutines
	BatchSize       int           // max items claimed per poll
	PollInterval    time.Duration // queue poll cadence
	DeliveryTimeout time.Duration // budget for one delivery attempt
	BackoffBase     time.Duration // first retry delay
	BackoffMax      time.Duration // retry delay ceiling
	RatePerSecond   float64       // per channel type delivery rate, 0 disables limiting
}

// Dispatcher claims ready notifications and delivers them through the
// channel registry. Claims are atomic in storage, so several dispatcher
// instances can run against the same database.
type Dispatcher struct {
	storage   storage.Storage
	registry  *registry.Registry
	templates *template.Store
	wake      wakeConsumer
	cache     statusCache
	strategy  retry.Strategy
	cfg       Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // per channel type
}

// NewDispatcher wires a dispatcher together.
func NewDispatcher(
	st storage.Storage,
	reg *registry.Registry,
	templates *template.Store,
	wake wakeConsumer,
	cache statusCache,
	strategy retry.Strategy,
	cfg Config,
) *Dispatcher {
	return &Dispatcher{
		storage:   st,
		registry:  reg,
		templates: templates,
		wake:      wake,
		cache:     cache,
		strategy:  strategy,
		cfg:       cfg,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Run polls the queue until ctx is cancelled. Wake-up messages from the
// broker trigger an immediate poll between ticks.
func (d *Dispatcher) Run(ctx context.Context) {
	items := make(chan model.Notification, d.cfg.Workers*2)
	wakeChan := make(chan queue.WakeMessage, d.cfg.BatchSize)

	if d.wake != nil {
		go func() {
			if err := d.wake.Consume(wakeChan, d.strategy); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to consume wake-up messages")
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			zlog.Logger.Printf("worker-%d started", id)

			for {
				select {
				case <-ctx.Done():
					zlog.Logger.Printf("worker-%d shutting down", id)
					return
				case n, ok := <-items:
					if !ok {
						return
					}
					d.process(ctx, n)
				}
			}
		}(i)
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(items)
			wg.Wait()
			zlog.Logger.Info().Msg("dispatcher stopped")
			return
		case <-ticker.C:
			d.claim(ctx, items)
		case <-wakeChan:
			// Drain coalesced wake-ups so a burst of enqueues costs one claim.
			for len(wakeChan) > 0 {
				<-wakeChan
			}
			d.claim(ctx, items)
		}
	}
}

func (d *Dispatcher) claim(ctx context.Context, items chan<- model.Notification) {
	batch, err := d.storage.ClaimReady(ctx, d.cfg.BatchSize)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to claim notifications")
		return
	}

	for _, n := range batch {
		select {
		case <-ctx.Done():
			return
		case items <- n:
		}
	}
}

// process runs one delivery attempt end to end. An error on one item never
// affects the rest of the batch.
func (d *Dispatcher) process(ctx context.Context, n model.Notification) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	subject, body, err := d.render(attemptCtx, n)
	if err != nil {
		d.fail(ctx, n, uuid.Nil, fmt.Errorf("render message: %w", err))
		return
	}

	ch, adapter, err := d.registry.Resolve(attemptCtx, n.Channel)
	if err != nil {
		d.fail(ctx, n, uuid.Nil, err)
		return
	}

	if limiter := d.limiter(n.Channel); limiter != nil {
		if err := limiter.Wait(attemptCtx); err != nil {
			d.fail(ctx, n, uuid.Nil, fmt.Errorf("rate limit wait: %w", err))
			return
		}
	}

	if err := adapter.Deliver(attemptCtx, n.Recipient, subject, body); err != nil {
		d.fail(ctx, n, ch.ID, err)
		return
	}

	d.succeed(ctx, n, ch.ID)
}

// render resolves the message content. Items carrying a template type are
// rendered against the stored template; a missing template or variable is
// a retryable failure so that fixing the template rescues queued items.
func (d *Dispatcher) render(ctx context.Context, n model.Notification) (string, string, error) {
	if n.TemplateType == "" {
		return n.Subject, n.Message, nil
	}

	subject, body, err := d.templates.Render(ctx, n.TemplateType, n.Variables)
	if err != nil {
		return "", "", err
	}

	if subject == "" {
		subject = n.Subject
	}
	return subject, body, nil
}

func (d *Dispatcher) succeed(ctx context.Context, n model.Notification, channelID uuid.UUID) {
	if err := d.storage.MarkSent(ctx, n.ID); err != nil {
		// Lost the race with a cancel. The adapter call still happened, so
		// log the attempt under its own outcome, but leave the item's
		// status and the channel counters alone.
		d.appendLog(ctx, n, model.LogStatusSentAfterCancel, "")
		zlog.Logger.Warn().Err(err).Str("id", n.ID.String()).Msg("failed to mark notification sent")
		return
	}

	if err := d.registry.ReportSuccess(ctx, channelID); err != nil {
		zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to record channel success")
	}

	d.appendLog(ctx, n, model.LogStatusSent, "")
	d.syncStatus(ctx, n.ID, model.StatusSent)

	zlog.Logger.Info().
		Str("id", n.ID.String()).
		Str("channel", n.Channel).
		Msg("notification sent")
}

func (d *Dispatcher) fail(ctx context.Context, n model.Notification, channelID uuid.UUID, deliveryErr error) {
	if channelID != uuid.Nil {
		if err := d.registry.ReportFailure(ctx, channelID, deliveryErr); err != nil {
			zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to record channel failure")
		}
	}

	d.appendLog(ctx, n, model.LogStatusFailed, deliveryErr.Error())

	if delivery.IsPermanent(deliveryErr) {
		if err := d.storage.FailPermanently(ctx, n.ID, deliveryErr.Error()); err != nil {
			zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to mark notification failed")
			return
		}
		d.syncStatus(ctx, n.ID, model.StatusFailed)

		zlog.Logger.Warn().
			Err(deliveryErr).
			Str("id", n.ID.String()).
			Msg("notification failed permanently")
		return
	}

	nextAttempt := time.Now().Add(Backoff(n.RetryCount, d.cfg.BackoffBase, d.cfg.BackoffMax))
	status, retryCount, err := d.storage.MarkFailed(ctx, n.ID, deliveryErr.Error(), nextAttempt)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to mark notification failed")
		return
	}

	d.syncStatus(ctx, n.ID, status)

	zlog.Logger.Warn().
		Err(deliveryErr).
		Str("id", n.ID.String()).
		Str("status", status).
		Int("retry_count", retryCount).
		Msg("delivery attempt failed")
}

func (d *Dispatcher) appendLog(ctx context.Context, n model.Notification, status, errMsg string) {
	entry := model.DeliveryLog{
		NotificationID: &n.ID,
		UserID:         n.UserID,
		Channel:        n.Channel,
		Recipient:      n.Recipient,
		Status:         status,
		ErrorMessage:   errMsg,
	}

	if err := d.storage.AppendLog(ctx, entry); err != nil {
		zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to append delivery log")
	}
}

func (d *Dispatcher) syncStatus(ctx context.Context, id uuid.UUID, status string) {
	if d.cache == nil {
		return
	}
	if err := d.cache.SetWithRetry(ctx, d.strategy, id.String(), status); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache notification status")
	}
}

func (d *Dispatcher) limiter(channelType string) *rate.Limiter {
	if d.cfg.RatePerSecond <= 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[channelType]
	if !ok {
		l = rate.NewLimiter(rate.Limit(d.cfg.RatePerSecond), 1)
		d.limiters[channelType] = l
	}
	return l
}
