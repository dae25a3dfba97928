package notification

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"signal-notifier/internal/model"
	"signal-notifier/internal/rabbitmq/queue"
	"signal-notifier/internal/storage/memory"
)

type fakePublisher struct {
	published []queue.WakeMessage
}

func (p *fakePublisher) Publish(msg queue.WakeMessage, _ retry.Strategy) error {
	p.published = append(p.published, msg)
	return nil
}

type fakeTester struct {
	tested []uuid.UUID
}

func (f *fakeTester) Test(_ context.Context, id uuid.UUID) error {
	f.tested = append(f.tested, id)
	return nil
}

// fakeCache is a map-backed cache with redis.Nil miss semantics.
type fakeCache struct {
	entries map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) SetWithRetry(_ context.Context, _ retry.Strategy, key string, value interface{}) error {
	c.entries[key] = value.(string)
	return nil
}

func (c *fakeCache) GetWithRetry(_ context.Context, _ retry.Strategy, key string) (string, error) {
	v, ok := c.entries[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func setupService() (*Service, *memory.Store, *fakePublisher, *fakeCache) {
	store := memory.New()
	pub := &fakePublisher{}
	cache := newFakeCache()
	svc := NewService(store, pub, &fakeTester{}, cache)
	return svc, store, pub, cache
}

func TestService_Enqueue(t *testing.T) {
	svc, store, pub, cache := setupService()
	strategy := retry.Strategy{}

	id, err := svc.Enqueue(context.Background(), strategy, model.Notification{
		Channel:   model.ChannelEmail,
		Recipient: "user@example.com",
		Message:   "BTC crossed 100000",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	n, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, n.Status)
	assert.Equal(t, model.PriorityDefault, n.Priority)
	assert.False(t, n.ScheduledFor.IsZero())

	require.Len(t, pub.published, 1)
	assert.Equal(t, id, pub.published[0].ID)
	assert.Equal(t, model.StatusPending, cache.entries[id.String()])
}

func TestService_Enqueue_Validation(t *testing.T) {
	svc, _, pub, _ := setupService()
	strategy := retry.Strategy{}
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, strategy, model.Notification{
		Channel: "pigeon", Recipient: "r", Message: "m",
	})
	assert.ErrorIs(t, err, ErrUnknownChannel)

	_, err = svc.Enqueue(ctx, strategy, model.Notification{
		Channel: model.ChannelEmail, Message: "m",
	})
	assert.ErrorIs(t, err, ErrEmptyRecipient)

	_, err = svc.Enqueue(ctx, strategy, model.Notification{
		Channel: model.ChannelEmail, Recipient: "r",
	})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Enqueue(ctx, strategy, model.Notification{
		Channel: model.ChannelEmail, Recipient: "r", Message: "m", Priority: 11,
	})
	assert.ErrorIs(t, err, ErrInvalidPriority)

	// Nothing invalid reached the broker.
	assert.Empty(t, pub.published)
}

func TestService_Enqueue_TemplateOnlyIsValid(t *testing.T) {
	svc, _, _, _ := setupService()

	_, err := svc.Enqueue(context.Background(), retry.Strategy{}, model.Notification{
		Channel:      model.ChannelTelegram,
		Recipient:    "12345",
		TemplateType: "price_alert",
		Variables:    map[string]string{"symbol": "BTC"},
	})
	assert.NoError(t, err)
}

func TestService_GetStatus_CacheHit(t *testing.T) {
	svc, _, _, cache := setupService()
	strategy := retry.Strategy{}

	id := uuid.New()
	cache.entries[id.String()] = model.StatusSent

	status, err := svc.GetStatus(context.Background(), strategy, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, status)
}

func TestService_GetStatus_CacheMissFallsBack(t *testing.T) {
	svc, store, _, cache := setupService()
	strategy := retry.Strategy{}
	ctx := context.Background()

	id, err := store.Enqueue(ctx, model.Notification{
		Channel: model.ChannelEmail, Recipient: "user@example.com", Message: "m",
	})
	require.NoError(t, err)
	delete(cache.entries, id.String())

	status, err := svc.GetStatus(ctx, strategy, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	// The miss re-populated the cache.
	assert.Equal(t, model.StatusPending, cache.entries[id.String()])
}

func TestService_Cancel_SyncsCache(t *testing.T) {
	svc, store, _, cache := setupService()
	strategy := retry.Strategy{}
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, strategy, model.Notification{
		Channel: model.ChannelEmail, Recipient: "user@example.com", Message: "m",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, strategy, id))

	n, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, n.Status)
	assert.Equal(t, model.StatusCancelled, cache.entries[id.String()])
}

func TestService_Retry_RewakesDispatchers(t *testing.T) {
	svc, store, pub, _ := setupService()
	strategy := retry.Strategy{}
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, strategy, model.Notification{
		Channel: model.ChannelEmail, Recipient: "user@example.com",
		Message: "m", MaxRetries: 0,
	})
	require.NoError(t, err)

	_, err = store.ClaimReady(ctx, 1)
	require.NoError(t, err)
	_, _, err = store.MarkFailed(ctx, id, "boom", time.Now())
	require.NoError(t, err)

	require.NoError(t, svc.Retry(ctx, strategy, id))

	n, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, n.Status)
	assert.Equal(t, 0, n.RetryCount)

	// One wake from the enqueue, one from the retry.
	assert.Len(t, pub.published, 2)
}

func TestService_CreateChannel_RejectsUnknownType(t *testing.T) {
	svc, _, _, _ := setupService()

	_, err := svc.CreateChannel(context.Background(), model.Channel{
		Name: "carrier pigeon", Type: "pigeon",
	})
	assert.ErrorIs(t, err, ErrUnknownChannel)
}
