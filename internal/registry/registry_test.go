package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-notifier/internal/model"
	"signal-notifier/internal/storage/memory"
)

type probeAdapter struct {
	channelType string
	probeErr    error
}

func (a *probeAdapter) Type() string                                  { return a.channelType }
func (a *probeAdapter) Deliver(context.Context, string, string, string) error { return nil }
func (a *probeAdapter) HealthCheck(context.Context) error             { return a.probeErr }

func TestResolve(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	id, err := store.CreateChannel(ctx, model.Channel{
		Name: "primary-smtp", Type: model.ChannelEmail, IsEnabled: true, IsHealthy: true,
	})
	require.NoError(t, err)

	reg := New(store, 5, &probeAdapter{channelType: model.ChannelEmail})

	ch, adapter, err := reg.Resolve(ctx, model.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, id, ch.ID)
	assert.Equal(t, model.ChannelEmail, adapter.Type())
}

func TestResolve_NoAdapter(t *testing.T) {
	reg := New(memory.New(), 5)

	_, _, err := reg.Resolve(context.Background(), model.ChannelSMS)
	assert.ErrorIs(t, err, ErrNoAdapter)
}

func TestResolve_NoHealthyChannel(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := store.CreateChannel(ctx, model.Channel{
		Name: "down", Type: model.ChannelEmail, IsEnabled: true, IsHealthy: false,
	})
	require.NoError(t, err)

	reg := New(store, 5, &probeAdapter{channelType: model.ChannelEmail})

	_, _, err = reg.Resolve(ctx, model.ChannelEmail)
	assert.ErrorIs(t, err, ErrNoHealthyChannel)
}

func TestTest_RecordsProbeOutcome(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	id, err := store.CreateChannel(ctx, model.Channel{
		Name: "primary-smtp", Type: model.ChannelEmail, IsEnabled: true, IsHealthy: true,
	})
	require.NoError(t, err)

	adapter := &probeAdapter{channelType: model.ChannelEmail, probeErr: errors.New("dial tcp: refused")}
	reg := New(store, 5, adapter)

	err = reg.Test(ctx, id)
	require.Error(t, err)

	ch, err := store.GetChannel(ctx, id)
	require.NoError(t, err)
	assert.False(t, ch.IsHealthy)
	assert.Equal(t, "dial tcp: refused", ch.LastError)
	assert.False(t, ch.LastHealthCheck.IsZero())

	// A passing probe restores the channel.
	adapter.probeErr = nil
	require.NoError(t, reg.Test(ctx, id))

	ch, err = store.GetChannel(ctx, id)
	require.NoError(t, err)
	assert.True(t, ch.IsHealthy)
	assert.Empty(t, ch.LastError)
}
