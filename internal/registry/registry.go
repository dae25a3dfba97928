// Package registry pairs configured channels with the adapters able to
// serve them and keeps channel health current, both from delivery
// outcomes and from periodic background probes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"signal-notifier/internal/delivery"
	"signal-notifier/internal/model"
	"signal-notifier/internal/storage"
)

// ErrNoHealthyChannel is returned when no enabled healthy channel of the
// requested type exists.
var ErrNoHealthyChannel = errors.New("no healthy channel available")

// ErrNoAdapter is returned when a channel's type has no adapter wired in.
var ErrNoAdapter = errors.New("no adapter for channel type")

// Registry resolves notifications to a concrete (channel, adapter) pair
// and records delivery outcomes against channel health.
type Registry struct {
	channels  storage.ChannelRegistry
	adapters  map[string]delivery.Adapter
	threshold int // consecutive failures before a channel is unhealthy
}

// New builds a registry over the given channel store. Threshold is the
// consecutive failure streak at which a channel flips unhealthy.
func New(channels storage.ChannelRegistry, threshold int, adapters ...delivery.Adapter) *Registry {
	byType := make(map[string]delivery.Adapter, len(adapters))
	for _, a := range adapters {
		byType[a.Type()] = a
	}

	return &Registry{
		channels:  channels,
		adapters:  byType,
		threshold: threshold,
	}
}

// Resolve picks the channel serving channelType and the adapter able to
// drive it. ErrNoHealthyChannel when every channel of the type is disabled
// or unhealthy; ErrNoAdapter when the type has no transport wired in.
func (r *Registry) Resolve(ctx context.Context, channelType string) (model.Channel, delivery.Adapter, error) {
	adapter, ok := r.adapters[channelType]
	if !ok {
		return model.Channel{}, nil, fmt.Errorf("%w: %s", ErrNoAdapter, channelType)
	}

	ch, err := r.channels.ResolveChannel(ctx, channelType)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Channel{}, nil, fmt.Errorf("%w: %s", ErrNoHealthyChannel, channelType)
		}
		return model.Channel{}, nil, fmt.Errorf("resolve channel: %w", err)
	}

	return ch, adapter, nil
}

// ReportSuccess records a successful delivery through the channel.
func (r *Registry) ReportSuccess(ctx context.Context, channelID uuid.UUID) error {
	return r.channels.RecordSuccess(ctx, channelID)
}

// ReportFailure records a failed delivery through the channel. Once the
// consecutive failure streak reaches the threshold the channel is marked
// unhealthy and stops being resolved until it recovers.
func (r *Registry) ReportFailure(ctx context.Context, channelID uuid.UUID, deliveryErr error) error {
	return r.channels.RecordFailure(ctx, channelID, deliveryErr.Error(), r.threshold)
}

// Test runs the transport health probe for one channel on demand and
// stores the outcome. Returns the probe error, if any, so callers can
// surface it.
func (r *Registry) Test(ctx context.Context, channelID uuid.UUID) error {
	ch, err := r.channels.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}

	adapter, ok := r.adapters[ch.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, ch.Type)
	}

	probeErr := adapter.HealthCheck(ctx)

	msg := ""
	if probeErr != nil {
		msg = probeErr.Error()
	}
	if err := r.channels.SetHealth(ctx, channelID, probeErr == nil, msg); err != nil {
		return fmt.Errorf("record health probe: %w", err)
	}

	return probeErr
}

// Prober periodically re-probes channels so that ones knocked unhealthy
// by delivery failures can recover without traffic.
type Prober struct {
	registry *Registry
	interval time.Duration // sweep cadence; per-channel intervals gate actual probes
	timeout  time.Duration // budget for a single probe
}

// NewProber builds a background health prober sweeping at the given
// interval.
func NewProber(registry *Registry, interval, timeout time.Duration) *Prober {
	return &Prober{
		registry: registry,
		interval: interval,
		timeout:  timeout,
	}
}

// Run probes channels until ctx is cancelled. A channel is probed when its
// own HealthCheckInterval has elapsed since the last probe.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("health prober stopped")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Prober) sweep(ctx context.Context) {
	channels, err := p.registry.channels.GetChannels(ctx)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to list channels for health sweep")
		return
	}

	now := time.Now()
	for _, ch := range channels {
		if !ch.IsEnabled {
			continue
		}
		if ch.HealthCheckInterval > 0 && now.Sub(ch.LastHealthCheck) < ch.HealthCheckInterval {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.registry.Test(probeCtx, ch.ID)
		cancel()

		if err != nil {
			zlog.Logger.Warn().
				Err(err).
				Str("channel", ch.Name).
				Str("type", ch.Type).
				Msg("channel health probe failed")
		}
	}
}
