package delivery

import (
	"context"

	"signal-notifier/internal/model"
	"signal-notifier/pkg/push"
)

// PushAdapter delivers mobile push notifications.
type PushAdapter struct {
	client *push.Client
}

// NewPushAdapter wraps a push gateway client.
func NewPushAdapter(client *push.Client) *PushAdapter {
	return &PushAdapter{client: client}
}

func (a *PushAdapter) Type() string { return model.ChannelPush }

func (a *PushAdapter) Deliver(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return invalidRecipient(model.ChannelPush, recipient)
	}
	return a.client.Send(ctx, recipient, subject, body)
}

// HealthCheck is a no-op: the gateway rejects requests per token,
// there is no cheap account-level probe.
func (a *PushAdapter) HealthCheck(ctx context.Context) error {
	return nil
}
