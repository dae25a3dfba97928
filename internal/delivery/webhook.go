package delivery

import (
	"context"
	"strings"

	"signal-notifier/internal/model"
	"signal-notifier/pkg/webhook"
)

// WebhookAdapter delivers to a consumer-registered HTTP endpoint.
type WebhookAdapter struct {
	client *webhook.Client
}

// NewWebhookAdapter wraps a webhook client.
func NewWebhookAdapter(client *webhook.Client) *WebhookAdapter {
	return &WebhookAdapter{client: client}
}

func (a *WebhookAdapter) Type() string { return model.ChannelWebhook }

func (a *WebhookAdapter) Deliver(ctx context.Context, recipient, subject, body string) error {
	if !strings.HasPrefix(recipient, "http://") && !strings.HasPrefix(recipient, "https://") {
		return invalidRecipient(model.ChannelWebhook, recipient)
	}
	return a.client.Send(ctx, recipient, subject, body)
}

// HealthCheck is a no-op: endpoints are per-recipient.
func (a *WebhookAdapter) HealthCheck(ctx context.Context) error {
	return nil
}
