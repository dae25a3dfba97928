package delivery

import (
	"context"

	"signal-notifier/internal/model"
	"signal-notifier/pkg/sms"
)

// SMSAdapter delivers text messages through an SMS gateway.
type SMSAdapter struct {
	client *sms.Client
}

// NewSMSAdapter wraps an SMS gateway client.
func NewSMSAdapter(client *sms.Client) *SMSAdapter {
	return &SMSAdapter{client: client}
}

func (a *SMSAdapter) Type() string { return model.ChannelSMS }

func (a *SMSAdapter) Deliver(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return invalidRecipient(model.ChannelSMS, recipient)
	}
	// SMS has no subject line; the body carries everything.
	return a.client.Send(ctx, recipient, body)
}

func (a *SMSAdapter) HealthCheck(ctx context.Context) error {
	return a.client.Ping(ctx)
}
