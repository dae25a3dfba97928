package delivery

import (
	"context"
	"strings"

	"signal-notifier/internal/model"
	"signal-notifier/pkg/email"
)

// EmailAdapter delivers over SMTP.
type EmailAdapter struct {
	client *email.Client
}

// NewEmailAdapter wraps an SMTP client.
func NewEmailAdapter(client *email.Client) *EmailAdapter {
	return &EmailAdapter{client: client}
}

func (a *EmailAdapter) Type() string { return model.ChannelEmail }

func (a *EmailAdapter) Deliver(ctx context.Context, recipient, subject, body string) error {
	if !strings.Contains(recipient, "@") {
		return invalidRecipient(model.ChannelEmail, recipient)
	}

	// mail.v2 dials synchronously and has no context hook; run the send
	// in a goroutine so the caller's timeout still applies.
	done := make(chan error, 1)
	go func() {
		done <- a.client.Send(recipient, subject, body)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (a *EmailAdapter) HealthCheck(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- a.client.Ping()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
