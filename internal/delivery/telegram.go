package delivery

import (
	"context"

	"signal-notifier/internal/model"
	"signal-notifier/pkg/telegram"
)

// TelegramAdapter delivers through the Telegram Bot API. The recipient is
// a chat ID; Telegram has no subject concept, so the subject becomes the
// first line of the message.
type TelegramAdapter struct {
	client *telegram.Client
}

// NewTelegramAdapter wraps a Telegram bot client.
func NewTelegramAdapter(client *telegram.Client) *TelegramAdapter {
	return &TelegramAdapter{client: client}
}

func (a *TelegramAdapter) Type() string { return model.ChannelTelegram }

func (a *TelegramAdapter) Deliver(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return invalidRecipient(model.ChannelTelegram, recipient)
	}

	text := body
	if subject != "" {
		text = subject + "\n\n" + body
	}
	return a.client.Send(ctx, recipient, text)
}

func (a *TelegramAdapter) HealthCheck(ctx context.Context) error {
	return a.client.GetMe(ctx)
}
