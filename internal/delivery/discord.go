package delivery

import (
	"context"
	"strings"

	"signal-notifier/internal/model"
	"signal-notifier/pkg/discord"
)

// DiscordAdapter delivers to a Discord incoming webhook. The recipient is
// the webhook URL itself.
type DiscordAdapter struct {
	client *discord.Client
}

// NewDiscordAdapter wraps a Discord webhook client.
func NewDiscordAdapter(client *discord.Client) *DiscordAdapter {
	return &DiscordAdapter{client: client}
}

func (a *DiscordAdapter) Type() string { return model.ChannelDiscord }

func (a *DiscordAdapter) Deliver(ctx context.Context, recipient, subject, body string) error {
	if !strings.HasPrefix(recipient, "https://") {
		return invalidRecipient(model.ChannelDiscord, recipient)
	}
	return a.client.Send(ctx, recipient, subject, body)
}

// HealthCheck is a no-op: webhook URLs are per-recipient, so there is no
// shared credential to probe.
func (a *DiscordAdapter) HealthCheck(ctx context.Context) error {
	return nil
}
