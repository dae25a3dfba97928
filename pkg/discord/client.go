// Package discord sends notifications to a Discord channel through an
// incoming webhook URL.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client posts messages to a Discord webhook.
type Client struct {
	client *http.Client
}

// NewClient creates a new Discord webhook client.
func NewClient() *Client {
	return &Client{client: &http.Client{}}
}

type webhookPayload struct {
	Content string `json:"content"`
}

// Send posts content to the given webhook URL. Discord formats the subject
// as a bold first line when one is provided.
func (c *Client) Send(ctx context.Context, webhookURL, subject, body string) error {
	content := body
	if subject != "" {
		content = fmt.Sprintf("**%s**\n%s", subject, body)
	}

	payload, err := json.Marshal(webhookPayload{Content: content})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord API error: %s", resp.Status)
	}

	return nil
}
