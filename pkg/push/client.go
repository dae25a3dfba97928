// Package push sends mobile push notifications through an FCM-style HTTP
// gateway keyed by device token.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client posts push payloads to the gateway.
type Client struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

// NewClient creates a push gateway client.
func NewClient(endpoint, serverKey string) *Client {
	return &Client{
		endpoint:  endpoint,
		serverKey: serverKey,
		client:    &http.Client{},
	}
}

type pushMessage struct {
	To           string           `json:"to"`
	Notification pushNotification `json:"notification"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send delivers a push notification to the given device token.
func (c *Client) Send(ctx context.Context, deviceToken, title, body string) error {
	payload, err := json.Marshal(pushMessage{
		To:           deviceToken,
		Notification: pushNotification{Title: title, Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway error: %s", resp.Status)
	}

	return nil
}
