// Package webhook delivers notifications as JSON POSTs to an arbitrary
// recipient-supplied URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client posts notification payloads to consumer endpoints.
type Client struct {
	client  *http.Client
	headers map[string]string
}

// NewClient creates a webhook client. Extra headers (e.g. a signing secret)
// are attached to every request.
func NewClient(headers map[string]string) *Client {
	return &Client{
		client:  &http.Client{},
		headers: headers,
	}
}

type payload struct {
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Send posts the notification body to url.
func (c *Client) Send(ctx context.Context, url, subject, message string) error {
	body, err := json.Marshal(payload{
		Subject:   subject,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint error: %s", resp.Status)
	}

	return nil
}
