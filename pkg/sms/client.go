// Package sms sends text messages through a Twilio-compatible HTTP
// gateway.
package sms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client posts messages to the gateway's message endpoint using basic auth.
type Client struct {
	baseURL   string
	accountID string
	authToken string
	from      string
	client    *http.Client
}

// NewClient creates an SMS gateway client.
func NewClient(baseURL, accountID, authToken, from string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		authToken: authToken,
		from:      from,
		client:    &http.Client{},
	}
}

// Send delivers text to the given phone number.
func (c *Client) Send(ctx context.Context, to, text string) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountID)

	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", to)
	form.Set("Body", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway error: %s", resp.Status)
	}

	return nil
}

// Ping validates the account credentials without sending a message.
func (c *Client) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s.json", c.baseURL, c.accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.accountID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms gateway error: %s", resp.Status)
	}

	return nil
}
