package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-notifier/pkg/telegram"
	"signal-notifier/pkg/webhook"
)

func TestPermanentError(t *testing.T) {
	base := errors.New("bad recipient")

	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)

	// Wrapping keeps the marker visible.
	wrapped := fmt.Errorf("deliver: %w", err)
	assert.True(t, IsPermanent(wrapped))

	assert.False(t, IsPermanent(base))
	assert.False(t, IsPermanent(nil))
	assert.Nil(t, Permanent(nil))
}

func TestTelegramAdapter_EmptyRecipientIsPermanent(t *testing.T) {
	a := NewTelegramAdapter(telegram.NewClient("token"))

	err := a.Deliver(context.Background(), "", "s", "b")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestTelegramAdapter_SubjectBecomesFirstLine(t *testing.T) {
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChatID string `json:"chat_id"`
			Text   string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotText = req.Text
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := telegram.NewClient("token")
	client.SetBaseURL(srv.URL)
	a := NewTelegramAdapter(client)

	err := a.Deliver(context.Background(), "12345", "BTC alert", "BTC crossed 100000")
	require.NoError(t, err)
	assert.Equal(t, "BTC alert\n\nBTC crossed 100000", gotText)
}

func TestTelegramAdapter_APIErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := telegram.NewClient("token")
	client.SetBaseURL(srv.URL)
	a := NewTelegramAdapter(client)

	err := a.Deliver(context.Background(), "12345", "", "body")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestWebhookAdapter_RejectsNonHTTPRecipient(t *testing.T) {
	a := NewWebhookAdapter(webhook.NewClient(nil))

	err := a.Deliver(context.Background(), "ftp://example.com/hook", "s", "b")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestWebhookAdapter_PostsPayload(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		assert.Equal(t, "secret", r.Header.Get("X-Signature"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := NewWebhookAdapter(webhook.NewClient(map[string]string{"X-Signature": "secret"}))

	err := a.Deliver(context.Background(), srv.URL, "BTC alert", "BTC crossed 100000")
	require.NoError(t, err)
	assert.Contains(t, string(body), `"message":"BTC crossed 100000"`)
	assert.Contains(t, string(body), `"subject":"BTC alert"`)
}

func TestEmailAdapter_InvalidAddressIsPermanent(t *testing.T) {
	a := NewEmailAdapter(nil)

	err := a.Deliver(context.Background(), "not-an-address", "s", "b")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestSMSAdapter_EmptyRecipientIsPermanent(t *testing.T) {
	a := NewSMSAdapter(nil)

	err := a.Deliver(context.Background(), "", "s", "b")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestPushAdapter_EmptyTokenIsPermanent(t *testing.T) {
	a := NewPushAdapter(nil)

	err := a.Deliver(context.Background(), "", "s", "b")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}
