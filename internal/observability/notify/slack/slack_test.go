package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmkonnect/scheduler/internal/observability/notify"
)

func testPayload() notify.ExhaustionPayload {
	return notify.ExhaustionPayload{
		NotificationID: "n-42",
		Channel:        "sms",
		AttemptCount:   3,
		LastError:      "gateway 502",
		Severity:       notify.SeverityCritical,
		OccurredAt:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewClient_RequiresWebhookURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestClient_SendExhaustion(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		WebhookURL: srv.URL,
		Channel:    "#farm-ops",
		Username:   "scheduler-bot",
	})
	require.NoError(t, err)

	require.NoError(t, client.SendExhaustion(context.Background(), testPayload()))

	assert.Equal(t, "scheduler-bot", got["username"])
	assert.Equal(t, "#farm-ops", got["channel"])

	text, ok := got["text"].(string)
	require.True(t, ok)
	assert.Contains(t, text, "n-42")
	assert.Contains(t, text, "sms")
	assert.Contains(t, text, "gateway 502")
	assert.Contains(t, text, "2024-01-01T12:00:00Z")
}

func TestClient_SendExhaustion_OmitsEmptyChannel(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, client.SendExhaustion(context.Background(), testPayload()))

	_, hasChannel := got["channel"]
	assert.False(t, hasChannel)
	assert.Equal(t, "farmkonnect-scheduler", got["username"])
}

func TestClient_SendExhaustion_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 2})
	require.NoError(t, err)

	require.NoError(t, client.SendExhaustion(context.Background(), testPayload()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_SendExhaustion_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	err = client.SendExhaustion(context.Background(), testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(2), calls.Load())
}
