// Package transport provides the HTTP notification transport used by the
// retry coordinator. The farm platform's notification gateway fans deliveries
// out to the actual SMS/email/push providers; this adapter only posts the
// opaque payload and reports success or failure of that attempt.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/farmkonnect/scheduler/internal/core"
	"github.com/farmkonnect/scheduler/internal/domain/model"
)

// Config captures the gateway connection settings.
type Config struct {
	GatewayURL string
	AuthToken  string
	Timeout    time.Duration
	Client     *http.Client
}

// WebhookTransport delivers notifications by POSTing them to the gateway.
type WebhookTransport struct {
	gatewayURL string
	authToken  string
	client     *http.Client
}

var _ core.NotificationTransport = (*WebhookTransport)(nil)

// NewWebhookTransport builds a gateway transport. Callers should pass a validated config.
func NewWebhookTransport(cfg Config) (*WebhookTransport, error) {
	gatewayURL := strings.TrimSpace(cfg.GatewayURL)
	if gatewayURL == "" {
		return nil, errors.New("notification gateway url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &WebhookTransport{
		gatewayURL: gatewayURL,
		authToken:  strings.TrimSpace(cfg.AuthToken),
		client:     hc,
	}, nil
}

// deliveryRequest is the wire format posted to the gateway.
type deliveryRequest struct {
	NotificationID string          `json:"notification_id"`
	Channel        string          `json:"channel"`
	AttemptCount   int             `json:"attempt_count"`
	Payload        json.RawMessage `json:"payload"`
}

// Deliver posts one notification. Any non-2xx response is a delivery failure;
// the retry coordinator decides whether to reschedule or exhaust.
func (t *WebhookTransport) Deliver(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(deliveryRequest{
		NotificationID: n.ID,
		Channel:        n.Channel,
		AttemptCount:   n.AttemptCount,
		Payload:        n.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode delivery request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.authToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification %s: %w", n.ID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notification gateway returned status %d for %s", resp.StatusCode, n.ID)
	}
	return nil
}
