// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/config"
)

// WebhookNotifier posts alerts as JSON to a generic endpoint.
type WebhookNotifier struct {
	url     string
	enabled bool
	headers map[string]string
	client  *http.Client
	guard   *deliveryGuard
}

// WebhookPayload is the JSON body sent to the webhook endpoint.
type WebhookPayload struct {
	Alert     *Alert    `json:"alert"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// NewWebhookNotifier creates a webhook notifier. A zero rate limit defaults
// to 500ms between deliveries.
func NewWebhookNotifier(cfg config.NotifierConfig, headers map[string]string) *WebhookNotifier {
	gap := cfg.RateLimit
	if gap <= 0 {
		gap = 500 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}

	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled,
		headers: h,
		client:  &http.Client{Timeout: timeout},
		guard:   newDeliveryGuard("webhook", gap),
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Enabled reports whether the notifier is enabled and has a URL.
func (n *WebhookNotifier) Enabled() bool {
	return n.enabled && n.url != ""
}

// Send delivers an alert to the webhook endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, alert *Alert) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(WebhookPayload{
		Alert:     alert,
		EventType: "surveillance_alert",
		Timestamp: time.Now().UTC(),
		Source:    "shadowcheck",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	return n.guard.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for key, value := range n.headers {
			req.Header.Set(key, value)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send webhook: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}
