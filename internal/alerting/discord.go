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
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/config"
)

// Discord limits
const (
	discordMaxDescription = 4096
	discordMaxFieldValue  = 1024
)

// DiscordNotifier sends alerts to a Discord channel webhook as embeds.
type DiscordNotifier struct {
	url     string
	enabled bool
	client  *http.Client
	guard   *deliveryGuard
}

// NewDiscordNotifier creates a Discord notifier. A zero rate limit defaults
// to one message per second.
func NewDiscordNotifier(cfg config.NotifierConfig) *DiscordNotifier {
	gap := cfg.RateLimit
	if gap <= 0 {
		gap = time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled,
		client:  &http.Client{Timeout: timeout},
		guard:   newDeliveryGuard("discord", gap),
	}
}

// Name returns the notifier name.
func (n *DiscordNotifier) Name() string {
	return "discord"
}

// Enabled reports whether the notifier is enabled and has a URL.
func (n *DiscordNotifier) Enabled() bool {
	return n.enabled && n.url != ""
}

// Send delivers an alert to Discord.
func (n *DiscordNotifier) Send(ctx context.Context, alert *Alert) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(discordWebhookPayload{Embeds: []discordEmbed{buildEmbed(alert)}})
	if err != nil {
		return fmt.Errorf("failed to marshal Discord payload: %w", err)
	}

	return n.guard.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create Discord request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send Discord webhook: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}

func buildEmbed(alert *Alert) discordEmbed {
	fields := []discordEmbedField{
		{Name: "Severity", Value: string(alert.Severity), Inline: true},
		{Name: "Type", Value: string(alert.Type), Inline: true},
		{Name: "Priority", Value: fmt.Sprintf("%d/10", alert.Priority), Inline: true},
		{Name: "Confidence", Value: fmt.Sprintf("%.0f%%", alert.Confidence*100), Inline: true},
	}
	if len(alert.RecommendedActions) > 0 {
		fields = append(fields, discordEmbedField{
			Name:  "Recommended actions",
			Value: truncate("- "+strings.Join(alert.RecommendedActions, "\n- "), discordMaxFieldValue),
		})
	}

	return discordEmbed{
		Title:       alert.Title,
		Description: truncate(alert.Description, discordMaxDescription),
		Color:       severityColor(alert.Severity),
		Timestamp:   alert.CreatedAt.Format(time.RFC3339),
		Fields:      fields,
		Footer:      discordEmbedFooter{Text: "ShadowCheck alert " + alert.ID},
	}
}

// severityColor returns the Discord embed color for a severity level.
func severityColor(severity Severity) int {
	switch severity {
	case SeverityCritical:
		return 0xFF0000 // Red
	case SeverityWarning:
		return 0xFFA500 // Orange
	case SeverityInfo:
		return 0x3498DB // Blue
	default:
		return 0x95A5A6 // Gray
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Discord webhook structures
type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}
