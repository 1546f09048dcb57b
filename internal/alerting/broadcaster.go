// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

import (
	"context"
	"errors"

	"github.com/tomtom215/shadowcheck/internal/websocket"
)

var errBroadcastDropped = errors.New("websocket broadcast queue full")

// Broadcaster pushes alerts to connected websocket clients.
type Broadcaster struct {
	hub *websocket.Hub
}

// NewBroadcaster creates a websocket notifier.
func NewBroadcaster(hub *websocket.Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Name returns the notifier name.
func (b *Broadcaster) Name() string {
	return "websocket"
}

// Enabled is true whenever a hub is attached.
func (b *Broadcaster) Enabled() bool {
	return b.hub != nil
}

// Send queues the alert for every connected client.
func (b *Broadcaster) Send(_ context.Context, alert *Alert) error {
	if !b.hub.Broadcast(websocket.MessageTypeAlert, alert) {
		return errBroadcastDropped
	}
	return nil
}

// AlertUpdated pushes a reviewed alert. It matches UpdateListener.
func (b *Broadcaster) AlertUpdated(alert *Alert) {
	if b.hub != nil {
		b.hub.Broadcast(websocket.MessageTypeAlertUpdated, alert)
	}
}
