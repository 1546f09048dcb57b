// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// NewBus creates the in-process alert bus. The generator publishes to it and
// the dispatcher subscribes.
func NewBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)
}

// Dispatcher fans alerts from the bus out to notifiers.
type Dispatcher struct {
	subscriber message.Subscriber
	topic      string
	notifiers  []Notifier
}

// NewDispatcher creates a dispatcher for topic.
func NewDispatcher(subscriber message.Subscriber, topic string, notifiers ...Notifier) *Dispatcher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Dispatcher{subscriber: subscriber, topic: topic, notifiers: notifiers}
}

// String names the service in supervisor logs.
func (d *Dispatcher) String() string {
	return "alert-dispatcher"
}

// Serve implements suture.Service. It consumes until ctx is done.
func (d *Dispatcher) Serve(ctx context.Context) error {
	messages, err := d.subscriber.Subscribe(ctx, d.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", d.topic, err)
	}

	enabled := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		if n.Enabled() {
			enabled = append(enabled, n.Name())
		}
	}
	logging.Info().Str("topic", d.topic).Strs("notifiers", enabled).Msg("Alert dispatcher started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			d.handle(ctx, msg)
		}
	}
}

// handle delivers one message. Delivery failures are logged and metered; the
// message is always acked because the alert itself is already persisted.
func (d *Dispatcher) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	if id := msg.Metadata.Get(correlationMetadataKey); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	}

	var alert Alert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable alert message")
		return
	}

	for _, n := range d.notifiers {
		if !n.Enabled() {
			continue
		}
		err := n.Send(ctx, &alert)
		metrics.RecordNotification(n.Name(), err)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("notifier", n.Name()).
				Str("alert_id", alert.ID).
				Msg("Alert notification failed")
		}
	}
}
