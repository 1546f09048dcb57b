// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// DefaultTopic carries newly created alerts.
const DefaultTopic = "surveillance.alerts"

// Generator raises alerts for pending anomalies above a threshold.
type Generator struct {
	store     Store
	publisher message.Publisher
	topic     string
	threshold float64
	now       func() time.Time
}

// NewGenerator creates a generator. A nil publisher disables publishing.
func NewGenerator(store Store, publisher message.Publisher, topic string, threshold float64) *Generator {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Generator{
		store:     store,
		publisher: publisher,
		topic:     topic,
		threshold: threshold,
		now:       time.Now,
	}
}

// Generate creates alerts for the eligible anomalies and returns the new
// ones. Anomalies that already have an alert are skipped.
func (g *Generator) Generate(ctx context.Context, anomalies []*anomaly.SurveillanceAnomaly) ([]*Alert, error) {
	var created []*Alert
	for _, a := range anomalies {
		if a.Status != anomaly.StatusPending || a.Confidence < g.threshold {
			continue
		}

		existing, err := g.store.GetByAnomaly(ctx, a.ID)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}

		alert := g.newAlert(a)
		if err := g.store.Create(ctx, alert); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				continue
			}
			return created, err
		}
		metrics.AlertsCreated.WithLabelValues(string(alert.Severity)).Inc()
		logging.Ctx(ctx).Warn().
			Str("alert_id", alert.ID).
			Str("anomaly_id", a.ID).
			Str("type", string(a.Type)).
			Str("severity", string(alert.Severity)).
			Int("priority", alert.Priority).
			Msg("Surveillance alert raised")

		g.publish(ctx, alert)
		created = append(created, alert)
	}
	return created, nil
}

func (g *Generator) newAlert(a *anomaly.SurveillanceAnomaly) *Alert {
	title, description, actions := compose(a)
	return &Alert{
		ID:                 uuid.New().String(),
		AnomalyID:          a.ID,
		Type:               a.Type,
		Severity:           SeverityFor(a.Priority),
		Title:              title,
		Description:        description,
		RecommendedActions: actions,
		Confidence:         a.Confidence,
		Priority:           a.Priority,
		Status:             StatusActive,
		CreatedAt:          g.now().UTC().Truncate(time.Microsecond),
	}
}

// publish hands the alert to the bus. The alert is already stored, so a
// publish failure only costs the live notification.
func (g *Generator) publish(ctx context.Context, alert *Alert) {
	if g.publisher == nil {
		return
	}
	if err := publishAlert(ctx, g.publisher, g.topic, alert); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to publish alert")
	}
}

func publishAlert(ctx context.Context, pub message.Publisher, topic string, alert *Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := message.NewMessage(alert.ID, payload)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(correlationMetadataKey, id)
	}
	return pub.Publish(topic, msg)
}

const correlationMetadataKey = "correlation_id"
