// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

const reviewPurpose = "alert review"

// UpdateListener is told about every reviewed alert.
type UpdateListener func(a *Alert)

// Workflow applies reviewer decisions to alerts.
type Workflow struct {
	store    Store
	custody  *audit.Logger
	listener UpdateListener
	now      func() time.Time
}

// NewWorkflow creates a workflow. listener may be nil.
func NewWorkflow(store Store, custody *audit.Logger, listener UpdateListener) *Workflow {
	return &Workflow{store: store, custody: custody, listener: listener, now: time.Now}
}

// Acknowledge moves an active alert to acknowledged.
func (w *Workflow) Acknowledge(ctx context.Context, id, actor string) (*Alert, error) {
	a, err := w.loadActive(ctx, id, StatusAcknowledged)
	if err != nil {
		return nil, err
	}
	now := w.now().UTC().Truncate(time.Microsecond)
	a.Status = StatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = actor
	if err := w.save(ctx, a, actor, "alert acknowledged"); err != nil {
		return nil, err
	}
	return a, nil
}

// Dismiss moves an active alert to dismissed, optionally flagging it as a
// false positive. The flag is recorded for retention only.
func (w *Workflow) Dismiss(ctx context.Context, id, actor string, isFalsePositive bool, reason string) (*Alert, error) {
	a, err := w.loadActive(ctx, id, StatusDismissed)
	if err != nil {
		return nil, err
	}
	now := w.now().UTC().Truncate(time.Microsecond)
	a.Status = StatusDismissed
	a.DismissedAt = &now
	a.DismissedBy = actor
	a.IsFalsePositive = isFalsePositive
	a.DismissReason = reason

	details := "alert dismissed"
	if isFalsePositive {
		details = "alert dismissed as false positive"
	}
	if reason != "" {
		details += ": " + reason
	}
	if err := w.save(ctx, a, actor, details); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns an alert.
func (w *Workflow) Get(ctx context.Context, id string) (*Alert, error) {
	a, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

// List returns alerts matching f.
func (w *Workflow) List(ctx context.Context, f Filter) ([]Alert, error) {
	return w.store.List(ctx, f)
}

// FalsePositiveAnomalyIDs returns anomalies flagged false positive before
// the given time.
func (w *Workflow) FalsePositiveAnomalyIDs(ctx context.Context, before time.Time) ([]string, error) {
	return w.store.FalsePositiveAnomalyIDs(ctx, before)
}

func (w *Workflow) loadActive(ctx context.Context, id string, to Status) (*Alert, error) {
	a, err := w.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	return a, nil
}

func (w *Workflow) save(ctx context.Context, a *Alert, actor, details string) error {
	if err := w.store.UpdateReview(ctx, a); err != nil {
		return err
	}
	if _, err := w.custody.Record(ctx, audit.Record{
		AnomalyID: a.AnomalyID,
		EventType: audit.EventAccessed,
		Actor:     actor,
		Purpose:   reviewPurpose,
		Details:   details,
	}); err != nil {
		return err
	}

	metrics.AlertTransitions.WithLabelValues(string(a.Status)).Inc()
	logging.Ctx(ctx).Info().
		Str("alert_id", a.ID).
		Str("anomaly_id", a.AnomalyID).
		Str("status", string(a.Status)).
		Bool("false_positive", a.IsFalsePositive).
		Str("actor", actor).
		Msg("Alert reviewed")

	if w.listener != nil {
		w.listener(a)
	}
	return nil
}
