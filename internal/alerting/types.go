// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package alerting raises operator alerts for new anomalies and carries them
// through the review workflow.
//
// The Generator creates at most one alert per anomaly and publishes it on the
// in-process message bus. The Dispatcher consumes that topic and fans each
// alert out to the enabled notifiers (generic webhook, Discord and the live
// websocket stream). Outbound notifiers are throttled and wrapped in circuit
// breakers so a failing endpoint cannot stall detection.
//
// Reviewer decisions, including false-positive flags, are recorded on the
// alert and in the anomaly's chain of custody. They are not fed back into
// detector scoring.
package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/shadowcheck/internal/detection"
)

// Errors returned by the alert store and workflow.
var (
	ErrNotFound          = errors.New("alert not found")
	ErrAlreadyExists     = errors.New("alert already exists for anomaly")
	ErrInvalidTransition = errors.New("invalid alert transition")
)

// Severity indicates the severity level of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SeverityFor maps an investigation priority to an alert severity.
func SeverityFor(priority int) Severity {
	switch {
	case priority >= 8:
		return SeverityCritical
	case priority >= 5:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Status is the review state of an alert.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusDismissed    Status = "dismissed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusAcknowledged || s == StatusDismissed
}

// Alert is raised once for an anomaly that crosses the alert threshold.
type Alert struct {
	ID                 string                `json:"id"`
	AnomalyID          string                `json:"anomaly_id"`
	Type               detection.AnomalyType `json:"type"`
	Severity           Severity              `json:"severity"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	RecommendedActions []string              `json:"recommended_actions"`
	Confidence         float64               `json:"confidence"`
	Priority           int                   `json:"priority"`
	Status             Status                `json:"status"`
	IsFalsePositive    bool                  `json:"is_false_positive"`
	DismissReason      string                `json:"dismiss_reason,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	AcknowledgedAt     *time.Time            `json:"acknowledged_at,omitempty"`
	AcknowledgedBy     string                `json:"acknowledged_by,omitempty"`
	DismissedAt        *time.Time            `json:"dismissed_at,omitempty"`
	DismissedBy        string                `json:"dismissed_by,omitempty"`
}

// Filter narrows alert listings.
type Filter struct {
	Status Status
	Limit  int // defaults to 100
	Offset int
}

// Store persists alerts.
type Store interface {
	// Create fails with ErrAlreadyExists when the anomaly already has an alert.
	Create(ctx context.Context, a *Alert) error
	// Get returns nil, nil when the alert does not exist.
	Get(ctx context.Context, id string) (*Alert, error)
	GetByAnomaly(ctx context.Context, anomalyID string) (*Alert, error)
	List(ctx context.Context, f Filter) ([]Alert, error)
	// UpdateReview writes the status, false-positive and reviewer fields.
	UpdateReview(ctx context.Context, a *Alert) error
	// FalsePositiveAnomalyIDs returns anomalies whose alert was dismissed as
	// a false positive before the given time.
	FalsePositiveAnomalyIDs(ctx context.Context, before time.Time) ([]string, error)
}
