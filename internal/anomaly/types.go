// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package anomaly turns filtered detector candidates into durable
// surveillance anomalies.
//
// An anomaly is created once per dedupe key (type, primary device and the
// time span rounded to five minutes). Its evidence payload is stored as the
// exact JSON bytes that were hashed at creation, and every later read
// re-hashes those bytes. A mismatch is reported as tampering and recorded in
// the chain of custody; it is never corrected.
//
// Anomalies are never deleted. Reviewers move them through the investigation
// states and the retention job archives stale ones.
package anomaly

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/blake2b"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/geo"
)

// Errors returned by the anomaly service and stores.
var (
	ErrNotFound          = errors.New("anomaly not found")
	ErrAlreadyExists     = errors.New("anomaly already exists for dedupe key")
	ErrEvidenceTampered  = errors.New("anomaly evidence hash mismatch")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the investigation status of an anomaly.
type Status string

const (
	StatusPending       Status = "pending"
	StatusInvestigating Status = "investigating"
	StatusConfirmed     Status = "confirmed"
	StatusDismissed     Status = "dismissed"
	StatusArchived      Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInvestigating, StatusConfirmed, StatusDismissed, StatusArchived:
		return true
	}
	return false
}

// reviewTransitions lists the moves a reviewer may make. Archiving is
// reserved for retention.
var reviewTransitions = map[Status][]Status{
	StatusPending:       {StatusInvestigating, StatusConfirmed, StatusDismissed},
	StatusInvestigating: {StatusConfirmed, StatusDismissed},
}

// CanTransition reports whether a reviewer may move an anomaly from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, s := range reviewTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Archivable reports whether retention may archive an anomaly in status s.
// Confirmed anomalies are kept out of the archive.
func Archivable(s Status) bool {
	return s == StatusPending || s == StatusInvestigating || s == StatusDismissed
}

// Strength is the evidence-strength tier.
type Strength string

const (
	StrengthWeak          Strength = "weak"
	StrengthModerate      Strength = "moderate"
	StrengthStrong        Strength = "strong"
	StrengthOverwhelming  Strength = "overwhelming"
	StrengthForensicGrade Strength = "forensic_grade"
)

// StrengthFor derives the tier from confidence. Forensic grade needs an
// overwhelming score that a reviewer has confirmed.
func StrengthFor(confidence float64, status Status) Strength {
	switch {
	case confidence >= 0.9:
		if status == StatusConfirmed {
			return StrengthForensicGrade
		}
		return StrengthOverwhelming
	case confidence >= 0.7:
		return StrengthStrong
	case confidence >= 0.5:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// severity weights each anomaly type when deriving priority.
var severity = map[detection.AnomalyType]float64{
	detection.TypeImpossibleDistance:       0.8,
	detection.TypeCoordinatedMovement:      0.9,
	detection.TypeSequentialMac:            0.7,
	detection.TypeAerialSignature:          0.85,
	detection.TypeRouteCorrelation:         1.0,
	detection.TypeMultiVector:              1.0,
	detection.TypeGovernmentInfrastructure: 0.9,
}

// PriorityFor returns the investigation priority, 1 (lowest) to 10.
func PriorityFor(t detection.AnomalyType, confidence float64) int {
	sev, ok := severity[t]
	if !ok {
		sev = 0.5
	}
	p := int(math.Round(confidence * sev * 10))
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

// dedupeRounding is the granularity of the time span in a dedupe key.
const dedupeRounding = 5 * time.Minute

// DedupeKey identifies an anomaly across overlapping detector runs.
func DedupeKey(t detection.AnomalyType, primary string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%d|%d", t, primary,
		start.UTC().Truncate(dedupeRounding).Unix(),
		end.UTC().Truncate(dedupeRounding).Unix())
}

// HashEvidence returns the blake2b-256 hex digest of an evidence payload.
func HashEvidence(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// SurveillanceAnomaly is a persisted detection result.
type SurveillanceAnomaly struct {
	ID             string                `json:"id"`
	DedupeKey      string                `json:"dedupe_key"`
	Type           detection.AnomalyType `json:"type"`
	PrimaryDevice  string                `json:"primary_device"`
	RelatedDevices []string              `json:"related_devices"`
	Locations      []geo.Point           `json:"locations"`
	Start          time.Time             `json:"start"`
	End            time.Time             `json:"end"`
	Confidence     float64               `json:"confidence"`
	Strength       Strength              `json:"strength"`
	Priority       int                   `json:"priority"`
	Status         Status                `json:"status"`

	// Evidence holds the canonical JSON bytes EvidenceHash was computed over.
	Evidence     json.RawMessage `json:"evidence"`
	EvidenceHash string          `json:"evidence_hash"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ReviewedBy  string    `json:"reviewed_by,omitempty"`
	ReviewNotes string    `json:"review_notes,omitempty"`
}

// Involves reports whether the device is the primary or a related device.
func (a *SurveillanceAnomaly) Involves(deviceID string) bool {
	if a.PrimaryDevice == deviceID {
		return true
	}
	for _, d := range a.RelatedDevices {
		if d == deviceID {
			return true
		}
	}
	return false
}

// VerifyEvidence reports whether the stored hash matches the payload.
func (a *SurveillanceAnomaly) VerifyEvidence() bool {
	return HashEvidence(a.Evidence) == a.EvidenceHash
}

// DecodeEvidence unmarshals the stored payload.
func (a *SurveillanceAnomaly) DecodeEvidence() (detection.Evidence, error) {
	var ev detection.Evidence
	if err := json.Unmarshal(a.Evidence, &ev); err != nil {
		return ev, fmt.Errorf("decode evidence for %s: %w", a.ID, err)
	}
	return ev, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status        Status
	Type          detection.AnomalyType
	CreatedBefore time.Time
	Limit         int
}

// Store persists anomalies.
type Store interface {
	// Create fails with ErrAlreadyExists when the dedupe key is taken.
	Create(ctx context.Context, a *SurveillanceAnomaly) error
	// Get returns nil, nil when the anomaly does not exist.
	Get(ctx context.Context, id string) (*SurveillanceAnomaly, error)
	GetByDedupeKey(ctx context.Context, key string) (*SurveillanceAnomaly, error)
	// UpdateReview writes status, strength and reviewer fields. Evidence is
	// immutable.
	UpdateReview(ctx context.Context, a *SurveillanceAnomaly) error
	// List orders by priority then creation time, newest first.
	List(ctx context.Context, f Filter) ([]SurveillanceAnomaly, error)
	// ForDevices returns anomalies involving any of the devices.
	ForDevices(ctx context.Context, deviceIDs []string) ([]SurveillanceAnomaly, error)
}
