// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package export packages anomalies, correlations and custody records for a
// device set into a self-contained evidence bundle.
//
// The bundle's records section is digested with BLAKE2b-256 over its
// canonical JSON encoding. Each exported anomaly gains an "exported" custody
// entry before its history is collected, so the bundle carries its own
// export record.
package export

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/correlation"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// DigestAlgorithm names the records digest.
const DigestAlgorithm = "blake2b-256"

// Errors returned by the builder.
var (
	ErrNoDevices      = errors.New("export requires at least one device")
	ErrDigestMismatch = errors.New("bundle digest does not match records")
)

// Request selects what to export.
type Request struct {
	DeviceIDs []string `json:"device_ids" validate:"required,min=1,dive,required"`
	Actor     string   `json:"actor"`
	Purpose   string   `json:"purpose" validate:"required"`
}

// Metadata describes a bundle.
type Metadata struct {
	BundleID         string    `json:"bundle_id"`
	GeneratedAt      time.Time `json:"generated_at"`
	Actor            string    `json:"actor"`
	Purpose          string    `json:"purpose"`
	DeviceIDs        []string  `json:"device_ids"`
	AnomalyCount     int       `json:"anomaly_count"`
	CorrelationCount int       `json:"correlation_count"`
	CustodyCount     int       `json:"custody_count"`
	TamperedCount    int       `json:"tampered_count"`
	ToolVersion      string    `json:"tool_version"`
	DigestAlgorithm  string    `json:"digest_algorithm"`
}

// AnomalyRecord is one anomaly with its integrity checks and custody.
type AnomalyRecord struct {
	Anomaly          anomaly.SurveillanceAnomaly `json:"anomaly"`
	EvidenceVerified bool                        `json:"evidence_verified"`
	ChainVerified    bool                        `json:"custody_chain_verified"`
	Custody          []audit.CustodyEntry        `json:"custody"`
}

// Records is the digested part of a bundle.
type Records struct {
	Anomalies    []AnomalyRecord           `json:"anomalies"`
	Correlations []correlation.Correlation `json:"correlations"`
}

// Bundle is a self-contained evidence package.
type Bundle struct {
	Metadata Metadata `json:"metadata"`
	Records  Records  `json:"records"`
	Digest   string   `json:"digest"`
}

// AnomalySource lists anomalies involving any of a set of devices.
type AnomalySource interface {
	ForDevices(ctx context.Context, deviceIDs []string) ([]anomaly.SurveillanceAnomaly, error)
}

// CorrelationSource lists stored correlations for devices.
type CorrelationSource interface {
	ForDevices(ctx context.Context, deviceIDs []string) ([]correlation.Correlation, error)
}

// Builder assembles bundles.
type Builder struct {
	anomalies    AnomalySource
	correlations CorrelationSource
	custody      *audit.Logger
	toolVersion  string
	now          func() time.Time
}

// NewBuilder creates a bundle builder.
func NewBuilder(anomalies AnomalySource, correlations CorrelationSource, custody *audit.Logger, toolVersion string) *Builder {
	return &Builder{
		anomalies:    anomalies,
		correlations: correlations,
		custody:      custody,
		toolVersion:  toolVersion,
		now:          time.Now,
	}
}

// Build collects every anomaly whose primary or related device is in the
// request, the devices' correlations and each anomaly's custody history.
// Tampered evidence or broken custody chains are flagged in the bundle
// rather than failing the export.
func (b *Builder) Build(ctx context.Context, req Request) (*Bundle, error) {
	devices := uniqueSorted(req.DeviceIDs)
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	actor := req.Actor
	if actor == "" {
		actor = "system"
	}

	bundleID := uuid.New().String()
	anomalies, err := b.anomalies.ForDevices(ctx, devices)
	if err != nil {
		return nil, fmt.Errorf("collect anomalies: %w", err)
	}
	correlations, err := b.correlations.ForDevices(ctx, devices)
	if err != nil {
		return nil, fmt.Errorf("collect correlations: %w", err)
	}
	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].ID < anomalies[j].ID })
	sort.Slice(correlations, func(i, j int) bool { return correlations[i].DeviceID < correlations[j].DeviceID })

	meta := Metadata{
		BundleID:         bundleID,
		GeneratedAt:      b.now().UTC().Truncate(time.Microsecond),
		Actor:            actor,
		Purpose:          req.Purpose,
		DeviceIDs:        devices,
		AnomalyCount:     len(anomalies),
		CorrelationCount: len(correlations),
		ToolVersion:      b.toolVersion,
		DigestAlgorithm:  DigestAlgorithm,
	}
	records := Records{
		Anomalies:    make([]AnomalyRecord, 0, len(anomalies)),
		Correlations: correlations,
	}
	if records.Correlations == nil {
		records.Correlations = []correlation.Correlation{}
	}

	for i := range anomalies {
		a := anomalies[i]
		verified := a.VerifyEvidence()
		if !verified {
			meta.TamperedCount++
			logging.Critical().
				Str("anomaly_id", a.ID).
				Str("bundle_id", bundleID).
				Msg("Exporting anomaly with evidence hash mismatch")
		}

		if _, err := b.custody.Record(ctx, audit.Record{
			AnomalyID:  a.ID,
			EventType:  audit.EventExported,
			Actor:      actor,
			Purpose:    req.Purpose,
			HashBefore: a.EvidenceHash,
			HashAfter:  a.EvidenceHash,
			Details:    "bundle " + bundleID,
		}); err != nil {
			return nil, fmt.Errorf("record export of %s: %w", a.ID, err)
		}

		entries, chainErr := b.custody.History(ctx, a.ID)
		if chainErr != nil && !errors.Is(chainErr, audit.ErrBrokenChain) {
			return nil, fmt.Errorf("collect custody for %s: %w", a.ID, chainErr)
		}
		meta.CustodyCount += len(entries)
		records.Anomalies = append(records.Anomalies, AnomalyRecord{
			Anomaly:          a,
			EvidenceVerified: verified,
			ChainVerified:    chainErr == nil,
			Custody:          entries,
		})
	}

	digest, err := Digest(records)
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Str("bundle_id", bundleID).
		Str("actor", actor).
		Int("devices", len(devices)).
		Int("anomalies", meta.AnomalyCount).
		Int("correlations", meta.CorrelationCount).
		Int("tampered", meta.TamperedCount).
		Msg("Evidence bundle exported")

	return &Bundle{Metadata: meta, Records: records, Digest: digest}, nil
}

// Digest returns the hex BLAKE2b-256 digest of the canonical encoding of
// records.
func Digest(records Records) (string, error) {
	canonical, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode records: %w", err)
	}
	sum := blake2b.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes a bundle's digest.
func Verify(b *Bundle) error {
	digest, err := Digest(b.Records)
	if err != nil {
		return err
	}
	if digest != b.Digest {
		return ErrDigestMismatch
	}
	return nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
