// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package correlation scores how likely a device is to be government or
// professional surveillance infrastructure.
//
// The score blends the device registry's contractor likelihood, keyword
// tiers found in the manufacturer name, and agency or tactical keywords in
// the device's free-text metadata. Keyword contributions are capped per
// category so repeated hits cannot run the score away.
package correlation

import (
	"context"
	"math"
	"time"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/measurement"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// DeploymentPattern labels a correlation by confidence band.
type DeploymentPattern string

const (
	PatternHighConfidence DeploymentPattern = "high_confidence_government"
	PatternProbable       DeploymentPattern = "probable_government"
	PatternPossible       DeploymentPattern = "possible_government"
	PatternUnknown        DeploymentPattern = "unknown"
)

// LabelFor maps a confidence to its deployment pattern.
func LabelFor(confidence float64) DeploymentPattern {
	switch {
	case confidence >= 0.8:
		return PatternHighConfidence
	case confidence >= 0.6:
		return PatternProbable
	case confidence >= 0.3:
		return PatternPossible
	default:
		return PatternUnknown
	}
}

// Correlation is the stored result for one device.
type Correlation struct {
	DeviceID                  string            `json:"device_id"`
	Manufacturer              string            `json:"manufacturer,omitempty"`
	Confidence                float64           `json:"confidence"`
	RegistryScore             float64           `json:"registry_score"`
	ManufacturerScore         float64           `json:"manufacturer_score"`
	AgencyMatches             []string          `json:"agency_matches"`
	TacticalMatches           []string          `json:"tactical_matches"`
	Pattern                   DeploymentPattern `json:"deployment_pattern"`
	RequiresHumanVerification bool              `json:"requires_human_verification"`
	AnalyzedAt                time.Time         `json:"analyzed_at"`
}

// Correlator produces and caches correlations.
type Correlator struct {
	registry measurement.Registry
	store    Store
	cfg      config.CorrelationConfig
	now      func() time.Time
}

// NewCorrelator creates a correlator.
func NewCorrelator(registry measurement.Registry, store Store, cfg config.CorrelationConfig) *Correlator {
	return &Correlator{
		registry: registry,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Correlate returns the correlation for deviceID. A stored result analyzed
// within the freshness window is returned as is unless force is set. The
// second return value reports whether a new analysis ran.
func (c *Correlator) Correlate(ctx context.Context, deviceID string, force bool) (*Correlation, bool, error) {
	now := c.now().UTC()

	if !force {
		existing, err := c.store.Get(ctx, deviceID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil && now.Sub(existing.AnalyzedAt) < c.cfg.FreshnessWindow {
			return existing, false, nil
		}
	}

	result := c.analyze(ctx, deviceID)
	result.AnalyzedAt = now

	if err := c.store.Upsert(ctx, result); err != nil {
		return nil, false, err
	}
	metrics.CorrelationsTotal.WithLabelValues(string(result.Pattern)).Inc()

	logging.Ctx(ctx).Debug().
		Str("device_id", deviceID).
		Float64("confidence", result.Confidence).
		Str("pattern", string(result.Pattern)).
		Strs("agencies", result.AgencyMatches).
		Msg("Device correlated")

	return result, true, nil
}

// analyze never fails: lookup errors degrade to a zero likelihood.
func (c *Correlator) analyze(ctx context.Context, deviceID string) *Correlation {
	result := &Correlation{
		DeviceID:        deviceID,
		AgencyMatches:   []string{},
		TacticalMatches: []string{},
	}

	device, err := c.registry.Device(ctx, deviceID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("device_id", deviceID).
			Msg("Device lookup failed, using zero government likelihood")
	}
	if device != nil {
		result.Manufacturer = device.Manufacturer
		result.RegistryScore = device.GovernmentLikelihood
		result.ManufacturerScore = ManufacturerScore(device.Manufacturer)
	}

	metadata, err := c.registry.Metadata(ctx, deviceID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("device_id", deviceID).Msg("Metadata lookup failed")
	}
	for _, kw := range metadataMatcher.Distinct(metadata...) {
		switch kw.Category {
		case CategoryAgency:
			result.AgencyMatches = append(result.AgencyMatches, kw.Text)
		case CategoryTactical:
			result.TacticalMatches = append(result.TacticalMatches, kw.Text)
		}
	}

	base := math.Max(result.RegistryScore, result.ManufacturerScore)
	agencyBoost := math.Min(float64(len(result.AgencyMatches))*c.cfg.AgencyKeywordStep, c.cfg.AgencyKeywordCap)
	tacticalBoost := math.Min(float64(len(result.TacticalMatches))*c.cfg.TacticalKeywordStep, c.cfg.TacticalKeywordCap)

	result.Confidence = math.Min(1, base+agencyBoost+tacticalBoost)
	result.Confidence = math.Round(result.Confidence*1000) / 1000
	result.Pattern = LabelFor(result.Confidence)
	result.RequiresHumanVerification = result.Confidence < c.cfg.VerificationThreshold
	return result
}
