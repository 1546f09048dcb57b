// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/measurement"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// DetectorStat summarizes one detector invocation.
type DetectorStat struct {
	Detector   AnomalyType `json:"detector"`
	Candidates int         `json:"candidates"`
	DurationMs int64       `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
}

// Runner executes detectors sequentially. A failing or panicking detector
// is recorded and skipped; the others still run.
type Runner struct {
	detectors map[AnomalyType]Detector
}

// NewRunner registers the given detectors by type.
func NewRunner(detectors ...Detector) *Runner {
	r := &Runner{detectors: make(map[AnomalyType]Detector, len(detectors))}
	for _, d := range detectors {
		r.detectors[d.Type()] = d
	}
	return r
}

// NewDefaultRunner wires the five detectors to a measurement store.
func NewDefaultRunner(store measurement.Store, cfg config.DetectionConfig) *Runner {
	return NewRunner(
		NewImpossibleDistance(store, cfg.ImpossibleDistance),
		NewCoordinatedMovement(store, cfg.CoordinatedMovement),
		NewSequentialMac(store, cfg.SequentialMac),
		NewAerialSignature(store, cfg.Aerial),
		NewRouteCorrelation(store, cfg.SelfDeviceID, cfg.RouteCorrelation),
	)
}

// Run executes the requested detectors in order and appends multi-vector
// composites. The error is non-nil only when ctx ends the run early.
func (r *Runner) Run(ctx context.Context, types []AnomalyType, req Request) ([]Candidate, []DetectorStat, error) {
	var all []Candidate
	stats := make([]DetectorStat, 0, len(types))

	for _, t := range types {
		if err := ctx.Err(); err != nil {
			return all, stats, err
		}
		d, ok := r.detectors[t]
		if !ok {
			stats = append(stats, DetectorStat{Detector: t, Error: "detector not registered"})
			continue
		}

		candidates, stat := r.runOne(ctx, d, req)
		stats = append(stats, stat)
		all = append(all, candidates...)
	}

	return append(all, MultiVector(all)...), stats, nil
}

func (r *Runner) runOne(ctx context.Context, d Detector, req Request) (candidates []Candidate, stat DetectorStat) {
	stat.Detector = d.Type()
	start := time.Now()
	outcome := "ok"

	defer func() {
		if rec := recover(); rec != nil {
			outcome = "panic"
			candidates = nil
			stat.Error = fmt.Sprintf("panic: %v", rec)
			logging.Ctx(ctx).Error().
				Str("detector", string(d.Type())).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Detector panicked")
		}
		elapsed := time.Since(start)
		stat.DurationMs = elapsed.Milliseconds()
		stat.Candidates = len(candidates)
		metrics.RecordDetectorRun(string(d.Type()), outcome, len(candidates), elapsed)
	}()

	found, err := d.Detect(ctx, req)
	if err != nil {
		outcome = "error"
		stat.Error = err.Error()
		logging.Ctx(ctx).Error().Err(err).Str("detector", string(d.Type())).Msg("Detector failed")
		return nil, stat
	}

	valid := found[:0]
	for _, c := range found {
		if err := c.Evidence.Validate(); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("detector", string(d.Type())).
				Str("device_id", c.PrimaryDevice).Msg("Dropping candidate with malformed evidence")
			continue
		}
		valid = append(valid, c)
	}
	return valid, stat
}
