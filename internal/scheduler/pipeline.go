// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/shadowcheck/internal/alerting"
	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/contextfilter"
	"github.com/tomtom215/shadowcheck/internal/correlation"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/geo"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/measurement"
)

// Execution statuses reported in an ExecutionSummary.
const (
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusAlreadyRunning = "already_running"
	StatusDisabled       = "disabled"
)

// ExecutionSummary describes one job trigger.
type ExecutionSummary struct {
	JobID       string    `json:"job_id"`
	JobName     string    `json:"job_name"`
	JobType     JobType   `json:"job_type"`
	ExecutionID string    `json:"execution_id,omitempty"`
	Status      string    `json:"status"`
	Manual      bool      `json:"manual"`
	StartedAt   time.Time `json:"started_at"`

	CandidatesFound       int `json:"candidates_found"`
	CandidatesBelowMin    int `json:"candidates_below_min_confidence"`
	CandidatesSuppressed  int `json:"candidates_suppressed"`
	AnomaliesCreated      int `json:"anomalies_created"`
	AnomaliesDeduplicated int `json:"anomalies_deduplicated"`
	AnomaliesArchived     int `json:"anomalies_archived"`
	AlertsCreated         int `json:"alerts_created"`
	CorrelationsRun       int `json:"correlations_run"`

	DurationMs int64                      `json:"duration_ms"`
	Detectors  []detection.DetectorStat   `json:"detectors,omitempty"`
	Filter     *contextfilter.FilterStats `json:"filter,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// Executor runs the work of one job.
type Executor interface {
	Execute(ctx context.Context, job *DetectionJob) (ExecutionSummary, error)
}

// FalsePositiveSource lists anomalies whose alert was dismissed as a false
// positive before a given time.
type FalsePositiveSource interface {
	FalsePositiveAnomalyIDs(ctx context.Context, before time.Time) ([]string, error)
}

// Dependencies are the collaborators a Pipeline drives.
type Dependencies struct {
	Measurements   measurement.Store
	Runner         *detection.Runner
	Correlator     *correlation.Correlator
	Filter         *contextfilter.Filter
	Consolidator   *anomaly.Consolidator
	Anomalies      *anomaly.Service
	Alerts         *alerting.Generator
	FalsePositives FalsePositiveSource
}

var (
	fullScanDetectors = []detection.AnomalyType{
		detection.TypeImpossibleDistance,
		detection.TypeCoordinatedMovement,
		detection.TypeSequentialMac,
		detection.TypeAerialSignature,
		detection.TypeRouteCorrelation,
	}
	incrementalDetectors = []detection.AnomalyType{
		detection.TypeImpossibleDistance,
		detection.TypeCoordinatedMovement,
		detection.TypeAerialSignature,
		detection.TypeRouteCorrelation,
	}
	targetedDetectors = []detection.AnomalyType{
		detection.TypeImpossibleDistance,
		detection.TypeAerialSignature,
		detection.TypeRouteCorrelation,
	}
)

// Pipeline executes detection jobs: detectors, correlation, context
// filtering, consolidation and alert generation.
type Pipeline struct {
	deps          Dependencies
	retention     time.Duration
	governmentMin float64
	now           func() time.Time
}

// NewPipeline creates a pipeline. retention is the age after which the
// maintenance job archives anomalies; governmentMin is the registry
// likelihood that makes a device a correlation candidate.
func NewPipeline(deps Dependencies, retention time.Duration, governmentMin float64) *Pipeline {
	return &Pipeline{
		deps:          deps,
		retention:     retention,
		governmentMin: governmentMin,
		now:           time.Now,
	}
}

// Execute implements Executor. The returned summary carries the counts
// gathered up to the point of any error.
func (p *Pipeline) Execute(ctx context.Context, job *DetectionJob) (ExecutionSummary, error) {
	var summary ExecutionSummary
	if job.JobType == JobTypeMaintenance {
		err := p.maintain(ctx, &summary)
		return summary, err
	}

	now := p.now().UTC()
	req := detection.Request{From: now.Add(-job.AnalysisWindow), To: now}

	var candidates []detection.Candidate
	switch job.JobType {
	case JobTypeFullScan:
		found, err := p.detect(ctx, fullScanDetectors, req, &summary)
		if err != nil {
			return summary, err
		}
		candidates = found

	case JobTypeIncremental:
		devices, err := p.deps.Measurements.DevicesSeen(ctx, req.From, req.To)
		if err != nil {
			return summary, fmt.Errorf("list devices seen: %w", err)
		}
		if len(devices) == 0 {
			logging.Ctx(ctx).Debug().Msg("No devices seen in window, nothing to scan")
			return summary, nil
		}
		req.DeviceIDs = deviceIDs(devices)
		found, err := p.detect(ctx, incrementalDetectors, req, &summary)
		if err != nil {
			return summary, err
		}
		candidates = found

	case JobTypeTargeted:
		found, err := p.targeted(ctx, job, req, &summary)
		if err != nil {
			return summary, err
		}
		candidates = found

	default:
		return summary, fmt.Errorf("unknown job type %q", job.JobType)
	}

	if ids := externalLookupDevices(candidates); len(ids) > 0 {
		gov, err := p.correlate(ctx, ids, false, req, &summary)
		if err != nil {
			return summary, err
		}
		candidates = append(candidates, gov...)
	}

	summary.CandidatesFound = len(candidates)
	candidates = atLeast(candidates, job.MinConfidence)
	summary.CandidatesBelowMin = summary.CandidatesFound - len(candidates)

	err := p.persist(ctx, candidates, &summary)
	return summary, err
}

func (p *Pipeline) detect(ctx context.Context, types []detection.AnomalyType, req detection.Request, summary *ExecutionSummary) ([]detection.Candidate, error) {
	candidates, stats, err := p.deps.Runner.Run(ctx, types, req)
	summary.Detectors = append(summary.Detectors, stats...)
	if err != nil {
		return nil, fmt.Errorf("detection interrupted: %w", err)
	}
	return candidates, nil
}

// targeted scans the job's devices and force-correlates them. Without
// targets it correlates every government candidate in the registry.
func (p *Pipeline) targeted(ctx context.Context, job *DetectionJob, req detection.Request, summary *ExecutionSummary) ([]detection.Candidate, error) {
	if len(job.TargetDevices) > 0 {
		req.DeviceIDs = job.TargetDevices
		found, err := p.detect(ctx, targetedDetectors, req, summary)
		if err != nil {
			return nil, err
		}
		gov, err := p.correlate(ctx, job.TargetDevices, true, req, summary)
		if err != nil {
			return nil, err
		}
		return append(found, gov...), nil
	}

	devices, err := p.deps.Measurements.GovernmentCandidates(ctx, p.governmentMin)
	if err != nil {
		return nil, fmt.Errorf("list government candidates: %w", err)
	}
	return p.correlate(ctx, deviceIDs(devices), false, req, summary)
}

// correlate runs the government correlator over ids and returns a
// candidate for each high-confidence result.
func (p *Pipeline) correlate(ctx context.Context, ids []string, force bool, req detection.Request, summary *ExecutionSummary) ([]detection.Candidate, error) {
	var out []detection.Candidate
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		c, ran, err := p.deps.Correlator.Correlate(ctx, id, force)
		if err != nil {
			return out, fmt.Errorf("correlate %s: %w", id, err)
		}
		if ran {
			summary.CorrelationsRun++
		}
		if cand, ok := detection.GovernmentCandidate(c, p.lastKnownLocation(ctx, id, req)); ok {
			out = append(out, cand)
		}
	}
	return out, nil
}

func (p *Pipeline) lastKnownLocation(ctx context.Context, deviceID string, req detection.Request) []geo.Point {
	fixes, err := p.deps.Measurements.Positions(ctx, deviceID, req.From, req.To)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("device_id", deviceID).Msg("Failed to read positions for correlation")
		return nil
	}
	if len(fixes) == 0 {
		return nil
	}
	return []geo.Point{fixes[len(fixes)-1].Point}
}

// persist filters, records co-locations, consolidates and raises alerts.
func (p *Pipeline) persist(ctx context.Context, candidates []detection.Candidate, summary *ExecutionSummary) error {
	kept, stats, err := p.deps.Filter.Apply(ctx, candidates)
	if err != nil {
		return fmt.Errorf("apply context filter: %w", err)
	}
	summary.CandidatesSuppressed = stats.Total()
	summary.Filter = &stats

	for _, c := range kept {
		if c.Type != detection.TypeRouteCorrelation {
			continue
		}
		for _, other := range c.RelatedDevices {
			if err := p.deps.Filter.RecordCoLocation(ctx, c.PrimaryDevice, other, c.End); err != nil {
				logging.Ctx(ctx).Warn().Err(err).
					Str("device_a", c.PrimaryDevice).
					Str("device_b", other).
					Msg("Failed to record co-location")
			}
		}
	}

	result, consolidateErr := p.deps.Consolidator.Consolidate(ctx, kept)
	summary.AnomaliesCreated = len(result.Created)
	summary.AnomaliesDeduplicated = result.Deduplicated
	if consolidateErr != nil {
		consolidateErr = fmt.Errorf("consolidate candidates: %w", consolidateErr)
	}

	// Deduplicated anomalies are offered again so an alert lost to an
	// earlier failure is raised now. Generate skips anomalies already alerted.
	eligible := make([]*anomaly.SurveillanceAnomaly, 0, len(result.Created)+len(result.Existing))
	eligible = append(eligible, result.Created...)
	eligible = append(eligible, result.Existing...)

	alerts, err := p.deps.Alerts.Generate(ctx, eligible)
	summary.AlertsCreated = len(alerts)
	if err != nil {
		return errors.Join(consolidateErr, fmt.Errorf("generate alerts: %w", err))
	}
	return consolidateErr
}

// maintain archives dismissed and false-positive anomalies older than the
// retention period. Confirmed anomalies are kept.
func (p *Pipeline) maintain(ctx context.Context, summary *ExecutionSummary) error {
	now := p.now().UTC()
	falsePositives, err := p.deps.FalsePositives.FalsePositiveAnomalyIDs(ctx, now)
	if err != nil {
		return fmt.Errorf("list false positives: %w", err)
	}

	cutoff := now.Add(-p.retention)
	archived, err := p.deps.Anomalies.ArchiveStale(ctx, cutoff, falsePositives)
	summary.AnomaliesArchived = archived
	if err != nil {
		return fmt.Errorf("archive stale anomalies: %w", err)
	}

	logging.Ctx(ctx).Info().
		Time("cutoff", cutoff).
		Int("false_positives", len(falsePositives)).
		Int("archived", archived).
		Msg("Retention pass complete")
	return nil
}

func deviceIDs(devices []measurement.Device) []string {
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return ids
}

// externalLookupDevices returns the members of address sequences that asked
// for a government correlation.
func externalLookupDevices(candidates []detection.Candidate) []string {
	seen := make(map[string]bool)
	for _, c := range candidates {
		ev := c.Evidence.SequentialMac
		if c.Type != detection.TypeSequentialMac || ev == nil || !ev.RequiresExternalLookup {
			continue
		}
		for _, m := range ev.Members {
			seen[m.DeviceID] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func atLeast(candidates []detection.Candidate, min float64) []detection.Candidate {
	if min <= 0 {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if c.Confidence >= min {
			out = append(out, c)
		}
	}
	return out
}

var _ Executor = (*Pipeline)(nil)
