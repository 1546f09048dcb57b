// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// Errors returned by job stores and the scheduler.
var (
	ErrJobNotFound      = errors.New("detection job not found")
	ErrJobAlreadyExists = errors.New("detection job already exists")
)

// JobType selects the detectors a job runs.
type JobType string

const (
	JobTypeFullScan    JobType = config.JobTypeFullScan
	JobTypeIncremental JobType = config.JobTypeIncremental
	JobTypeTargeted    JobType = config.JobTypeTargeted
	JobTypeMaintenance JobType = config.JobTypeMaintenance
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeFullScan, JobTypeIncremental, JobTypeTargeted, JobTypeMaintenance:
		return true
	}
	return false
}

// RunStatus is the persisted status of a job's last execution.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// defaultMaxExecution applies when a job has no maximum execution time.
const defaultMaxExecution = 30 * time.Minute

// DetectionJob is a scheduled detection run and its rolling statistics.
type DetectionJob struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Enabled          bool          `json:"enabled"`
	Interval         time.Duration `json:"interval"`
	JobType          JobType       `json:"job_type"`
	AnalysisWindow   time.Duration `json:"analysis_window"`
	MinConfidence    float64       `json:"min_confidence"`
	TargetDevices    []string      `json:"target_devices"`
	MaxExecutionTime time.Duration `json:"max_execution_time"`

	LastRunStart *time.Time `json:"last_run_start,omitempty"`
	LastRunEnd   *time.Time `json:"last_run_end,omitempty"`
	LastStatus   RunStatus  `json:"last_status"`
	LastError    string     `json:"last_error,omitempty"`

	ExecutionCount      int        `json:"execution_count"`
	AvgDurationMs       float64    `json:"avg_duration_ms"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalAnomalies      int        `json:"total_anomalies"`
	TotalAlerts         int        `json:"total_alerts"`
	NextRunAt           *time.Time `json:"next_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NeedsAttention reports whether the job has failed threshold times in a row.
func (j *DetectionJob) NeedsAttention(threshold int) bool {
	return threshold > 0 && j.ConsecutiveFailures >= threshold
}

// maxExecution returns the job's execution limit with the default applied.
func (j *DetectionJob) maxExecution() time.Duration {
	if j.MaxExecutionTime <= 0 {
		return defaultMaxExecution
	}
	return j.MaxExecutionTime
}

// runningSince reports whether the job's persisted status says it is still
// running at now.
func (j *DetectionJob) runningSince(now time.Time) (started time.Time, fresh bool) {
	if j.LastStatus != RunStatusRunning || j.LastRunStart == nil {
		return time.Time{}, false
	}
	return *j.LastRunStart, now.Sub(*j.LastRunStart) < j.maxExecution()
}

// due reports whether the job should run at now.
func (j *DetectionJob) due(now time.Time) bool {
	return j.Enabled && (j.NextRunAt == nil || !now.Before(*j.NextRunAt))
}

// recordOutcome folds one finished execution into the rolling counters.
func (j *DetectionJob) recordOutcome(start, end time.Time, s *ExecutionSummary) {
	j.LastRunStart = &start
	j.LastRunEnd = &end
	j.ExecutionCount++
	j.AvgDurationMs += (float64(s.DurationMs) - j.AvgDurationMs) / float64(j.ExecutionCount)

	if s.Status == StatusFailed {
		j.LastStatus = RunStatusFailed
		j.LastError = s.Error
		j.ConsecutiveFailures++
	} else {
		j.LastStatus = RunStatusCompleted
		j.LastError = ""
		j.ConsecutiveFailures = 0
		j.TotalAnomalies += s.AnomaliesCreated
		j.TotalAlerts += s.AlertsCreated
	}

	if j.Interval > 0 {
		next := start.Add(j.Interval)
		j.NextRunAt = &next
	}
	j.UpdatedAt = end
}

// JobStore persists detection jobs.
type JobStore interface {
	// Create fails with ErrJobAlreadyExists when the name is taken.
	Create(ctx context.Context, j *DetectionJob) error
	// Get returns nil, nil when the job does not exist.
	Get(ctx context.Context, id string) (*DetectionJob, error)
	GetByName(ctx context.Context, name string) (*DetectionJob, error)
	List(ctx context.Context) ([]DetectionJob, error)
	// Update writes the run fields and counters.
	Update(ctx context.Context, j *DetectionJob) error
}

// SeedJobs creates the configured jobs that do not exist yet. Existing jobs
// keep their stored settings and statistics.
func SeedJobs(ctx context.Context, store JobStore, jobs []config.JobConfig) (int, error) {
	created := 0
	for _, jc := range jobs {
		existing, err := store.GetByName(ctx, jc.Name)
		if err != nil {
			return created, fmt.Errorf("look up job %s: %w", jc.Name, err)
		}
		if existing != nil {
			continue
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		j := &DetectionJob{
			ID:               uuid.New().String(),
			Name:             jc.Name,
			Enabled:          jc.Enabled,
			Interval:         jc.Interval,
			JobType:          JobType(jc.Type),
			AnalysisWindow:   jc.AnalysisWindow,
			MinConfidence:    jc.MinConfidence,
			TargetDevices:    append([]string{}, jc.TargetDevices...),
			MaxExecutionTime: jc.MaxExecutionTime,
			LastStatus:       RunStatusIdle,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if !j.JobType.Valid() {
			return created, fmt.Errorf("job %s: unknown type %q", jc.Name, jc.Type)
		}
		if err := store.Create(ctx, j); err != nil {
			if errors.Is(err, ErrJobAlreadyExists) {
				continue
			}
			return created, fmt.Errorf("create job %s: %w", jc.Name, err)
		}
		created++
		logging.Info().
			Str("job_id", j.ID).
			Str("job", j.Name).
			Str("type", string(j.JobType)).
			Dur("interval", j.Interval).
			Msg("Detection job seeded")
	}
	return created, nil
}
