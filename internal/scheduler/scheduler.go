// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// leaseGrace keeps a lease alive slightly past the execution timeout so the
// final status write happens while it is still held.
const leaseGrace = time.Minute

// CompletionListener is told about every finished execution.
type CompletionListener func(summary ExecutionSummary)

// Scheduler triggers detection jobs on their interval and on demand.
type Scheduler struct {
	store    JobStore
	executor Executor
	locker   Locker
	cfg      config.SchedulerConfig
	listener CompletionListener
	now      func() time.Time

	// Runtime state
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler. listener may be nil.
func NewScheduler(store JobStore, executor Executor, locker Locker, cfg config.SchedulerConfig, listener CompletionListener) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	return &Scheduler{
		store:    store,
		executor: executor,
		locker:   locker,
		cfg:      cfg,
		listener: listener,
		now:      time.Now,
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "detection-scheduler"
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := s.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	if !s.cfg.Enabled {
		logging.Info().Msg("Detection scheduler disabled, jobs run on manual trigger only")
		go func() {
			defer close(doneCh)
			select {
			case <-stopCh:
			case <-ctx.Done():
			}
		}()
		return nil
	}

	logging.Info().
		Dur("check_interval", s.cfg.CheckInterval).
		Int("failure_threshold", s.cfg.FailureThreshold).
		Msg("Starting detection scheduler")

	go s.run(ctx, stopCh, doneCh)
	return nil
}

// Stop stops the scheduler loop and waits for the current job to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	logging.Info().Msg("Detection scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.runDue(ctx)

	for {
		select {
		case <-ticker.C:
			s.runDue(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runDue runs every due job, one after another.
func (s *Scheduler) runDue(ctx context.Context) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list detection jobs")
		return
	}

	now := s.now()
	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		if !jobs[i].due(now) {
			continue
		}
		if _, err := s.RunJob(ctx, jobs[i].ID, false); err != nil {
			logging.Error().Err(err).Str("job_id", jobs[i].ID).Str("job", jobs[i].Name).Msg("Failed to run detection job")
		}
	}
}

// RunJob triggers one job. Execution failures are reported in the summary;
// the error is reserved for failures to load or update the job itself.
func (s *Scheduler) RunJob(ctx context.Context, id string, manual bool) (ExecutionSummary, error) {
	job, err := s.loadJob(ctx, id)
	if err != nil {
		return ExecutionSummary{}, err
	}
	summary := ExecutionSummary{JobID: job.ID, JobName: job.Name, JobType: job.JobType, Manual: manual}

	if !job.Enabled {
		summary.Status = StatusDisabled
		return summary, nil
	}

	lease, err := s.locker.Acquire(ctx, leaseKey(job.ID), job.maxExecution()+leaseGrace)
	if errors.Is(err, ErrLeaseHeld) {
		metrics.JobLeaseContention.WithLabelValues(job.Name).Inc()
		logging.Info().Str("job_id", job.ID).Str("job", job.Name).Msg("Detection job already running, lease held")
		summary.Status = StatusAlreadyRunning
		return summary, nil
	}
	if err != nil {
		return summary, fmt.Errorf("acquire lease for job %s: %w", job.Name, err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logging.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to release job lease")
		}
	}()

	// Reload under the lease so the status guard sees the last writer's state.
	if job, err = s.loadJob(ctx, id); err != nil {
		return summary, err
	}

	start := s.now().UTC().Truncate(time.Microsecond)
	if started, fresh := job.runningSince(start); fresh {
		logging.Info().
			Str("job_id", job.ID).
			Str("job", job.Name).
			Time("started", started).
			Msg("Detection job already running")
		summary.Status = StatusAlreadyRunning
		return summary, nil
	} else if !started.IsZero() {
		logging.Warn().
			Str("job_id", job.ID).
			Str("job", job.Name).
			Time("started", started).
			Dur("max_execution_time", job.maxExecution()).
			Msg("Recovering stale running status")
	}

	job.LastStatus = RunStatusRunning
	job.LastRunStart = &start
	job.UpdatedAt = start
	if err := s.store.Update(ctx, job); err != nil {
		return summary, fmt.Errorf("mark job %s running: %w", job.Name, err)
	}

	executionID := uuid.New().String()
	execCtx := logging.ContextWithJob(ctx, job.ID, executionID)
	execCtx = logging.ContextWithCorrelationID(execCtx, executionID)
	execCtx, cancel := context.WithTimeout(execCtx, job.maxExecution())
	result, execErr := s.execute(execCtx, job)
	cancel()

	end := s.now().UTC().Truncate(time.Microsecond)
	result.JobID = job.ID
	result.JobName = job.Name
	result.JobType = job.JobType
	result.ExecutionID = executionID
	result.Manual = manual
	result.StartedAt = start
	result.DurationMs = end.Sub(start).Milliseconds()
	result.Status = StatusCompleted
	if execErr != nil {
		result.Status = StatusFailed
		result.Error = execErr.Error()
	}

	job.recordOutcome(start, end, &result)
	// The execution context may have timed out; the outcome is still written.
	if err := s.store.Update(context.WithoutCancel(ctx), job); err != nil {
		logging.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job outcome")
	}
	s.report(execCtx, job, &result, end.Sub(start))

	if job.JobType == JobTypeMaintenance {
		s.collectLeaseGarbage()
	}
	if s.listener != nil {
		s.listener(result)
	}
	return result, nil
}

// execute runs the executor, converting a panic into an error.
func (s *Scheduler) execute(ctx context.Context, job *DetectionJob) (summary ExecutionSummary, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
			logging.Ctx(ctx).Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Detection job panicked")
		}
	}()
	return s.executor.Execute(ctx, job)
}

func (s *Scheduler) report(ctx context.Context, job *DetectionJob, result *ExecutionSummary, duration time.Duration) {
	metrics.RecordJobExecution(job.Name, result.Status, duration, job.ConsecutiveFailures)

	attention := job.NeedsAttention(s.cfg.FailureThreshold)
	if attention {
		metrics.JobNeedsAttention.WithLabelValues(job.Name).Set(1)
	} else {
		metrics.JobNeedsAttention.WithLabelValues(job.Name).Set(0)
	}

	log := logging.Ctx(ctx)
	if result.Status == StatusFailed {
		log.Error().
			Str("error", result.Error).
			Bool("needs_attention", attention).
			Str("job", job.Name).
			Int("consecutive_failures", job.ConsecutiveFailures).
			Dur("duration", duration).
			Msg("Detection job failed")
		return
	}

	log.Info().
		Str("job", job.Name).
		Str("type", string(job.JobType)).
		Int("candidates", result.CandidatesFound).
		Int("suppressed", result.CandidatesSuppressed).
		Int("anomalies", result.AnomaliesCreated).
		Int("deduplicated", result.AnomaliesDeduplicated).
		Int("alerts", result.AlertsCreated).
		Int("correlations", result.CorrelationsRun).
		Int("archived", result.AnomaliesArchived).
		Dur("duration", duration).
		Msg("Detection job completed")
}

func (s *Scheduler) collectLeaseGarbage() {
	gc, ok := s.locker.(interface{ RunGC() error })
	if !ok {
		return
	}
	if err := gc.RunGC(); err != nil {
		logging.Warn().Err(err).Msg("Lease store garbage collection failed")
	}
}

func (s *Scheduler) loadJob(ctx context.Context, id string) (*DetectionJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Job returns one job.
func (s *Scheduler) Job(ctx context.Context, id string) (*DetectionJob, error) {
	return s.loadJob(ctx, id)
}

// Jobs returns every job.
func (s *Scheduler) Jobs(ctx context.Context) ([]DetectionJob, error) {
	return s.store.List(ctx)
}

// JobHealth describes a job that needs operator attention.
type JobHealth struct {
	JobID               string     `json:"job_id"`
	Name                string     `json:"name"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastRunEnd          *time.Time `json:"last_run_end,omitempty"`
}

// HealthReport summarizes scheduler health.
type HealthReport struct {
	Healthy        bool        `json:"healthy"`
	Running        bool        `json:"running"`
	Jobs           int         `json:"jobs"`
	NeedsAttention []JobHealth `json:"needs_attention"`
}

// Health lists the jobs at or over the failure threshold.
func (s *Scheduler) Health(ctx context.Context) (HealthReport, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return HealthReport{}, err
	}

	s.mu.Lock()
	report := HealthReport{Running: s.running, Jobs: len(jobs), NeedsAttention: []JobHealth{}}
	s.mu.Unlock()

	for i := range jobs {
		j := &jobs[i]
		if !j.NeedsAttention(s.cfg.FailureThreshold) {
			continue
		}
		report.NeedsAttention = append(report.NeedsAttention, JobHealth{
			JobID:               j.ID,
			Name:                j.Name,
			ConsecutiveFailures: j.ConsecutiveFailures,
			LastError:           j.LastError,
			LastRunEnd:          j.LastRunEnd,
		})
	}
	report.Healthy = len(report.NeedsAttention) == 0
	return report, nil
}
