// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// DuckDBStore persists jobs in the detection_jobs table. Durations are
// stored in milliseconds.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed job store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the detection_jobs table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS detection_jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			enabled BOOLEAN NOT NULL DEFAULT true,
			interval_ms BIGINT NOT NULL,
			job_type TEXT NOT NULL,
			analysis_window_ms BIGINT NOT NULL,
			min_confidence DOUBLE NOT NULL,
			target_devices TEXT NOT NULL DEFAULT '[]',
			max_execution_ms BIGINT NOT NULL,
			last_run_start TIMESTAMPTZ,
			last_run_end TIMESTAMPTZ,
			last_status TEXT NOT NULL DEFAULT 'idle',
			last_error TEXT,
			execution_count INTEGER NOT NULL DEFAULT 0,
			avg_duration_ms DOUBLE NOT NULL DEFAULT 0,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			total_anomalies INTEGER NOT NULL DEFAULT 0,
			total_alerts INTEGER NOT NULL DEFAULT 0,
			next_run_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_next_run ON detection_jobs(next_run_at)
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Msg("Detection jobs table created/verified")
	return nil
}

// Create implements JobStore.
func (s *DuckDBStore) Create(ctx context.Context, j *DetectionJob) error {
	targets, err := json.Marshal(nonNil(j.TargetDevices))
	if err != nil {
		return fmt.Errorf("failed to marshal target devices: %w", err)
	}

	start := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO detection_jobs (
			id, name, enabled, interval_ms, job_type, analysis_window_ms, min_confidence,
			target_devices, max_execution_ms, last_status, next_run_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Name, j.Enabled, j.Interval.Milliseconds(), string(j.JobType), j.AnalysisWindow.Milliseconds(),
		j.MinConfidence, string(targets), j.MaxExecutionTime.Milliseconds(), string(j.LastStatus),
		j.NextRunAt, j.CreatedAt, j.UpdatedAt)
	metrics.RecordDBQuery("insert", "detection_jobs", time.Since(start), err)
	if database.IsUniqueConstraintError(err) {
		return ErrJobAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, name, enabled, interval_ms, job_type, analysis_window_ms, min_confidence,
	target_devices, max_execution_ms, last_run_start, last_run_end, last_status, last_error,
	execution_count, avg_duration_ms, consecutive_failures, total_anomalies, total_alerts,
	next_run_at, created_at, updated_at`

// Get implements JobStore.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*DetectionJob, error) {
	return s.getOne(ctx, `SELECT `+jobColumns+` FROM detection_jobs WHERE id = ?`, id)
}

// GetByName implements JobStore.
func (s *DuckDBStore) GetByName(ctx context.Context, name string) (*DetectionJob, error) {
	return s.getOne(ctx, `SELECT `+jobColumns+` FROM detection_jobs WHERE name = ?`, name)
}

func (s *DuckDBStore) getOne(ctx context.Context, query string, arg any) (*DetectionJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// List implements JobStore.
func (s *DuckDBStore) List(ctx context.Context) ([]DetectionJob, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM detection_jobs ORDER BY name`)
	metrics.RecordDBQuery("select", "detection_jobs", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []DetectionJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// Update implements JobStore.
func (s *DuckDBStore) Update(ctx context.Context, j *DetectionJob) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE detection_jobs
		SET last_run_start = ?, last_run_end = ?, last_status = ?, last_error = ?,
			execution_count = ?, avg_duration_ms = ?, consecutive_failures = ?,
			total_anomalies = ?, total_alerts = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?`,
		j.LastRunStart, j.LastRunEnd, string(j.LastStatus), nullString(j.LastError),
		j.ExecutionCount, j.AvgDurationMs, j.ConsecutiveFailures,
		j.TotalAnomalies, j.TotalAlerts, j.NextRunAt, j.UpdatedAt, j.ID)
	metrics.RecordDBQuery("update", "detection_jobs", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*DetectionJob, error) {
	var (
		j                               DetectionJob
		intervalMs, windowMs, maxExecMs int64
		jobType, targets, status        string
		lastError                       sql.NullString
		lastStart, lastEnd, nextRun     sql.NullTime
	)
	err := row.Scan(&j.ID, &j.Name, &j.Enabled, &intervalMs, &jobType, &windowMs, &j.MinConfidence,
		&targets, &maxExecMs, &lastStart, &lastEnd, &status, &lastError,
		&j.ExecutionCount, &j.AvgDurationMs, &j.ConsecutiveFailures, &j.TotalAnomalies, &j.TotalAlerts,
		&nextRun, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	j.Interval = time.Duration(intervalMs) * time.Millisecond
	j.AnalysisWindow = time.Duration(windowMs) * time.Millisecond
	j.MaxExecutionTime = time.Duration(maxExecMs) * time.Millisecond
	j.JobType = JobType(jobType)
	j.LastStatus = RunStatus(status)
	j.LastError = lastError.String
	j.LastRunStart = timePtr(lastStart)
	j.LastRunEnd = timePtr(lastEnd)
	j.NextRunAt = timePtr(nextRun)
	if err := json.Unmarshal([]byte(targets), &j.TargetDevices); err != nil {
		return nil, fmt.Errorf("decode target devices: %w", err)
	}
	return &j, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ JobStore = (*DuckDBStore)(nil)
