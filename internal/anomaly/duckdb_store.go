// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package anomaly

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// DuckDBStore persists anomalies in the surveillance_anomalies table.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed anomaly store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the surveillance_anomalies table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS surveillance_anomalies (
			id TEXT PRIMARY KEY,
			dedupe_key TEXT NOT NULL UNIQUE,
			anomaly_type TEXT NOT NULL,
			primary_device TEXT NOT NULL,
			related_devices TEXT NOT NULL,
			locations TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			confidence DOUBLE NOT NULL,
			strength TEXT NOT NULL,
			priority INTEGER NOT NULL,
			status TEXT NOT NULL,
			evidence TEXT NOT NULL,
			evidence_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			reviewed_by TEXT,
			review_notes TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_anomalies_primary ON surveillance_anomalies(primary_device);
		CREATE INDEX IF NOT EXISTS idx_anomalies_status ON surveillance_anomalies(status);
		CREATE INDEX IF NOT EXISTS idx_anomalies_created ON surveillance_anomalies(created_at DESC)
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

	logging.Info().Msg("Surveillance anomalies table created/verified")
	return nil
}

// Create implements Store.
func (s *DuckDBStore) Create(ctx context.Context, a *SurveillanceAnomaly) error {
	related, err := json.Marshal(nonNil(a.RelatedDevices))
	if err != nil {
		return fmt.Errorf("failed to marshal related devices: %w", err)
	}
	locations, err := json.Marshal(a.Locations)
	if err != nil {
		return fmt.Errorf("failed to marshal locations: %w", err)
	}

	start := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO surveillance_anomalies (
			id, dedupe_key, anomaly_type, primary_device, related_devices, locations,
			start_time, end_time, confidence, strength, priority, status,
			evidence, evidence_hash, created_at, updated_at, reviewed_by, review_notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DedupeKey, string(a.Type), a.PrimaryDevice, string(related), string(locations),
		a.Start, a.End, a.Confidence, string(a.Strength), a.Priority, string(a.Status),
		string(a.Evidence), a.EvidenceHash, a.CreatedAt, a.UpdatedAt, a.ReviewedBy, a.ReviewNotes)
	metrics.RecordDBQuery("insert", "surveillance_anomalies", time.Since(start), err)
	if database.IsUniqueConstraintError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

const anomalyColumns = `id, dedupe_key, anomaly_type, primary_device, related_devices, locations,
	start_time, end_time, confidence, strength, priority, status,
	evidence, evidence_hash, created_at, updated_at,
	COALESCE(reviewed_by, ''), COALESCE(review_notes, '')`

// Get implements Store.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*SurveillanceAnomaly, error) {
	return s.getOne(ctx, `SELECT `+anomalyColumns+` FROM surveillance_anomalies WHERE id = ?`, id)
}

// GetByDedupeKey implements Store.
func (s *DuckDBStore) GetByDedupeKey(ctx context.Context, key string) (*SurveillanceAnomaly, error) {
	return s.getOne(ctx, `SELECT `+anomalyColumns+` FROM surveillance_anomalies WHERE dedupe_key = ?`, key)
}

func (s *DuckDBStore) getOne(ctx context.Context, query string, arg any) (*SurveillanceAnomaly, error) {
	a, err := scanAnomaly(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anomaly: %w", err)
	}
	return a, nil
}

// UpdateReview implements Store.
func (s *DuckDBStore) UpdateReview(ctx context.Context, a *SurveillanceAnomaly) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE surveillance_anomalies
		SET status = ?, strength = ?, reviewed_by = ?, review_notes = ?, updated_at = ?
		WHERE id = ?`,
		string(a.Status), string(a.Strength), a.ReviewedBy, a.ReviewNotes, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update anomaly: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements Store.
func (s *DuckDBStore) List(ctx context.Context, f Filter) ([]SurveillanceAnomaly, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "anomaly_type = ?")
		args = append(args, string(f.Type))
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.CreatedBefore)
	}

	query := `SELECT ` + anomalyColumns + ` FROM surveillance_anomalies`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority DESC, created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.query(ctx, query, args...)
}

// ForDevices implements Store. The LIKE prefilter over the JSON column can
// over-match; results are checked exactly before returning.
func (s *DuckDBStore) ForDevices(ctx context.Context, deviceIDs []string) ([]SurveillanceAnomaly, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(deviceIDs))
	args := make([]any, 0, 2*len(deviceIDs))
	for i, id := range deviceIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	likes := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		likes[i] = "related_devices LIKE ?"
		args = append(args, `%"`+id+`"%`)
	}

	query := `SELECT ` + anomalyColumns + ` FROM surveillance_anomalies
		WHERE primary_device IN (` + strings.Join(placeholders, ", ") + `)
		OR ` + strings.Join(likes, " OR ") + `
		ORDER BY priority DESC, created_at DESC, id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for i := range rows {
		if involvesAny(&rows[i], deviceIDs) {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

func (s *DuckDBStore) query(ctx context.Context, query string, args ...any) ([]SurveillanceAnomaly, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "surveillance_anomalies", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var out []SurveillanceAnomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomalies: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnomaly(row rowScanner) (*SurveillanceAnomaly, error) {
	var (
		a                             SurveillanceAnomaly
		anomalyType, strength, status string
		related, locations, evidence  string
	)
	err := row.Scan(&a.ID, &a.DedupeKey, &anomalyType, &a.PrimaryDevice, &related, &locations,
		&a.Start, &a.End, &a.Confidence, &strength, &a.Priority, &status,
		&evidence, &a.EvidenceHash, &a.CreatedAt, &a.UpdatedAt, &a.ReviewedBy, &a.ReviewNotes)
	if err != nil {
		return nil, err
	}
	a.Type = detection.AnomalyType(anomalyType)
	a.Strength = Strength(strength)
	a.Status = Status(status)
	a.Evidence = json.RawMessage(evidence)
	if err := json.Unmarshal([]byte(related), &a.RelatedDevices); err != nil {
		return nil, fmt.Errorf("decode related devices: %w", err)
	}
	if err := json.Unmarshal([]byte(locations), &a.Locations); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Store = (*DuckDBStore)(nil)
