// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

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

// DuckDBStore persists alerts in the surveillance_alerts table.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed alert store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the surveillance_alerts table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS surveillance_alerts (
			id TEXT PRIMARY KEY,
			anomaly_id TEXT NOT NULL UNIQUE,
			anomaly_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			recommended_actions TEXT NOT NULL,
			confidence DOUBLE NOT NULL,
			priority INTEGER NOT NULL,
			status TEXT NOT NULL,
			is_false_positive BOOLEAN NOT NULL DEFAULT false,
			dismiss_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			acknowledged_at TIMESTAMPTZ,
			acknowledged_by TEXT,
			dismissed_at TIMESTAMPTZ,
			dismissed_by TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_status ON surveillance_alerts(status);
		CREATE INDEX IF NOT EXISTS idx_alerts_created ON surveillance_alerts(created_at DESC)
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

	logging.Info().Msg("Surveillance alerts table created/verified")
	return nil
}

// Create implements Store.
func (s *DuckDBStore) Create(ctx context.Context, a *Alert) error {
	actions, err := json.Marshal(nonNil(a.RecommendedActions))
	if err != nil {
		return fmt.Errorf("failed to marshal recommended actions: %w", err)
	}

	start := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO surveillance_alerts (
			id, anomaly_id, anomaly_type, severity, title, description, recommended_actions,
			confidence, priority, status, is_false_positive, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AnomalyID, string(a.Type), string(a.Severity), a.Title, a.Description, string(actions),
		a.Confidence, a.Priority, string(a.Status), a.IsFalsePositive, a.CreatedAt)
	metrics.RecordDBQuery("insert", "surveillance_alerts", time.Since(start), err)
	if database.IsUniqueConstraintError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

const alertColumns = `id, anomaly_id, anomaly_type, severity, title, description, recommended_actions,
	confidence, priority, status, is_false_positive, dismiss_reason, created_at,
	acknowledged_at, acknowledged_by, dismissed_at, dismissed_by`

// Get implements Store.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Alert, error) {
	return s.getOne(ctx, `SELECT `+alertColumns+` FROM surveillance_alerts WHERE id = ?`, id)
}

// GetByAnomaly implements Store.
func (s *DuckDBStore) GetByAnomaly(ctx context.Context, anomalyID string) (*Alert, error) {
	return s.getOne(ctx, `SELECT `+alertColumns+` FROM surveillance_alerts WHERE anomaly_id = ?`, anomalyID)
}

func (s *DuckDBStore) getOne(ctx context.Context, query string, arg any) (*Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// List implements Store.
func (s *DuckDBStore) List(ctx context.Context, f Filter) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM surveillance_alerts WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	query += " ORDER BY created_at DESC, id"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	} else {
		query += fmt.Sprintf(" LIMIT %d", defaultListLimit)
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// UpdateReview implements Store.
func (s *DuckDBStore) UpdateReview(ctx context.Context, a *Alert) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE surveillance_alerts
		SET status = ?, is_false_positive = ?, dismiss_reason = ?,
			acknowledged_at = ?, acknowledged_by = ?, dismissed_at = ?, dismissed_by = ?
		WHERE id = ?`,
		string(a.Status), a.IsFalsePositive, nullString(a.DismissReason),
		a.AcknowledgedAt, nullString(a.AcknowledgedBy), a.DismissedAt, nullString(a.DismissedBy), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
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

// FalsePositiveAnomalyIDs implements Store.
func (s *DuckDBStore) FalsePositiveAnomalyIDs(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT anomaly_id FROM surveillance_alerts
		WHERE is_false_positive AND dismissed_at < ?
		ORDER BY anomaly_id`, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query false positives: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var (
		a                                      Alert
		anomalyType, severity, status, actions string
		dismissReason, ackBy, dismissedBy      sql.NullString
		ackAt, dismissedAt                     sql.NullTime
	)
	err := row.Scan(&a.ID, &a.AnomalyID, &anomalyType, &severity, &a.Title, &a.Description, &actions,
		&a.Confidence, &a.Priority, &status, &a.IsFalsePositive, &dismissReason, &a.CreatedAt,
		&ackAt, &ackBy, &dismissedAt, &dismissedBy)
	if err != nil {
		return nil, err
	}

	a.Type = detection.AnomalyType(anomalyType)
	a.Severity = Severity(severity)
	a.Status = Status(status)
	a.DismissReason = dismissReason.String
	a.AcknowledgedBy = ackBy.String
	a.DismissedBy = dismissedBy.String
	if ackAt.Valid {
		t := ackAt.Time
		a.AcknowledgedAt = &t
	}
	if dismissedAt.Valid {
		t := dismissedAt.Time
		a.DismissedAt = &t
	}
	if err := json.Unmarshal([]byte(actions), &a.RecommendedActions); err != nil {
		return nil, fmt.Errorf("decode recommended actions: %w", err)
	}
	return &a, nil
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

var _ Store = (*DuckDBStore)(nil)
