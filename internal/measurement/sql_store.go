// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package measurement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore reads observations over database/sql. Queries use $n placeholders
// and portable types so the same store runs against DuckDB (duckdb driver)
// and PostgreSQL (pgx stdlib driver).
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// schemaStatements mirror the tables written by the ingestion pipeline. They
// exist so tests and local setups can run without it.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS manufacturers (
		manufacturer_id VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS government_contractors (
		manufacturer_id VARCHAR PRIMARY KEY,
		likelihood FLOAT8 NOT NULL,
		agency VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		device_id VARCHAR PRIMARY KEY,
		manufacturer_id VARCHAR,
		name VARCHAR,
		comment VARCHAR,
		network_type VARCHAR,
		first_seen TIMESTAMP,
		last_seen TIMESTAMP,
		total_readings BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS position_observations (
		device_id VARCHAR NOT NULL,
		observed_at TIMESTAMP NOT NULL,
		latitude FLOAT8 NOT NULL,
		longitude FLOAT8 NOT NULL,
		altitude FLOAT8,
		accuracy_m FLOAT8,
		source_id VARCHAR
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_device_time ON position_observations(device_id, observed_at)`,
	`CREATE TABLE IF NOT EXISTS signal_observations (
		device_id VARCHAR NOT NULL,
		observed_at TIMESTAMP NOT NULL,
		signal_dbm FLOAT8,
		encryption VARCHAR,
		channel INTEGER,
		source_id VARCHAR
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_device_time ON signal_observations(device_id, observed_at)`,
}

// CreateSchema creates the observation tables if they are missing.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create measurement schema: %w", err)
		}
	}
	return nil
}

const positionColumns = `device_id, observed_at, latitude, longitude, altitude, COALESCE(accuracy_m, 0), COALESCE(source_id, '')`

// Positions implements Reader.
func (s *SQLStore) Positions(ctx context.Context, deviceID string, from, to time.Time) ([]PositionObservation, error) {
	query := `SELECT ` + positionColumns + `
		FROM position_observations
		WHERE device_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at`

	rows, err := s.db.QueryContext(ctx, query, deviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var out []PositionObservation
	err = scanPositions(rows, func(p PositionObservation) { out = append(out, p) })
	return out, err
}

// PositionsInWindow implements Reader.
func (s *SQLStore) PositionsInWindow(ctx context.Context, from, to time.Time, deviceIDs []string) (map[string][]PositionObservation, error) {
	query := `SELECT ` + positionColumns + `
		FROM position_observations
		WHERE observed_at >= $1 AND observed_at <= $2`
	args := []any{from, to}

	if len(deviceIDs) > 0 {
		placeholders := make([]string, len(deviceIDs))
		for i, id := range deviceIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += ` AND device_id IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY device_id, observed_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions in window: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]PositionObservation)
	err = scanPositions(rows, func(p PositionObservation) {
		out[p.DeviceID] = append(out[p.DeviceID], p)
	})
	return out, err
}

func scanPositions(rows *sql.Rows, emit func(PositionObservation)) error {
	for rows.Next() {
		var (
			p        PositionObservation
			altitude sql.NullFloat64
		)
		if err := rows.Scan(&p.DeviceID, &p.ObservedAt, &p.Point.Lat, &p.Point.Lon, &altitude, &p.AccuracyM, &p.SourceID); err != nil {
			return fmt.Errorf("failed to scan position: %w", err)
		}
		if altitude.Valid {
			alt := altitude.Float64
			p.Altitude = &alt
		}
		if usable(p) {
			emit(p)
		}
	}
	return rows.Err()
}

// Signals implements Reader.
func (s *SQLStore) Signals(ctx context.Context, deviceID string, from, to time.Time) ([]SignalObservation, error) {
	query := `SELECT device_id, observed_at, COALESCE(signal_dbm, 0), COALESCE(encryption, ''),
			COALESCE(channel, 0), COALESCE(source_id, '')
		FROM signal_observations
		WHERE device_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at`

	rows, err := s.db.QueryContext(ctx, query, deviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var out []SignalObservation
	for rows.Next() {
		var o SignalObservation
		if err := rows.Scan(&o.DeviceID, &o.ObservedAt, &o.SignalDBm, &o.Encryption, &o.Channel, &o.SourceID); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const deviceSelect = `SELECT d.device_id, COALESCE(m.name, ''), COALESCE(g.likelihood, 0),
		COALESCE(d.name, ''), COALESCE(d.comment, ''), COALESCE(d.network_type, ''),
		d.first_seen, d.last_seen, COALESCE(d.total_readings, 0)
	FROM devices d
	LEFT JOIN manufacturers m ON m.manufacturer_id = d.manufacturer_id
	LEFT JOIN government_contractors g ON g.manufacturer_id = d.manufacturer_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(r rowScanner) (Device, error) {
	var (
		d                   Device
		firstSeen, lastSeen sql.NullTime
	)
	err := r.Scan(&d.ID, &d.Manufacturer, &d.GovernmentLikelihood, &d.Name, &d.Comment,
		&d.NetworkType, &firstSeen, &lastSeen, &d.TotalReadings)
	if err != nil {
		return Device{}, err
	}
	d.FirstSeen = firstSeen.Time
	d.LastSeen = lastSeen.Time
	return d, nil
}

// Device implements Registry.
func (s *SQLStore) Device(ctx context.Context, id string) (*Device, error) {
	d, err := scanDevice(s.db.QueryRowContext(ctx, deviceSelect+` WHERE d.device_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device %s: %w", id, err)
	}
	return &d, nil
}

// DevicesSeen implements Registry.
func (s *SQLStore) DevicesSeen(ctx context.Context, from, to time.Time) ([]Device, error) {
	return s.queryDevices(ctx, deviceSelect+`
		WHERE d.last_seen >= $1 AND d.first_seen <= $2
		ORDER BY d.device_id`, from, to)
}

// GovernmentCandidates implements Registry.
func (s *SQLStore) GovernmentCandidates(ctx context.Context, minLikelihood float64) ([]Device, error) {
	return s.queryDevices(ctx, deviceSelect+`
		WHERE g.likelihood >= $1 AND g.likelihood > 0
		ORDER BY d.device_id`, minLikelihood)
}

func (s *SQLStore) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Metadata implements Registry.
func (s *SQLStore) Metadata(ctx context.Context, id string) ([]string, error) {
	d, err := s.Device(ctx, id)
	if err != nil || d == nil {
		return nil, err
	}
	return metadataFields(d.Name, d.Comment), nil
}

// Ensure interface compliance.
var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
