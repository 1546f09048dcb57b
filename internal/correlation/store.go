// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package correlation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// Store persists one correlation per device.
type Store interface {
	// Get returns nil, nil when the device has never been correlated.
	Get(ctx context.Context, deviceID string) (*Correlation, error)
	// Upsert inserts or replaces the correlation keyed by device.
	Upsert(ctx context.Context, c *Correlation) error
	// ForDevices returns stored correlations for the given devices.
	ForDevices(ctx context.Context, deviceIDs []string) ([]Correlation, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Correlation
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Correlation)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, deviceID string) (*Correlation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rows[deviceID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, c *Correlation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[c.DeviceID] = *c
	return nil
}

// ForDevices implements Store.
func (s *MemoryStore) ForDevices(_ context.Context, deviceIDs []string) ([]Correlation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Correlation
	for _, id := range deviceIDs {
		if c, ok := s.rows[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// DuckDBStore persists correlations in the government_correlations table.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the government_correlations table.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS government_correlations (
			device_id TEXT PRIMARY KEY,
			manufacturer TEXT,
			confidence DOUBLE NOT NULL,
			registry_score DOUBLE NOT NULL,
			manufacturer_score DOUBLE NOT NULL,
			agency_matches TEXT NOT NULL,
			tactical_matches TEXT NOT NULL,
			deployment_pattern TEXT NOT NULL,
			requires_human_verification BOOLEAN NOT NULL,
			analyzed_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create government_correlations table: %w", err)
	}
	return nil
}

const correlationColumns = `device_id, COALESCE(manufacturer, ''), confidence, registry_score, manufacturer_score,
	agency_matches, tactical_matches, deployment_pattern, requires_human_verification, analyzed_at`

// Get implements Store.
func (s *DuckDBStore) Get(ctx context.Context, deviceID string) (*Correlation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+correlationColumns+`
		FROM government_correlations WHERE device_id = ?`, deviceID)
	c, err := scanCorrelation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get correlation for %s: %w", deviceID, err)
	}
	return c, nil
}

// Upsert implements Store.
func (s *DuckDBStore) Upsert(ctx context.Context, c *Correlation) error {
	agencies, err := json.Marshal(c.AgencyMatches)
	if err != nil {
		return fmt.Errorf("failed to marshal agency matches: %w", err)
	}
	tactical, err := json.Marshal(c.TacticalMatches)
	if err != nil {
		return fmt.Errorf("failed to marshal tactical matches: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO government_correlations (
			device_id, manufacturer, confidence, registry_score, manufacturer_score,
			agency_matches, tactical_matches, deployment_pattern, requires_human_verification, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			manufacturer = EXCLUDED.manufacturer,
			confidence = EXCLUDED.confidence,
			registry_score = EXCLUDED.registry_score,
			manufacturer_score = EXCLUDED.manufacturer_score,
			agency_matches = EXCLUDED.agency_matches,
			tactical_matches = EXCLUDED.tactical_matches,
			deployment_pattern = EXCLUDED.deployment_pattern,
			requires_human_verification = EXCLUDED.requires_human_verification,
			analyzed_at = EXCLUDED.analyzed_at`,
		c.DeviceID, c.Manufacturer, c.Confidence, c.RegistryScore, c.ManufacturerScore,
		string(agencies), string(tactical), string(c.Pattern), c.RequiresHumanVerification, c.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert correlation for %s: %w", c.DeviceID, err)
	}
	return nil
}

// ForDevices implements Store.
func (s *DuckDBStore) ForDevices(ctx context.Context, deviceIDs []string) ([]Correlation, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(deviceIDs))
	args := make([]any, len(deviceIDs))
	for i, id := range deviceIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+correlationColumns+`
		FROM government_correlations
		WHERE device_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY device_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlations: %w", err)
	}
	defer rows.Close()

	var out []Correlation
	for rows.Next() {
		c, err := scanCorrelation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correlation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorrelation(r rowScanner) (*Correlation, error) {
	var (
		c                  Correlation
		agencies, tactical string
		pattern            string
	)
	err := r.Scan(&c.DeviceID, &c.Manufacturer, &c.Confidence, &c.RegistryScore, &c.ManufacturerScore,
		&agencies, &tactical, &pattern, &c.RequiresHumanVerification, &c.AnalyzedAt)
	if err != nil {
		return nil, err
	}
	c.Pattern = DeploymentPattern(pattern)
	if err := json.Unmarshal([]byte(agencies), &c.AgencyMatches); err != nil {
		return nil, fmt.Errorf("failed to decode agency matches: %w", err)
	}
	if err := json.Unmarshal([]byte(tactical), &c.TacticalMatches); err != nil {
		return nil, fmt.Errorf("failed to decode tactical matches: %w", err)
	}
	return &c, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DuckDBStore)(nil)
)
