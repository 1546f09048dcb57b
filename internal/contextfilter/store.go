// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package contextfilter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/detection"
)

// Store persists safe zones and device relationships.
type Store interface {
	ListZones(ctx context.Context) ([]SafeZone, error)
	SaveZone(ctx context.Context, z SafeZone) error
	DeleteZone(ctx context.Context, id string) error

	ListRelationships(ctx context.Context) ([]DeviceRelationship, error)
	// GetRelationship returns nil, nil when the pair is unknown.
	GetRelationship(ctx context.Context, a, b string) (*DeviceRelationship, error)
	UpsertRelationship(ctx context.Context, r *DeviceRelationship) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	zones map[string]SafeZone
	rels  map[[2]string]DeviceRelationship
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		zones: make(map[string]SafeZone),
		rels:  make(map[[2]string]DeviceRelationship),
	}
}

// ListZones implements Store.
func (s *MemoryStore) ListZones(_ context.Context) ([]SafeZone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SafeZone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveZone implements Store.
func (s *MemoryStore) SaveZone(_ context.Context, z SafeZone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[z.ID] = z
	return nil
}

// DeleteZone implements Store.
func (s *MemoryStore) DeleteZone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[id]; !ok {
		return ErrNotFound
	}
	delete(s.zones, id)
	return nil
}

// ListRelationships implements Store.
func (s *MemoryStore) ListRelationships(_ context.Context) ([]DeviceRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DeviceRelationship, 0, len(s.rels))
	for _, r := range s.rels {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceA != out[j].DeviceA {
			return out[i].DeviceA < out[j].DeviceA
		}
		return out[i].DeviceB < out[j].DeviceB
	})
	return out, nil
}

// GetRelationship implements Store.
func (s *MemoryStore) GetRelationship(_ context.Context, a, b string) (*DeviceRelationship, error) {
	a, b = PairKey(a, b)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rels[[2]string{a, b}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// UpsertRelationship implements Store.
func (s *MemoryStore) UpsertRelationship(_ context.Context, r *DeviceRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel := *r
	rel.DeviceA, rel.DeviceB = PairKey(r.DeviceA, r.DeviceB)
	s.rels[[2]string{rel.DeviceA, rel.DeviceB}] = rel
	return nil
}

// DuckDBStore persists zones and relationships in DuckDB.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a DuckDB-backed store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the safe_zones and device_relationships tables.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS safe_zones (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			zone_type TEXT NOT NULL,
			polygon TEXT NOT NULL,
			suppress TEXT NOT NULL,
			sensitivity_factor DOUBLE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS device_relationships (
			device_a TEXT NOT NULL,
			device_b TEXT NOT NULL,
			classification TEXT NOT NULL,
			co_location_count BIGINT NOT NULL DEFAULT 0,
			first_co_located TIMESTAMPTZ,
			last_co_located TIMESTAMPTZ,
			notes TEXT,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (device_a, device_b)
		);

		CREATE INDEX IF NOT EXISTS idx_relationships_classification ON device_relationships(classification)
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
	return nil
}

// ListZones implements Store.
func (s *DuckDBStore) ListZones(ctx context.Context) ([]SafeZone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, zone_type, polygon, suppress, sensitivity_factor, created_at
		FROM safe_zones ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query safe zones: %w", err)
	}
	defer rows.Close()

	var out []SafeZone
	for rows.Next() {
		var (
			z                 SafeZone
			zoneType          string
			polygon, suppress string
		)
		if err := rows.Scan(&z.ID, &z.Name, &zoneType, &polygon, &suppress, &z.SensitivityFactor, &z.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan safe zone: %w", err)
		}
		z.ZoneType = ZoneType(zoneType)
		if err := json.Unmarshal([]byte(polygon), &z.Polygon); err != nil {
			return nil, fmt.Errorf("failed to decode polygon for zone %s: %w", z.ID, err)
		}
		z.Suppress = make(map[detection.AnomalyType]bool)
		if err := json.Unmarshal([]byte(suppress), &z.Suppress); err != nil {
			return nil, fmt.Errorf("failed to decode suppression flags for zone %s: %w", z.ID, err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// SaveZone implements Store.
func (s *DuckDBStore) SaveZone(ctx context.Context, z SafeZone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	polygon, err := json.Marshal(z.Polygon)
	if err != nil {
		return fmt.Errorf("failed to marshal polygon: %w", err)
	}
	if z.Suppress == nil {
		z.Suppress = map[detection.AnomalyType]bool{}
	}
	suppress, err := json.Marshal(z.Suppress)
	if err != nil {
		return fmt.Errorf("failed to marshal suppression flags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO safe_zones (id, name, zone_type, polygon, suppress, sensitivity_factor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			zone_type = EXCLUDED.zone_type,
			polygon = EXCLUDED.polygon,
			suppress = EXCLUDED.suppress,
			sensitivity_factor = EXCLUDED.sensitivity_factor`,
		z.ID, z.Name, string(z.ZoneType), string(polygon), string(suppress), z.SensitivityFactor, z.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save safe zone: %w", err)
	}
	return nil
}

// DeleteZone implements Store.
func (s *DuckDBStore) DeleteZone(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM safe_zones WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete safe zone: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const relationshipColumns = `device_a, device_b, classification, co_location_count,
	first_co_located, last_co_located, COALESCE(notes, ''), updated_at`

// ListRelationships implements Store.
func (s *DuckDBStore) ListRelationships(ctx context.Context) ([]DeviceRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+relationshipColumns+`
		FROM device_relationships ORDER BY device_a, device_b`)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var out []DeviceRelationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetRelationship implements Store.
func (s *DuckDBStore) GetRelationship(ctx context.Context, a, b string) (*DeviceRelationship, error) {
	a, b = PairKey(a, b)
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+relationshipColumns+`
		FROM device_relationships WHERE device_a = ? AND device_b = ?`, a, b)
	r, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return r, nil
}

// UpsertRelationship implements Store.
func (s *DuckDBStore) UpsertRelationship(ctx context.Context, r *DeviceRelationship) error {
	a, b := PairKey(r.DeviceA, r.DeviceB)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_relationships (
			device_a, device_b, classification, co_location_count,
			first_co_located, last_co_located, notes, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_a, device_b) DO UPDATE SET
			classification = EXCLUDED.classification,
			co_location_count = EXCLUDED.co_location_count,
			first_co_located = EXCLUDED.first_co_located,
			last_co_located = EXCLUDED.last_co_located,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at`,
		a, b, string(r.Classification), r.CoLocationCount,
		nullTime(r.FirstCoLocated), nullTime(r.LastCoLocated), r.Notes, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelationship(row rowScanner) (*DeviceRelationship, error) {
	var (
		r              DeviceRelationship
		classification string
		first, last    sql.NullTime
	)
	if err := row.Scan(&r.DeviceA, &r.DeviceB, &classification, &r.CoLocationCount,
		&first, &last, &r.Notes, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Classification = Classification(classification)
	if first.Valid {
		r.FirstCoLocated = first.Time
	}
	if last.Valid {
		r.LastCoLocated = last.Time
	}
	return &r, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DuckDBStore)(nil)
)
