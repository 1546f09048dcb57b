// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// DuckDBStore implements Store using DuckDB for persistent storage.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a new DuckDB-backed custody store.
// The caller is responsible for ensuring the custody_entries table exists.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the custody_entries table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS custody_entries (
			id TEXT PRIMARY KEY,
			anomaly_id TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			actor TEXT NOT NULL,
			purpose TEXT,
			hash_before TEXT,
			hash_after TEXT,
			details TEXT,
			timestamp TIMESTAMPTZ NOT NULL,
			prev_entry_hash TEXT,
			entry_hash TEXT NOT NULL,
			correlation_id TEXT,
			UNIQUE (anomaly_id, sequence)
		);

		CREATE INDEX IF NOT EXISTS idx_custody_anomaly ON custody_entries(anomaly_id);
		CREATE INDEX IF NOT EXISTS idx_custody_event_type ON custody_entries(event_type);
		CREATE INDEX IF NOT EXISTS idx_custody_timestamp ON custody_entries(timestamp DESC)
	`

	// Split and execute each statement
	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Msg("Custody entries table created/verified")
	return nil
}

// Append implements Store.
func (s *DuckDBStore) Append(ctx context.Context, e *CustodyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custody_entries (
			id, anomaly_id, sequence, event_type, actor, purpose,
			hash_before, hash_after, details, timestamp,
			prev_entry_hash, entry_hash, correlation_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AnomalyID, e.Sequence, string(e.EventType), e.Actor, e.Purpose,
		e.HashBefore, e.HashAfter, e.Details, e.Timestamp,
		e.PrevEntryHash, e.EntryHash, e.CorrelationID)
	if database.IsUniqueConstraintError(err) {
		return ErrDuplicateSeq
	}
	if err != nil {
		return fmt.Errorf("failed to append custody entry: %w", err)
	}
	return nil
}

const entryColumns = `id, anomaly_id, sequence, event_type, actor, COALESCE(purpose, ''),
	COALESCE(hash_before, ''), COALESCE(hash_after, ''), COALESCE(details, ''), timestamp,
	COALESCE(prev_entry_hash, ''), entry_hash, COALESCE(correlation_id, '')`

// ForAnomaly implements Store.
func (s *DuckDBStore) ForAnomaly(ctx context.Context, anomalyID string) ([]CustodyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+`
		FROM custody_entries WHERE anomaly_id = ? ORDER BY sequence`, anomalyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query custody entries: %w", err)
	}
	defer rows.Close()

	var out []CustodyEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custody entry: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating custody entries: %w", err)
	}
	return out, nil
}

// Last implements Store.
func (s *DuckDBStore) Last(ctx context.Context, anomalyID string) (*CustodyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+`
		FROM custody_entries WHERE anomaly_id = ? ORDER BY sequence DESC LIMIT 1`, anomalyID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last custody entry: %w", err)
	}
	return e, nil
}

// Count implements Store.
func (s *DuckDBStore) Count(ctx context.Context, eventType EventType) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT COUNT(*) FROM custody_entries`
	var args []any
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count custody entries: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*CustodyEntry, error) {
	var (
		e         CustodyEntry
		eventType string
	)
	err := row.Scan(&e.ID, &e.AnomalyID, &e.Sequence, &eventType, &e.Actor, &e.Purpose,
		&e.HashBefore, &e.HashAfter, &e.Details, &e.Timestamp,
		&e.PrevEntryHash, &e.EntryHash, &e.CorrelationID)
	if err != nil {
		return nil, err
	}
	e.EventType = EventType(eventType)
	return &e, nil
}

var _ Store = (*DuckDBStore)(nil)
