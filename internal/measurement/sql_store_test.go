// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

//go:build integration

package measurement

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

func setupSQLStore(t *testing.T) (*SQLStore, *sql.DB) {
	t.Helper()

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory DuckDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewSQLStore(db)
	if err := s.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	return s, db
}

func TestSQLStoreReadsObservations(t *testing.T) {
	s, db := setupSQLStore(t)
	exerciseSQLStore(t, s, db)
}

// exerciseSQLStore seeds db and checks every read path. It only uses SQL
// that DuckDB and PostgreSQL both accept.
func exerciseSQLStore(t *testing.T, s *SQLStore, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO manufacturers VALUES ($1, $2)`, []any{"m1", "L3Harris Technologies"}},
		{`INSERT INTO government_contractors VALUES ($1, $2, $3)`, []any{"m1", 0.8, "DHS"}},
		{`INSERT INTO devices VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, []any{"AA:BB:CC:00:00:10", "m1", "SURV-VAN", "task force", "wifi", base, base.Add(time.Hour), 3}},
		{`INSERT INTO position_observations VALUES ($1, $2, $3, $4, $5, $6, $7)`, []any{"AA:BB:CC:00:00:10", base, 40.0, -75.0, 120.0, 5.0, "kismet"}},
		{`INSERT INTO position_observations VALUES ($1, $2, $3, $4, NULL, $5, $6)`, []any{"AA:BB:CC:00:00:10", base.Add(30 * time.Minute), 40.2, -75.0, 5.0, "kismet"}},
		{`INSERT INTO position_observations VALUES ($1, $2, $3, $4, NULL, $5, $6)`, []any{"AA:BB:CC:00:00:10", base.Add(40 * time.Minute), 0.0, 0.0, 5.0, "wigle"}},
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st.query, st.args...); err != nil {
			t.Fatalf("seed %q: %v", st.query, err)
		}
	}

	fixes, err := s.Positions(ctx, "AA:BB:CC:00:00:10", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(fixes) != 2 {
		t.Fatalf("expected 2 usable fixes, got %d", len(fixes))
	}
	if fixes[0].Altitude == nil || *fixes[0].Altitude != 120 {
		t.Errorf("expected altitude 120 on first fix")
	}
	if fixes[1].Altitude != nil {
		t.Errorf("expected nil altitude on second fix")
	}

	grouped, err := s.PositionsInWindow(ctx, base, base.Add(time.Hour), []string{"AA:BB:CC:00:00:10", "other"})
	if err != nil {
		t.Fatalf("PositionsInWindow: %v", err)
	}
	if len(grouped["AA:BB:CC:00:00:10"]) != 2 {
		t.Errorf("grouped = %+v", grouped)
	}

	d, err := s.Device(ctx, "AA:BB:CC:00:00:10")
	if err != nil || d == nil {
		t.Fatalf("Device: %v %v", d, err)
	}
	if d.Manufacturer != "L3Harris Technologies" || d.GovernmentLikelihood != 0.8 {
		t.Errorf("unexpected device %+v", d)
	}

	missing, err := s.Device(ctx, "missing")
	if err != nil || missing != nil {
		t.Errorf("missing device = %v, %v", missing, err)
	}

	gov, err := s.GovernmentCandidates(ctx, 0.5)
	if err != nil || len(gov) != 1 {
		t.Errorf("GovernmentCandidates = %+v, %v", gov, err)
	}

	meta, err := s.Metadata(ctx, "AA:BB:CC:00:00:10")
	if err != nil || len(meta) != 2 {
		t.Errorf("Metadata = %q, %v", meta, err)
	}
}
