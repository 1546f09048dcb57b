// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

//go:build integration

package correlation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

func TestDuckDBStoreUpsert(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()

	s := NewDuckDBStore(db)
	if err := s.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &Correlation{
		DeviceID:        "aa:bb:cc:00:00:01",
		Manufacturer:    "Raytheon",
		Confidence:      0.95,
		AgencyMatches:   []string{"fbi"},
		TacticalMatches: []string{},
		Pattern:         PatternHighConfidence,
		AnalyzedAt:      at,
	}
	if err := s.Upsert(ctx, c); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	c.Confidence = 0.5
	c.Pattern = PatternPossible
	if err := s.Upsert(ctx, c); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := s.Get(ctx, c.DeviceID)
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.Confidence != 0.5 || got.Pattern != PatternPossible {
		t.Errorf("upsert did not replace row: %+v", got)
	}
	if len(got.AgencyMatches) != 1 || got.AgencyMatches[0] != "fbi" {
		t.Errorf("AgencyMatches = %v", got.AgencyMatches)
	}

	list, err := s.ForDevices(ctx, []string{c.DeviceID, "other"})
	if err != nil || len(list) != 1 {
		t.Errorf("ForDevices = %v, %v", list, err)
	}

	missing, err := s.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v", missing, err)
	}
}
