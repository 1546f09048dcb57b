// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

//go:build integration

package alerting

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/audit"
)

func TestDuckDBStoreWorkflow(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()

	store := NewDuckDBStore(db)
	if err := store.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	gen := NewGenerator(store, nil, "", 0.6)
	created, err := gen.Generate(ctx, []*anomaly.SurveillanceAnomaly{
		testAnomaly("an-1", 0.9, anomaly.StatusPending),
		testAnomaly("an-2", 0.7, anomaly.StatusPending),
	})
	if err != nil || len(created) != 2 {
		t.Fatalf("Generate() = %d, %v", len(created), err)
	}

	dup := *created[0]
	dup.ID = "other"
	if err := store.Create(ctx, &dup); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}

	got, err := store.Get(ctx, created[0].ID)
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if got.Title != created[0].Title || len(got.RecommendedActions) != len(created[0].RecommendedActions) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if missing, err := store.Get(ctx, "missing"); missing != nil || err != nil {
		t.Errorf("Get(missing) = %v, %v", missing, err)
	}

	w := NewWorkflow(store, audit.NewLogger(audit.NewMemoryStore()), nil)
	if _, err := w.Dismiss(ctx, created[0].ID, "analyst", true, "known device"); err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	if _, err := w.Acknowledge(ctx, created[1].ID, "analyst"); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}

	ids, err := store.FalsePositiveAnomalyIDs(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "an-1" {
		t.Errorf("FalsePositiveAnomalyIDs() = %v, want [an-1]", ids)
	}

	acked, err := store.List(ctx, Filter{Status: StatusAcknowledged})
	if err != nil {
		t.Fatal(err)
	}
	if len(acked) != 1 || acked[0].AcknowledgedBy != "analyst" || acked[0].AcknowledgedAt == nil {
		t.Errorf("List(acknowledged) = %+v", acked)
	}
}
