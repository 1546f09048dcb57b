// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

//go:build integration

package anomaly

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/detection"
)

func TestDuckDBStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()

	store := NewDuckDBStore(db)
	custodyStore := audit.NewDuckDBStore(db)
	for _, c := range []interface{ CreateTable(context.Context) error }{store, custodyStore} {
		if err := c.CreateTable(ctx); err != nil {
			t.Fatalf("CreateTable: %v", err)
		}
	}

	logger := audit.NewLogger(custodyStore)
	cons := NewConsolidator(store, logger)
	svc := NewService(store, logger)

	lead := jumpCandidate("leader", t0, 0.95)
	lead.RelatedDevices = []string{"follower"}
	res, err := cons.Consolidate(ctx, []detection.Candidate{lead, lead})
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(res.Created) != 1 || res.Deduplicated != 1 {
		t.Fatalf("created %d, deduplicated %d", len(res.Created), res.Deduplicated)
	}
	id := res.Created[0].ID

	dup := *res.Created[0]
	dup.ID = "another-id"
	if err := store.Create(ctx, &dup); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Create duplicate dedupe key error = %v, want ErrAlreadyExists", err)
	}

	a, err := svc.Get(ctx, id, "analyst", "triage")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(a.RelatedDevices) != 1 || len(a.Locations) != 2 || !a.Start.Equal(t0) {
		t.Errorf("round trip mismatch: %+v", a)
	}

	got, err := store.ForDevices(ctx, []string{"follower"})
	if err != nil || len(got) != 1 {
		t.Errorf("ForDevices = %d rows, %v", len(got), err)
	}

	if _, err := svc.UpdateStatus(ctx, id, StatusInvestigating, "analyst", "checking"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	list, err := store.List(ctx, Filter{Status: StatusInvestigating, Limit: 5})
	if err != nil || len(list) != 1 {
		t.Errorf("List(investigating) = %d rows, %v", len(list), err)
	}

	if _, err := db.ExecContext(ctx, `UPDATE surveillance_anomalies SET evidence = '{"kind":"x"}' WHERE id = ?`, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, id, "analyst", "triage"); !errors.Is(err, ErrEvidenceTampered) {
		t.Errorf("Get after tamper error = %v, want ErrEvidenceTampered", err)
	}

	entries, err := svc.Custody(ctx, id)
	if err != nil {
		t.Fatalf("Custody: %v", err)
	}
	var kinds []audit.EventType
	for _, e := range entries {
		kinds = append(kinds, e.EventType)
	}
	want := []audit.EventType{audit.EventCreated, audit.EventAccessed, audit.EventModified, audit.EventIntegrityFailure}
	if len(kinds) != len(want) {
		t.Fatalf("custody events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("custody event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
}
