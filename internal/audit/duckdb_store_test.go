// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

//go:build integration

package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
)

func TestDuckDBStoreChain(t *testing.T) {
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

	l := NewLogger(store)
	for _, r := range []Record{
		{AnomalyID: "a1", EventType: EventCreated, HashAfter: "h"},
		{AnomalyID: "a1", EventType: EventAccessed, Actor: "analyst", Purpose: "review", HashBefore: "h", HashAfter: "h"},
		{AnomalyID: "a2", EventType: EventCreated, HashAfter: "g"},
	} {
		if _, err := l.Record(ctx, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := l.History(ctx, "a1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 || entries[1].Purpose != "review" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	last, err := store.Last(ctx, "a1")
	if err != nil || last == nil || last.Sequence != 1 {
		t.Fatalf("Last = %+v, %v", last, err)
	}
	if missing, err := store.Last(ctx, "none"); err != nil || missing != nil {
		t.Errorf("Last(missing) = %+v, %v", missing, err)
	}

	dup := *last
	dup.ID = "other"
	if err := store.Append(ctx, &dup); !errors.Is(err, ErrDuplicateSeq) {
		t.Errorf("Append duplicate sequence error = %v, want ErrDuplicateSeq", err)
	}

	if n, err := store.Count(ctx, EventCreated); err != nil || n != 2 {
		t.Errorf("Count(created) = %d, %v", n, err)
	}
	if n, err := store.Count(ctx, ""); err != nil || n != 3 {
		t.Errorf("Count(all) = %d, %v", n, err)
	}
}
