// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testAnomaly(id string, confidence float64, status anomaly.Status) *anomaly.SurveillanceAnomaly {
	return &anomaly.SurveillanceAnomaly{
		ID:            id,
		Type:          detection.TypeRouteCorrelation,
		PrimaryDevice: "aa:bb:cc:00:00:01",
		Confidence:    confidence,
		Strength:      anomaly.StrengthFor(confidence, status),
		Priority:      anomaly.PriorityFor(detection.TypeRouteCorrelation, confidence),
		Status:        status,
	}
}

func newPersistentBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 16, Persistent: true},
		watermill.NopLogger{},
	)
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		priority int
		want     Severity
	}{
		{10, SeverityCritical},
		{8, SeverityCritical},
		{7, SeverityWarning},
		{5, SeverityWarning},
		{4, SeverityInfo},
		{1, SeverityInfo},
	}
	for _, tt := range tests {
		if got := SeverityFor(tt.priority); got != tt.want {
			t.Errorf("SeverityFor(%d) = %s, want %s", tt.priority, got, tt.want)
		}
	}
}

func TestGenerateThresholdAndIdempotence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	gen := NewGenerator(store, nil, "", 0.6)
	gen.now = func() time.Time { return t0 }

	anomalies := []*anomaly.SurveillanceAnomaly{
		testAnomaly("above", 0.76, anomaly.StatusPending),
		testAnomaly("at", 0.6, anomaly.StatusPending),
		testAnomaly("below", 0.59, anomaly.StatusPending),
		testAnomaly("reviewed", 0.95, anomaly.StatusConfirmed),
	}

	created, err := gen.Generate(ctx, anomalies)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("Generate() created %d alerts, want 2", len(created))
	}
	first := created[0]
	if first.AnomalyID != "above" || first.Status != StatusActive || first.Severity != SeverityCritical {
		t.Errorf("unexpected alert: %+v", first)
	}
	if !strings.Contains(first.Title, "aa:bb:cc:00:00:01") || len(first.RecommendedActions) == 0 {
		t.Errorf("alert text not composed: %q %v", first.Title, first.RecommendedActions)
	}

	again, err := gen.Generate(ctx, anomalies)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("second Generate() created %d alerts, want 0", len(again))
	}
	all, _ := store.List(ctx, Filter{})
	if len(all) != 2 {
		t.Errorf("store holds %d alerts, want 2", len(all))
	}
}

func TestGeneratePublishesToBus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bus := newPersistentBus()
	defer bus.Close()

	gen := NewGenerator(NewMemoryStore(), bus, "", 0.6)
	created, err := gen.Generate(logging.ContextWithCorrelationID(ctx, "corr-9"), []*anomaly.SurveillanceAnomaly{testAnomaly("a1", 0.9, anomaly.StatusPending)})
	if err != nil || len(created) != 1 {
		t.Fatalf("Generate() = %d, %v", len(created), err)
	}

	messages, err := bus.Subscribe(ctx, DefaultTopic)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-messages:
		msg.Ack()
		if msg.UUID != created[0].ID {
			t.Errorf("message uuid = %s, want alert id %s", msg.UUID, created[0].ID)
		}
		if msg.Metadata.Get(correlationMetadataKey) != "corr-9" {
			t.Errorf("correlation id not propagated: %v", msg.Metadata)
		}
	case <-ctx.Done():
		t.Fatal("no message published")
	}
}

func newWorkflow() (*Workflow, *MemoryStore, *audit.Logger, *[]Alert) {
	store := NewMemoryStore()
	custody := audit.NewLogger(audit.NewMemoryStore())
	var updates []Alert
	w := NewWorkflow(store, custody, func(a *Alert) { updates = append(updates, *a) })
	w.now = func() time.Time { return t0.Add(time.Hour) }
	return w, store, custody, &updates
}

func seedAlert(t *testing.T, store *MemoryStore, id, anomalyID string) {
	t.Helper()
	if err := store.Create(context.Background(), &Alert{ID: id, AnomalyID: anomalyID, Status: StatusActive, CreatedAt: t0}); err != nil {
		t.Fatal(err)
	}
}

func TestWorkflowAcknowledge(t *testing.T) {
	ctx := context.Background()
	w, store, custody, updates := newWorkflow()
	seedAlert(t, store, "al-1", "an-1")

	a, err := w.Acknowledge(ctx, "al-1", "analyst")
	if err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	if a.Status != StatusAcknowledged || a.AcknowledgedBy != "analyst" || a.AcknowledgedAt == nil {
		t.Errorf("unexpected alert: %+v", a)
	}

	if _, err := w.Acknowledge(ctx, "al-1", "analyst"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Acknowledge() error = %v, want ErrInvalidTransition", err)
	}
	if _, err := w.Dismiss(ctx, "al-1", "analyst", false, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Dismiss() after acknowledge error = %v, want ErrInvalidTransition", err)
	}
	if _, err := w.Acknowledge(ctx, "missing", "analyst"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Acknowledge(missing) error = %v, want ErrNotFound", err)
	}

	entries, err := custody.History(ctx, "an-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].EventType != audit.EventAccessed || entries[0].Purpose != "alert review" {
		t.Errorf("unexpected custody entries: %+v", entries)
	}
	if len(*updates) != 1 {
		t.Errorf("listener called %d times, want 1", len(*updates))
	}
}

func TestWorkflowDismissFalsePositive(t *testing.T) {
	ctx := context.Background()
	w, store, _, _ := newWorkflow()
	seedAlert(t, store, "al-1", "an-1")
	seedAlert(t, store, "al-2", "an-2")

	a, err := w.Dismiss(ctx, "al-1", "analyst", true, "neighbour's car")
	if err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	if !a.IsFalsePositive || a.DismissReason != "neighbour's car" || a.DismissedBy != "analyst" {
		t.Errorf("unexpected alert: %+v", a)
	}
	if _, err := w.Dismiss(ctx, "al-2", "analyst", false, "duplicate"); err != nil {
		t.Fatal(err)
	}

	ids, err := w.FalsePositiveAnomalyIDs(ctx, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "an-1" {
		t.Errorf("FalsePositiveAnomalyIDs() = %v, want [an-1]", ids)
	}

	ids, _ = w.FalsePositiveAnomalyIDs(ctx, t0)
	if len(ids) != 0 {
		t.Errorf("cutoff before dismissal returned %v", ids)
	}

	active, _ := w.List(ctx, Filter{Status: StatusActive})
	if len(active) != 0 {
		t.Errorf("List(active) = %d alerts", len(active))
	}
}

type recordingNotifier struct {
	name    string
	enabled bool
	err     error
	mu      sync.Mutex
	got     []string
	done    chan struct{}
}

func (n *recordingNotifier) Name() string  { return n.name }
func (n *recordingNotifier) Enabled() bool { return n.enabled }
func (n *recordingNotifier) Send(_ context.Context, a *Alert) error {
	n.mu.Lock()
	n.got = append(n.got, a.ID)
	n.mu.Unlock()
	if n.done != nil {
		n.done <- struct{}{}
	}
	return n.err
}

func TestDispatcherFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := newPersistentBus()
	defer bus.Close()

	ok := &recordingNotifier{name: "ok", enabled: true, done: make(chan struct{}, 4)}
	failing := &recordingNotifier{name: "failing", enabled: true, err: errors.New("down"), done: make(chan struct{}, 4)}
	off := &recordingNotifier{name: "off"}

	gen := NewGenerator(NewMemoryStore(), bus, "", 0.6)
	if _, err := gen.Generate(ctx, []*anomaly.SurveillanceAnomaly{
		testAnomaly("a1", 0.9, anomaly.StatusPending),
		testAnomaly("a2", 0.8, anomaly.StatusPending),
	}); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(bus, "", ok, failing, off)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(ctx) }()

	for i := 0; i < 2; i++ {
		for _, n := range []*recordingNotifier{ok, failing} {
			select {
			case <-n.done:
			case <-time.After(2 * time.Second):
				t.Fatalf("notifier %s did not receive alert %d", n.name, i)
			}
		}
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if len(off.got) != 0 {
		t.Error("disabled notifier should not be called")
	}
	ok.mu.Lock()
	defer ok.mu.Unlock()
	if len(ok.got) != 2 {
		t.Errorf("ok notifier got %d alerts, want 2", len(ok.got))
	}
}
