// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree() error = %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults %+v", tree.config, DefaultTreeConfig())
	}

	custom, _ := NewSupervisorTree(quietLogger(), TreeConfig{FailureThreshold: 2, ShutdownTimeout: time.Second})
	if custom.config.FailureThreshold != 2 || custom.config.ShutdownTimeout != time.Second || custom.config.FailureDecay != 30 {
		t.Errorf("partial config not merged with defaults: %+v", custom.config)
	}
}

func TestSupervisorTree_StartsBothLayers(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	sched := &mockService{name: "detection-scheduler"}
	server := &mockService{name: "http-server"}
	tree.AddDetectionService(sched)
	tree.AddAPIService(server)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && (sched.startCount.Load() == 0 || server.startCount.Load() == 0) {
		time.Sleep(10 * time.Millisecond)
	}
	if sched.startCount.Load() == 0 || server.startCount.Load() == 0 {
		t.Fatalf("services not started: scheduler %d, server %d", sched.startCount.Load(), server.startCount.Load())
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
}

func TestSupervisorTree_RestartsFailingDetectionService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	dispatcher := &mockService{name: "alert-dispatcher", maxFails: 2}
	server := &mockService{name: "http-server"}
	tree.AddDetectionService(dispatcher)
	tree.AddAPIService(server)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	for ctx.Err() == nil && dispatcher.startCount.Load() < 3 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := dispatcher.startCount.Load(); got < 3 {
		t.Errorf("dispatcher starts = %d, want at least 3", got)
	}
	if got := server.startCount.Load(); got != 1 {
		t.Errorf("http server starts = %d, want 1", got)
	}
	cancel()
	<-errCh
}
