// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{" off ", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("job", "full-scan").Msg("started")

	out := buf.String()
	if !strings.Contains(out, `"message":"started"`) {
		t.Errorf("missing message in %s", out)
	}
	if !strings.Contains(out, `"job":"full-scan"`) {
		t.Errorf("missing field in %s", out)
	}
}

func TestCtxAddsJobFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	defer Init(DefaultConfig())

	ctx := ContextWithJob(context.Background(), "job-1", "exec-9")
	ctx = ContextWithCorrelationID(ctx, "abcd1234")
	Ctx(ctx).Info().Msg("tick")

	out := buf.String()
	for _, want := range []string{`"job_id":"job-1"`, `"execution_id":"exec-9"`, `"correlation_id":"abcd1234"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestJobFromContextEmpty(t *testing.T) {
	jobID, execID := JobFromContext(context.Background())
	if jobID != "" || execID != "" {
		t.Errorf("expected empty ids, got %q %q", jobID, execID)
	}
}

func TestCriticalAndWeights(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	defer Init(DefaultConfig())

	Weights(Critical(), "weights", map[string]float64{"size": 0.4}).Msg("hash mismatch")

	out := buf.String()
	if !strings.Contains(out, `"critical":true`) {
		t.Errorf("expected critical flag in %s", out)
	}
	if !strings.Contains(out, `"weights":{"size":0.4}`) {
		t.Errorf("expected weights dict in %s", out)
	}
}

func TestSlogHandlerRoutesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	defer Init(DefaultConfig())

	logger := NewSlogLogger().With("service", "scheduler").WithGroup("supervisor")
	logger.Warn("service restarted", "attempt", 2)

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn level in %s", out)
	}
	if !strings.Contains(out, `"supervisor.attempt":2`) {
		t.Errorf("expected grouped attr in %s", out)
	}
	if NewSlogHandler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at info level")
	}
}
