// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}

	if cfg.Detection.ImpossibleDistance.MinDistanceKm != 50 {
		t.Errorf("MinDistanceKm = %v, want 50", cfg.Detection.ImpossibleDistance.MinDistanceKm)
	}
	if cfg.Detection.ImpossibleDistance.MaxGroundSpeedKmh != 120 {
		t.Errorf("MaxGroundSpeedKmh = %v, want 120", cfg.Detection.ImpossibleDistance.MaxGroundSpeedKmh)
	}
	if cfg.Detection.CoordinatedMovement.Window != time.Hour {
		t.Errorf("CoordinatedMovement.Window = %v, want 1h", cfg.Detection.CoordinatedMovement.Window)
	}
	if cfg.Detection.SequentialMac.ProximityWindow != 50 {
		t.Errorf("ProximityWindow = %d, want 50", cfg.Detection.SequentialMac.ProximityWindow)
	}
	if cfg.Alerting.Threshold != 0.6 {
		t.Errorf("Alerting.Threshold = %v, want 0.6", cfg.Alerting.Threshold)
	}
	if cfg.Scheduler.FailureThreshold != 3 {
		t.Errorf("FailureThreshold = %d, want 3", cfg.Scheduler.FailureThreshold)
	}
	if cfg.Retention.ArchiveAfter != 365*24*time.Hour {
		t.Errorf("ArchiveAfter = %v, want 365 days", cfg.Retention.ArchiveAfter)
	}
	if cfg.Correlation.FreshnessWindow != 30*24*time.Hour {
		t.Errorf("FreshnessWindow = %v, want 30 days", cfg.Correlation.FreshnessWindow)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"DUCKDB_PATH", "database.path"},
		{"MEASUREMENTS_DSN", "measurements.dsn"},
		{"SELF_DEVICE_ID", "detection.self_device_id"},
		{"ALERT_THRESHOLD", "alerting.threshold"},
		{"LEASE_BACKEND", "scheduler.lease_backend"},
		{"log_level", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("ALERT_THRESHOLD", "0.75")
	t.Setenv("SELF_DEVICE_ID", "AA:BB:CC:00:00:01")
	t.Setenv("LEASE_BACKEND", "memory")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Alerting.Threshold != 0.75 {
		t.Errorf("Alerting.Threshold = %v, want 0.75", cfg.Alerting.Threshold)
	}
	if cfg.Detection.SelfDeviceID != "AA:BB:CC:00:00:01" {
		t.Errorf("SelfDeviceID = %q", cfg.Detection.SelfDeviceID)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if len(cfg.Scheduler.Jobs) != 4 {
		t.Errorf("expected 4 default jobs, got %d", len(cfg.Scheduler.Jobs))
	}
}

func TestLoadConfigFile(t *testing.T) {
	content := `
detection:
  self_device_id: "self-1"
  coordinated_movement:
    weights:
      group_size: 0.5
      timing: 0.25
      distance: 0.25
alerting:
  threshold: 0.7
scheduler:
  lease_backend: memory
  jobs:
    - name: nightly
      type: full_scan
      enabled: true
      interval: 24h
      analysis_window: 24h
      min_confidence: 0.4
      max_execution_time: 45m
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Detection.CoordinatedMovement.Weights.GroupSize != 0.5 {
		t.Errorf("GroupSize weight = %v, want 0.5", cfg.Detection.CoordinatedMovement.Weights.GroupSize)
	}
	if cfg.Detection.CoordinatedMovement.MinGroupSize != 3 {
		t.Errorf("MinGroupSize default lost: %d", cfg.Detection.CoordinatedMovement.MinGroupSize)
	}
	if len(cfg.Scheduler.Jobs) != 1 {
		t.Fatalf("expected file jobs to replace defaults, got %d", len(cfg.Scheduler.Jobs))
	}
	job := cfg.Scheduler.Jobs[0]
	if job.Name != "nightly" || job.MaxExecutionTime != 45*time.Minute {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "weights not summing to one",
			mutate:  func(c *Config) { c.Detection.Aerial.Weights.Altitude = 0.5 },
			wantErr: "detection.aerial.weights must sum to 1.0",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Alerting.Threshold = 1.2 },
			wantErr: "alerting.threshold",
		},
		{
			name:    "pgx without dsn",
			mutate:  func(c *Config) { c.Measurements.Driver = "pgx" },
			wantErr: "MEASUREMENTS_DSN",
		},
		{
			name:    "unknown job type",
			mutate:  func(c *Config) { c.Scheduler.Jobs[0].Type = "nightly" },
			wantErr: "not a known job type",
		},
		{
			name: "duplicate job names",
			mutate: func(c *Config) {
				c.Scheduler.Jobs[1].Name = c.Scheduler.Jobs[0].Name
			},
			wantErr: "duplicate job name",
		},
		{
			name: "webhook enabled without url",
			mutate: func(c *Config) {
				c.Alerting.Webhook.Enabled = true
			},
			wantErr: "alerting.webhook.url",
		},
		{
			name:    "bad lease backend",
			mutate:  func(c *Config) { c.Scheduler.LeaseBackend = "redis" },
			wantErr: "lease_backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
