// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/shadowcheck/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Defaults returns the built-in configuration. Tests use it to obtain the
// production detector tunables.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/shadowcheck.duckdb",
			MaxMemory:              "1GB",
			PreserveInsertionOrder: true,
		},
		Measurements: MeasurementsConfig{
			Driver:       "duckdb",
			MaxOpenConns: 4,
		},
		Detection: DetectionConfig{
			ImpossibleDistance: ImpossibleDistanceConfig{
				MinDistanceKm:     50,
				MaxGroundSpeedKmh: 120,
				FollowUpWindow:    4 * time.Hour,
				NoiseFloorKm:      1.0,
			},
			CoordinatedMovement: CoordinatedMovementConfig{
				Window:          60 * time.Minute,
				MinGroupSize:    3,
				MinMovementKm:   5,
				StartProximityM: 1000,
				EndProximityM:   500,
				MinScore:        0.3,
				Weights:         CoordinatedMovementWeights{GroupSize: 0.4, Timing: 0.3, Distance: 0.3},
			},
			SequentialMac: SequentialMacConfig{
				ProximityWindow:    50,
				MinSequenceLength:  3,
				MinScore:           0.3,
				HighScoreMember:    0.8,
				Weights:            SequentialMacWeights{Length: 0.3, Government: 0.5, HighScoreBonus: 0.2},
				LookupAverageScore: 0.5,
				LookupLength:       10,
				LookupMemberScore:  0.7,
			},
			Aerial: AerialConfig{
				MinAltitudeGainM: 100,
				MinClimbStepM:    10,
				MinDistanceKm:    5,
				GroundSpeedKmh:   60,
				AircraftSpeedKmh: 250,
				MinScore:         0.3,
				Weights:          AerialWeights{Altitude: 0.3, Speed: 0.3, Linearity: 0.2, Heading: 0.2},
			},
			RouteCorrelation: RouteCorrelationConfig{
				ProximityM:      1000,
				MaxArrivalDelta: 60 * time.Minute,
				MinCoLocations:  3,
				FollowMinDelay:  5 * time.Minute,
				FollowMaxDelay:  45 * time.Minute,
				PeakMinDelay:    10 * time.Minute,
				PeakMaxDelay:    40 * time.Minute,
				MinScore:        0.3,
				Weights:         RouteCorrelationWeights{Count: 0.4, Following: 0.3, Consistency: 0.3},
			},
		},
		Correlation: CorrelationConfig{
			FreshnessWindow:       30 * 24 * time.Hour,
			VerificationThreshold: 0.8,
			AgencyKeywordStep:     0.15,
			AgencyKeywordCap:      0.4,
			TacticalKeywordStep:   0.10,
			TacticalKeywordCap:    0.2,
			RegistryMinScore:      0.5,
		},
		ContextFilter: ContextFilterConfig{
			TrustedDampening: 0.5,
			ThreatBoost:      1.25,
			TrustDepth:       3,
		},
		Alerting: AlertingConfig{
			Threshold: 0.6,
			Topic:     "surveillance.alerts",
			Webhook:   NotifierConfig{RateLimit: time.Second, Timeout: 10 * time.Second},
			Discord:   NotifierConfig{RateLimit: time.Second, Timeout: 10 * time.Second},
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			CheckInterval:    time.Minute,
			FailureThreshold: 3,
			LeaseBackend:     "badger",
			LeasePath:        "/data/leases",
			Jobs: []JobConfig{
				{Name: "full-scan", Type: JobTypeFullScan, Enabled: true, Interval: 6 * time.Hour, AnalysisWindow: 24 * time.Hour, MinConfidence: 0.3, MaxExecutionTime: 30 * time.Minute},
				{Name: "incremental", Type: JobTypeIncremental, Enabled: true, Interval: 15 * time.Minute, AnalysisWindow: time.Hour, MinConfidence: 0.5, MaxExecutionTime: 10 * time.Minute},
				{Name: "government-correlation", Type: JobTypeTargeted, Enabled: true, Interval: 24 * time.Hour, AnalysisWindow: 24 * time.Hour, MinConfidence: 0.3, MaxExecutionTime: 30 * time.Minute},
				{Name: "maintenance", Type: JobTypeMaintenance, Enabled: true, Interval: 24 * time.Hour, MaxExecutionTime: 30 * time.Minute},
			},
		},
		Retention: RetentionConfig{
			ArchiveAfter: 365 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8765,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   10,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration in three layers: defaults, then the config file
// if one exists, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated environment values.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to config paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"measurements_driver": "measurements.driver",
	"measurements_dsn":    "measurements.dsn",

	"self_device_id":          "detection.self_device_id",
	"min_suspicious_distance": "detection.impossible_distance.min_distance_km",
	"max_ground_speed":        "detection.impossible_distance.max_ground_speed_kmh",

	"correlation_freshness": "correlation.freshness_window",

	"alert_threshold":         "alerting.threshold",
	"webhook_enabled":         "alerting.webhook.enabled",
	"webhook_url":             "alerting.webhook.url",
	"discord_enabled":         "alerting.discord.enabled",
	"discord_webhook_url":     "alerting.discord.url",
	"notifier_rate_limit":     "alerting.webhook.rate_limit",
	"scheduler_enabled":       "scheduler.enabled",
	"scheduler_interval":      "scheduler.check_interval",
	"scheduler_failures":      "scheduler.failure_threshold",
	"lease_backend":           "scheduler.lease_backend",
	"lease_path":              "scheduler.lease_path",
	"retention_archive_after": "retention.archive_after",

	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"rate_limit_reqs":   "server.rate_limit_reqs",
	"rate_limit_window": "server.rate_limit_window",
	"cors_origins":      "server.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps e.g. DUCKDB_PATH to database.path.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
