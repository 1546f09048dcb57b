// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

const weightTolerance = 0.001

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateMeasurements(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateCorrelation(); err != nil {
		return err
	}
	if err := c.validateAlerting(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateMeasurements() error {
	switch c.Measurements.Driver {
	case "duckdb":
		return nil
	case "pgx":
		if c.Measurements.DSN == "" {
			return fmt.Errorf("MEASUREMENTS_DSN is required when MEASUREMENTS_DRIVER=pgx")
		}
		return nil
	default:
		return fmt.Errorf("measurements.driver must be duckdb or pgx, got %q", c.Measurements.Driver)
	}
}

func (c *Config) validateDetection() error {
	d := c.Detection

	if d.ImpossibleDistance.MaxGroundSpeedKmh <= 0 {
		return fmt.Errorf("detection.impossible_distance.max_ground_speed_kmh must be positive")
	}
	if d.ImpossibleDistance.FollowUpWindow <= 0 {
		return fmt.Errorf("detection.impossible_distance.follow_up_window must be positive")
	}
	if d.CoordinatedMovement.MinGroupSize < 2 {
		return fmt.Errorf("detection.coordinated_movement.min_group_size must be at least 2")
	}
	if d.CoordinatedMovement.Window <= 0 {
		return fmt.Errorf("detection.coordinated_movement.window must be positive")
	}
	if d.SequentialMac.ProximityWindow <= 0 || d.SequentialMac.MinSequenceLength < 2 {
		return fmt.Errorf("detection.sequential_mac requires proximity_window > 0 and min_sequence_length >= 2")
	}
	if d.Aerial.AircraftSpeedKmh <= d.Aerial.GroundSpeedKmh {
		return fmt.Errorf("detection.aerial.aircraft_speed_kmh must exceed ground_speed_kmh")
	}
	if d.RouteCorrelation.FollowMinDelay >= d.RouteCorrelation.FollowMaxDelay {
		return fmt.Errorf("detection.route_correlation.follow_min_delay must be below follow_max_delay")
	}

	for name, score := range map[string]float64{
		"coordinated_movement.min_score": d.CoordinatedMovement.MinScore,
		"sequential_mac.min_score":       d.SequentialMac.MinScore,
		"aerial.min_score":               d.Aerial.MinScore,
		"route_correlation.min_score":    d.RouteCorrelation.MinScore,
	} {
		if err := validateUnit("detection."+name, score); err != nil {
			return err
		}
	}

	weightSets := map[string]map[string]float64{
		"coordinated_movement": d.CoordinatedMovement.Weights.Map(),
		"sequential_mac":       d.SequentialMac.Weights.Map(),
		"aerial":               d.Aerial.Weights.Map(),
		"route_correlation":    d.RouteCorrelation.Weights.Map(),
	}
	for name, weights := range weightSets {
		if err := validateWeights("detection."+name+".weights", weights); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateCorrelation() error {
	if c.Correlation.FreshnessWindow < 0 {
		return fmt.Errorf("correlation.freshness_window must not be negative")
	}
	if err := validateUnit("correlation.verification_threshold", c.Correlation.VerificationThreshold); err != nil {
		return err
	}
	if c.Correlation.AgencyKeywordCap < c.Correlation.AgencyKeywordStep ||
		c.Correlation.TacticalKeywordCap < c.Correlation.TacticalKeywordStep {
		return fmt.Errorf("correlation keyword caps must be at least one step")
	}
	return nil
}

func (c *Config) validateAlerting() error {
	if err := validateUnit("alerting.threshold", c.Alerting.Threshold); err != nil {
		return err
	}
	if c.Alerting.Topic == "" {
		return fmt.Errorf("alerting.topic is required")
	}
	for name, n := range map[string]NotifierConfig{"webhook": c.Alerting.Webhook, "discord": c.Alerting.Discord} {
		if !n.Enabled {
			continue
		}
		if err := validateHTTPURL(n.URL); err != nil {
			return fmt.Errorf("alerting.%s.url is invalid: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateScheduler() error {
	s := c.Scheduler
	if s.CheckInterval <= 0 {
		return fmt.Errorf("scheduler.check_interval must be positive")
	}
	if s.FailureThreshold < 1 {
		return fmt.Errorf("scheduler.failure_threshold must be at least 1")
	}
	switch s.LeaseBackend {
	case "memory":
	case "badger":
		if s.LeasePath == "" {
			return fmt.Errorf("LEASE_PATH is required when LEASE_BACKEND=badger")
		}
	default:
		return fmt.Errorf("scheduler.lease_backend must be badger or memory, got %q", s.LeaseBackend)
	}

	seen := make(map[string]bool, len(s.Jobs))
	for i, job := range s.Jobs {
		if job.Name == "" {
			return fmt.Errorf("scheduler.jobs[%d].name is required", i)
		}
		if seen[job.Name] {
			return fmt.Errorf("scheduler.jobs: duplicate job name %q", job.Name)
		}
		seen[job.Name] = true

		switch job.Type {
		case JobTypeFullScan, JobTypeIncremental, JobTypeTargeted, JobTypeMaintenance:
		default:
			return fmt.Errorf("scheduler.jobs[%s].type %q is not a known job type", job.Name, job.Type)
		}
		if job.Interval <= 0 {
			return fmt.Errorf("scheduler.jobs[%s].interval must be positive", job.Name)
		}
		if job.Type != JobTypeMaintenance && job.AnalysisWindow <= 0 {
			return fmt.Errorf("scheduler.jobs[%s].analysis_window must be positive", job.Name)
		}
		if err := validateUnit("scheduler.jobs["+job.Name+"].min_confidence", job.MinConfidence); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQS must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not valid", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

func validateUnit(name string, v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("%s must be within [0,1], got %v", name, v)
	}
	return nil
}

func validateWeights(name string, weights map[string]float64) error {
	sum := 0.0
	for key, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s.%s must not be negative", name, key)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%s must sum to 1.0, got %.3f", name, sum)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
