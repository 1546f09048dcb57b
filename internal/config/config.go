// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package config loads ShadowCheck configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
//
// Every heuristic constant used by the detectors lives here as a named,
// tunable value. Scoring weight sets are validated to sum to 1.0.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Database      DatabaseConfig      `koanf:"database"`
	Measurements  MeasurementsConfig  `koanf:"measurements"`
	Detection     DetectionConfig     `koanf:"detection"`
	Correlation   CorrelationConfig   `koanf:"correlation"`
	ContextFilter ContextFilterConfig `koanf:"context_filter"`
	Alerting      AlertingConfig      `koanf:"alerting"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Retention     RetentionConfig     `koanf:"retention"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// DatabaseConfig configures the DuckDB store that holds anomalies, alerts,
// custody records, correlations, safe zones and jobs.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// MeasurementsConfig selects where observations are read from. With driver
// "duckdb" and an empty DSN the main database connection is shared.
type MeasurementsConfig struct {
	Driver       string `koanf:"driver"` // duckdb or pgx
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// DetectionConfig holds per-detector parameters.
type DetectionConfig struct {
	// SelfDeviceID is the device carried by the person being protected.
	// RouteCorrelation is skipped while it is empty.
	SelfDeviceID string `koanf:"self_device_id"`

	ImpossibleDistance  ImpossibleDistanceConfig  `koanf:"impossible_distance"`
	CoordinatedMovement CoordinatedMovementConfig `koanf:"coordinated_movement"`
	SequentialMac       SequentialMacConfig       `koanf:"sequential_mac"`
	Aerial              AerialConfig              `koanf:"aerial"`
	RouteCorrelation    RouteCorrelationConfig    `koanf:"route_correlation"`
}

// ImpossibleDistanceConfig configures the impossible distance detector.
type ImpossibleDistanceConfig struct {
	MinDistanceKm     float64       `koanf:"min_distance_km"`
	MaxGroundSpeedKmh float64       `koanf:"max_ground_speed_kmh"`
	FollowUpWindow    time.Duration `koanf:"follow_up_window"`
	NoiseFloorKm      float64       `koanf:"noise_floor_km"`
}

// CoordinatedMovementConfig configures the coordinated movement detector.
type CoordinatedMovementConfig struct {
	Window          time.Duration              `koanf:"window"`
	MinGroupSize    int                        `koanf:"min_group_size"`
	MinMovementKm   float64                    `koanf:"min_movement_km"`
	StartProximityM float64                    `koanf:"start_proximity_m"`
	EndProximityM   float64                    `koanf:"end_proximity_m"`
	MinScore        float64                    `koanf:"min_score"`
	Weights         CoordinatedMovementWeights `koanf:"weights"`
}

// CoordinatedMovementWeights blend the coordination score.
type CoordinatedMovementWeights struct {
	GroupSize float64 `koanf:"group_size"`
	Timing    float64 `koanf:"timing"`
	Distance  float64 `koanf:"distance"`
}

// Map returns the weights keyed by name for logging and evidence.
func (w CoordinatedMovementWeights) Map() map[string]float64 {
	return map[string]float64{"group_size": w.GroupSize, "timing": w.Timing, "distance": w.Distance}
}

// SequentialMacConfig configures the sequential address detector.
type SequentialMacConfig struct {
	ProximityWindow   int                  `koanf:"proximity_window"`
	MinSequenceLength int                  `koanf:"min_sequence_length"`
	MinScore          float64              `koanf:"min_score"`
	HighScoreMember   float64              `koanf:"high_score_member"`
	Weights           SequentialMacWeights `koanf:"weights"`

	// External lookup triggers.
	LookupAverageScore float64 `koanf:"lookup_average_score"`
	LookupLength       int     `koanf:"lookup_length"`
	LookupMemberScore  float64 `koanf:"lookup_member_score"`
}

// SequentialMacWeights blend the suspicion score. HighScoreBonus is added
// when any member exceeds HighScoreMember.
type SequentialMacWeights struct {
	Length         float64 `koanf:"length"`
	Government     float64 `koanf:"government"`
	HighScoreBonus float64 `koanf:"high_score_bonus"`
}

// Map returns the weights keyed by name.
func (w SequentialMacWeights) Map() map[string]float64 {
	return map[string]float64{"length": w.Length, "government": w.Government, "high_score_bonus": w.HighScoreBonus}
}

// AerialConfig configures the aerial signature detector.
type AerialConfig struct {
	MinAltitudeGainM float64       `koanf:"min_altitude_gain_m"`
	MinClimbStepM    float64       `koanf:"min_climb_step_m"`
	MinDistanceKm    float64       `koanf:"min_distance_km"`
	GroundSpeedKmh   float64       `koanf:"ground_speed_kmh"`
	AircraftSpeedKmh float64       `koanf:"aircraft_speed_kmh"`
	MinScore         float64       `koanf:"min_score"`
	Weights          AerialWeights `koanf:"weights"`
}

// AerialWeights blend the aerial signature score.
type AerialWeights struct {
	Altitude  float64 `koanf:"altitude"`
	Speed     float64 `koanf:"speed"`
	Linearity float64 `koanf:"linearity"`
	Heading   float64 `koanf:"heading"`
}

// Map returns the weights keyed by name.
func (w AerialWeights) Map() map[string]float64 {
	return map[string]float64{"altitude": w.Altitude, "speed": w.Speed, "linearity": w.Linearity, "heading": w.Heading}
}

// RouteCorrelationConfig configures the route correlation detector.
type RouteCorrelationConfig struct {
	ProximityM      float64                 `koanf:"proximity_m"`
	MaxArrivalDelta time.Duration           `koanf:"max_arrival_delta"`
	MinCoLocations  int                     `koanf:"min_co_locations"`
	FollowMinDelay  time.Duration           `koanf:"follow_min_delay"`
	FollowMaxDelay  time.Duration           `koanf:"follow_max_delay"`
	PeakMinDelay    time.Duration           `koanf:"peak_min_delay"`
	PeakMaxDelay    time.Duration           `koanf:"peak_max_delay"`
	MinScore        float64                 `koanf:"min_score"`
	Weights         RouteCorrelationWeights `koanf:"weights"`
}

// RouteCorrelationWeights blend the surveillance confidence.
type RouteCorrelationWeights struct {
	Count       float64 `koanf:"count"`
	Following   float64 `koanf:"following"`
	Consistency float64 `koanf:"consistency"`
}

// Map returns the weights keyed by name.
func (w RouteCorrelationWeights) Map() map[string]float64 {
	return map[string]float64{"count": w.Count, "following": w.Following, "consistency": w.Consistency}
}

// CorrelationConfig configures the government infrastructure correlator.
type CorrelationConfig struct {
	FreshnessWindow       time.Duration `koanf:"freshness_window"`
	VerificationThreshold float64       `koanf:"verification_threshold"`
	AgencyKeywordStep     float64       `koanf:"agency_keyword_step"`
	AgencyKeywordCap      float64       `koanf:"agency_keyword_cap"`
	TacticalKeywordStep   float64       `koanf:"tactical_keyword_step"`
	TacticalKeywordCap    float64       `koanf:"tactical_keyword_cap"`
	RegistryMinScore      float64       `koanf:"registry_min_score"`
}

// ContextFilterConfig configures relationship-based dampening.
type ContextFilterConfig struct {
	TrustedDampening float64 `koanf:"trusted_dampening"`
	ThreatBoost      float64 `koanf:"threat_boost"`
	TrustDepth       int     `koanf:"trust_depth"`
}

// AlertingConfig configures alert generation and delivery.
type AlertingConfig struct {
	Threshold float64        `koanf:"threshold"`
	Topic     string         `koanf:"topic"`
	Webhook   NotifierConfig `koanf:"webhook"`
	Discord   NotifierConfig `koanf:"discord"`
}

// NotifierConfig configures one outbound notifier.
type NotifierConfig struct {
	Enabled   bool          `koanf:"enabled"`
	URL       string        `koanf:"url"`
	RateLimit time.Duration `koanf:"rate_limit"` // minimum gap between deliveries
	Timeout   time.Duration `koanf:"timeout"`
}

// SchedulerConfig configures the detection scheduler.
type SchedulerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	CheckInterval    time.Duration `koanf:"check_interval"`
	FailureThreshold int           `koanf:"failure_threshold"`
	LeaseBackend     string        `koanf:"lease_backend"` // badger or memory
	LeasePath        string        `koanf:"lease_path"`
	Jobs             []JobConfig   `koanf:"jobs"`
}

// JobConfig seeds a DetectionJob on first start. Existing jobs are not
// overwritten.
type JobConfig struct {
	Name             string        `koanf:"name"`
	Type             string        `koanf:"type"`
	Enabled          bool          `koanf:"enabled"`
	Interval         time.Duration `koanf:"interval"`
	AnalysisWindow   time.Duration `koanf:"analysis_window"`
	MinConfidence    float64       `koanf:"min_confidence"`
	MaxExecutionTime time.Duration `koanf:"max_execution_time"`
	TargetDevices    []string      `koanf:"target_devices"`
}

// RetentionConfig configures the maintenance job.
type RetentionConfig struct {
	ArchiveAfter time.Duration `koanf:"archive_after"`
}

// ServerConfig configures the operator HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Job types accepted in JobConfig.Type.
const (
	JobTypeFullScan    = "full_scan"
	JobTypeIncremental = "incremental"
	JobTypeTargeted    = "targeted"
	JobTypeMaintenance = "maintenance"
)
