// Package config loads and validates the YAML configuration file described
// in SPEC_FULL.md §4.12, grounded on
// _references/orion-prototipe/internal/config/config.go (the teacher's
// gopkg.in/yaml.v3 Load/Validate pair), generalized from a single flat
// struct to one nested struct per component.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	TruckID      int                `yaml:"truck_id"`
	Periods      PeriodsConfig      `yaml:"periods"`
	FilterOrder  int                `yaml:"filter_order"`
	Navigation   NavigationConfig   `yaml:"navigation"`
	RoutePlanner RoutePlannerConfig `yaml:"route_planner"`
	Watchdog     WatchdogConfig     `yaml:"watchdog"`
	Boundary     BoundaryConfig     `yaml:"boundary"`
	DebugHTTP    DebugHTTPConfig    `yaml:"debug_http"`
}

// PeriodsConfig holds every periodic task's nominal period, in milliseconds.
type PeriodsConfig struct {
	SensorFilterMS int `yaml:"sensor_filter_ms"`
	CommandModeMS  int `yaml:"command_mode_ms"`
	FaultDetectMS  int `yaml:"fault_detect_ms"`
	NavigationMS   int `yaml:"navigation_ms"`
	LoggerMS       int `yaml:"logger_ms"`
	SnapshotMS     int `yaml:"snapshot_ms"`
	WatchdogCheckMS int `yaml:"watchdog_check_ms"`
}

// NavigationConfig holds the rotate-then-translate controller's constants.
type NavigationConfig struct {
	ArrivalRadius        int `yaml:"arrival_radius"`
	AlignmentThresholdDeg int `yaml:"alignment_threshold_deg"`
	RealignThresholdDeg  int `yaml:"realign_threshold_deg"`
	CruiseSpeedPct       int `yaml:"cruise_speed_pct"`
	RotationEffort       int `yaml:"rotation_effort"`
}

// RoutePlannerConfig holds the obstacle-avoidance constants.
type RoutePlannerConfig struct {
	LookAhead      int `yaml:"look_ahead"`
	AvoidanceRadius int `yaml:"avoidance_radius"`
	Margin         int `yaml:"margin"`
}

// WatchdogConfig holds the check period and per-task timeouts.
type WatchdogConfig struct {
	CheckPeriodMS int            `yaml:"check_period_ms"`
	TimeoutsMS    map[string]int `yaml:"timeouts_ms"`
}

// BoundaryConfig holds the boundary I/O directories and the CSV log path.
type BoundaryConfig struct {
	InboundDir  string `yaml:"inbound_dir"`
	OutboundDir string `yaml:"outbound_dir"`
	LogDir      string `yaml:"log_dir"`
}

// DebugHTTPConfig holds the optional observability endpoint settings.
type DebugHTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// Default returns the out-of-the-box configuration used when no file is
// given, and as the base that Validate falls back to field-by-field.
func Default() Config {
	return Config{
		TruckID:     1,
		FilterOrder: 5,
		Periods: PeriodsConfig{
			SensorFilterMS:  20,
			CommandModeMS:   10,
			FaultDetectMS:   20,
			NavigationMS:    10,
			LoggerMS:        500,
			SnapshotMS:      1000,
			WatchdogCheckMS: 100,
		},
		Navigation: NavigationConfig{
			ArrivalRadius:         5,
			AlignmentThresholdDeg: 5,
			RealignThresholdDeg:   10,
			CruiseSpeedPct:        30,
			RotationEffort:        40,
		},
		RoutePlanner: RoutePlannerConfig{
			LookAhead:       200,
			AvoidanceRadius: 80,
			Margin:          20,
		},
		Watchdog: WatchdogConfig{
			CheckPeriodMS: 100,
			TimeoutsMS: map[string]int{
				"SensorFilter": 200,
				"FaultDetect":  200,
				"CommandMode":  100,
				"Navigation":   100,
				"DataLogger":   5000,
				"Snapshot":     10000,
			},
		},
		Boundary: BoundaryConfig{
			InboundDir:  "bridge/from_mqtt",
			OutboundDir: "bridge/to_mqtt",
			LogDir:      "logs",
		},
		DebugHTTP: DebugHTTPConfig{
			Enabled: false,
			Port:    "8080",
		},
	}
}

// Load reads and parses a YAML configuration file at path, then validates
// it. A read or parse failure returns the default configuration and a
// non-nil error the caller logs as a warning; it never prevents startup.
func Load(path string) (Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), nil, fmt.Errorf("parse config: %w", err)
	}

	warnings := Validate(&cfg)
	return cfg, warnings, nil
}

// WatchdogTimeout resolves a task's configured timeout, falling back to a
// generous default if the task has no explicit entry.
func (c Config) WatchdogTimeout(task string) time.Duration {
	if ms, ok := c.Watchdog.TimeoutsMS[task]; ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return time.Second
}
