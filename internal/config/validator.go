package config

import "fmt"

// Validate checks cfg for out-of-range or missing values, correcting each
// one to its default in place and returning a human-readable warning per
// correction. Unlike the teacher's validator.go (which rejects the whole
// file on a bad value), this never returns an error: SPEC_FULL.md §7
// requires the core to always start with a usable configuration, logging a
// warning per bad field rather than refusing to boot over one typo.
func Validate(cfg *Config) []string {
	def := Default()
	var warnings []string

	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if cfg.TruckID <= 0 {
		warn("truck_id %d invalid, using %d", cfg.TruckID, def.TruckID)
		cfg.TruckID = def.TruckID
	}
	if cfg.FilterOrder <= 0 {
		warn("filter_order %d invalid, using %d", cfg.FilterOrder, def.FilterOrder)
		cfg.FilterOrder = def.FilterOrder
	}

	validatePeriod(&warnings, "periods.sensor_filter_ms", &cfg.Periods.SensorFilterMS, def.Periods.SensorFilterMS)
	validatePeriod(&warnings, "periods.command_mode_ms", &cfg.Periods.CommandModeMS, def.Periods.CommandModeMS)
	validatePeriod(&warnings, "periods.fault_detect_ms", &cfg.Periods.FaultDetectMS, def.Periods.FaultDetectMS)
	validatePeriod(&warnings, "periods.navigation_ms", &cfg.Periods.NavigationMS, def.Periods.NavigationMS)
	validatePeriod(&warnings, "periods.logger_ms", &cfg.Periods.LoggerMS, def.Periods.LoggerMS)
	validatePeriod(&warnings, "periods.snapshot_ms", &cfg.Periods.SnapshotMS, def.Periods.SnapshotMS)
	validatePeriod(&warnings, "periods.watchdog_check_ms", &cfg.Periods.WatchdogCheckMS, def.Periods.WatchdogCheckMS)

	if cfg.Navigation.ArrivalRadius <= 0 {
		warn("navigation.arrival_radius %d invalid, using %d", cfg.Navigation.ArrivalRadius, def.Navigation.ArrivalRadius)
		cfg.Navigation.ArrivalRadius = def.Navigation.ArrivalRadius
	}
	if cfg.Navigation.AlignmentThresholdDeg <= 0 {
		warn("navigation.alignment_threshold_deg %d invalid, using %d", cfg.Navigation.AlignmentThresholdDeg, def.Navigation.AlignmentThresholdDeg)
		cfg.Navigation.AlignmentThresholdDeg = def.Navigation.AlignmentThresholdDeg
	}
	if cfg.Navigation.RealignThresholdDeg <= 0 {
		warn("navigation.realign_threshold_deg %d invalid, using %d", cfg.Navigation.RealignThresholdDeg, def.Navigation.RealignThresholdDeg)
		cfg.Navigation.RealignThresholdDeg = def.Navigation.RealignThresholdDeg
	}
	if cfg.Navigation.CruiseSpeedPct <= 0 || cfg.Navigation.CruiseSpeedPct > 100 {
		warn("navigation.cruise_speed_pct %d out of range, using %d", cfg.Navigation.CruiseSpeedPct, def.Navigation.CruiseSpeedPct)
		cfg.Navigation.CruiseSpeedPct = def.Navigation.CruiseSpeedPct
	}
	if cfg.Navigation.RotationEffort <= 0 || cfg.Navigation.RotationEffort > 100 {
		warn("navigation.rotation_effort %d out of range, using %d", cfg.Navigation.RotationEffort, def.Navigation.RotationEffort)
		cfg.Navigation.RotationEffort = def.Navigation.RotationEffort
	}

	if cfg.RoutePlanner.LookAhead <= 0 {
		warn("route_planner.look_ahead %d invalid, using %d", cfg.RoutePlanner.LookAhead, def.RoutePlanner.LookAhead)
		cfg.RoutePlanner.LookAhead = def.RoutePlanner.LookAhead
	}
	if cfg.RoutePlanner.AvoidanceRadius <= 0 {
		warn("route_planner.avoidance_radius %d invalid, using %d", cfg.RoutePlanner.AvoidanceRadius, def.RoutePlanner.AvoidanceRadius)
		cfg.RoutePlanner.AvoidanceRadius = def.RoutePlanner.AvoidanceRadius
	}
	if cfg.RoutePlanner.Margin < 0 {
		warn("route_planner.margin %d invalid, using %d", cfg.RoutePlanner.Margin, def.RoutePlanner.Margin)
		cfg.RoutePlanner.Margin = def.RoutePlanner.Margin
	}

	if cfg.Watchdog.CheckPeriodMS <= 0 {
		warn("watchdog.check_period_ms %d invalid, using %d", cfg.Watchdog.CheckPeriodMS, def.Watchdog.CheckPeriodMS)
		cfg.Watchdog.CheckPeriodMS = def.Watchdog.CheckPeriodMS
	}
	if cfg.Watchdog.TimeoutsMS == nil {
		warn("watchdog.timeouts_ms missing, using defaults")
		cfg.Watchdog.TimeoutsMS = def.Watchdog.TimeoutsMS
	}

	if cfg.Boundary.InboundDir == "" {
		warn("boundary.inbound_dir empty, using %q", def.Boundary.InboundDir)
		cfg.Boundary.InboundDir = def.Boundary.InboundDir
	}
	if cfg.Boundary.OutboundDir == "" {
		warn("boundary.outbound_dir empty, using %q", def.Boundary.OutboundDir)
		cfg.Boundary.OutboundDir = def.Boundary.OutboundDir
	}
	if cfg.Boundary.LogDir == "" {
		warn("boundary.log_dir empty, using %q", def.Boundary.LogDir)
		cfg.Boundary.LogDir = def.Boundary.LogDir
	}

	if cfg.DebugHTTP.Enabled && cfg.DebugHTTP.Port == "" {
		warn("debug_http.port empty while enabled, using %q", def.DebugHTTP.Port)
		cfg.DebugHTTP.Port = def.DebugHTTP.Port
	}

	return warnings
}

func validatePeriod(warnings *[]string, name string, field *int, fallback int) {
	if *field <= 0 {
		*warnings = append(*warnings, fmt.Sprintf("%s %d invalid, using %d", name, *field, fallback))
		*field = fallback
	}
}
