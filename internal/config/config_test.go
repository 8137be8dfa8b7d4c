package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atr.yaml")
	contents := `
truck_id: 7
periods:
  sensor_filter_ms: 25
navigation:
  cruise_speed_pct: 50
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if cfg.TruckID != 7 {
		t.Errorf("truck_id = %d, want 7", cfg.TruckID)
	}
	if cfg.Periods.SensorFilterMS != 25 {
		t.Errorf("sensor_filter_ms = %d, want 25", cfg.Periods.SensorFilterMS)
	}
	// Unspecified fields keep their defaults.
	if cfg.Periods.CommandModeMS != Default().Periods.CommandModeMS {
		t.Errorf("command_mode_ms = %d, want default %d", cfg.Periods.CommandModeMS, Default().Periods.CommandModeMS)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if cfg.TruckID != Default().TruckID {
		t.Error("expected default config on read failure")
	}
}

func TestValidateCorrectsOutOfRangeValues(t *testing.T) {
	cfg := Default()
	cfg.TruckID = -1
	cfg.Navigation.CruiseSpeedPct = 500
	cfg.Periods.NavigationMS = 0
	cfg.Watchdog.TimeoutsMS = nil

	warnings := Validate(&cfg)
	if len(warnings) == 0 {
		t.Fatal("expected warnings for invalid fields")
	}
	if cfg.TruckID != Default().TruckID {
		t.Errorf("truck_id not corrected: %d", cfg.TruckID)
	}
	if cfg.Navigation.CruiseSpeedPct != Default().Navigation.CruiseSpeedPct {
		t.Errorf("cruise_speed_pct not corrected: %d", cfg.Navigation.CruiseSpeedPct)
	}
	if cfg.Periods.NavigationMS != Default().Periods.NavigationMS {
		t.Errorf("navigation_ms not corrected: %d", cfg.Periods.NavigationMS)
	}
	if cfg.Watchdog.TimeoutsMS == nil {
		t.Error("timeouts_ms should fall back to the default map")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := Default()
	if warnings := Validate(&cfg); len(warnings) != 0 {
		t.Errorf("default config should validate cleanly, got warnings: %v", warnings)
	}
}

func TestWatchdogTimeoutFallsBackWhenMissing(t *testing.T) {
	cfg := Default()
	if got := cfg.WatchdogTimeout("Nonexistent"); got.Milliseconds() != 1000 {
		t.Errorf("fallback timeout = %v, want 1s", got)
	}
	if got := cfg.WatchdogTimeout("CommandMode"); got.Milliseconds() != 100 {
		t.Errorf("CommandMode timeout = %v, want 100ms", got)
	}
}
