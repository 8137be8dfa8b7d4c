// Package types holds the data entities shared across the control core:
// sensor samples, commands, setpoints, and the truck/fault state that the
// periodic tasks exchange through the ring buffer and the small synchronized
// containers described in SPEC_FULL.md §3.
package types

import "time"

// RawSensorSample is the unfiltered sample handed to the Sensor Filter task
// by the Main Coordinator each time a new boundary sensor file is consumed.
type RawSensorSample struct {
	PositionX       int
	PositionY       int
	Heading         int // degrees, 0 = east
	Temperature     int // °C
	FaultElectrical bool
	FaultHydraulic  bool
}

// FilteredSensorSample is the moving-average-filtered sample written to the
// ring buffer. It is what every consumer task actually observes.
type FilteredSensorSample struct {
	PositionX       int
	PositionY       int
	Heading         int
	Temperature     int
	FaultElectrical bool
	FaultHydraulic  bool
	TimestampMS     int64
}

// OperatorCommand is a single operator intent. The Command/Mode task applies
// its mode requests once; its accelerate and steer values stay in use for
// manual mode until the next command replaces them.
type OperatorCommand struct {
	RequestAuto   bool
	RequestManual bool
	RequestRearm  bool
	Accelerate    int
	SteerLeft     int
	SteerRight    int
}

// NavigationSetpoint is the target the Navigation task steers toward.
type NavigationSetpoint struct {
	TargetX       int
	TargetY       int
	TargetSpeed   int // percent
	TargetHeading int // degrees
}

// Obstacle is a single point obstacle reported by the boundary.
type Obstacle struct {
	ID int
	X  int
	Y  int
}

// ActuatorCommand is the final velocity/steering command, produced by
// Navigation and adopted (or overridden) by Command/Mode.
type ActuatorCommand struct {
	Velocity int  // percent, -100..100
	Steering int  // degrees, -180..180
	Arrived  bool
}

// TruckState is the effective mode of the vehicle as maintained by
// Command/Mode and fanned out to every other task.
type TruckState struct {
	Fault     bool
	Automatic bool
}

// StateString renders the truck state the way the Data Logger and Local
// Snapshot tasks stamp it, matching the CSV "State" column in SPEC_FULL.md §6:
// FAULT dominates, then AUTO/MANUAL. "OK" is reserved for log rows that are
// not tied to a specific mode (see the Logger's LogEvent("OK", ...) calls).
func (s TruckState) StateString() string {
	switch {
	case s.Fault:
		return "FAULT"
	case s.Automatic:
		return "AUTO"
	default:
		return "MANUAL"
	}
}

// FaultKind enumerates the Fault Detector's classification output. The
// detector checks them in fault_monitoring.cpp's priority order: critical
// temperature, electrical, hydraulic, then temperature warning.
type FaultKind string

const (
	FaultNone                FaultKind = "none"
	FaultTemperatureWarning  FaultKind = "temperature-warning"
	FaultTemperatureCritical FaultKind = "temperature-critical"
	FaultElectrical          FaultKind = "electrical"
	FaultHydraulic           FaultKind = "hydraulic"
)

// FaultEvent is delivered to every registered fault callback on a
// non-none classification edge. ID is a fresh UUID so the same transition
// can be correlated across the console log and the CSV log (SPEC_FULL.md §3).
type FaultEvent struct {
	ID     string
	Kind   FaultKind
	Sample FilteredSensorSample
	At     time.Time
}

// TaskStats is the Performance Monitor's per-task record, window capped at
// a fixed 100 samples per SPEC_FULL.md / spec.md §3.
type TaskStats struct {
	TaskName          string
	PeriodMS          int
	LastExecUS        int64
	MinExecUS         int64
	MaxExecUS         int64
	MeanExecUS        float64
	StdDevExecUS      float64
	SampleCount       int64
	DeadlineViolations int64
	WorstOverrunUS     int64
}

// WatchdogEntry is the Watchdog's per-task bookkeeping record.
type WatchdogEntry struct {
	TaskName            string
	Timeout             time.Duration
	LastHeartbeat       time.Time
	EverReported        bool
	ConsecutiveTimeouts int
}
