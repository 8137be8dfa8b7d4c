package commandmode

import (
	"testing"
	"time"

	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/types"
)

func TestModeSwitchToAutoRequiresNoFault(t *testing.T) {
	buf := ringbuffer.New()
	s := New(10*time.Millisecond, buf, nil, nil)

	s.SetCommand(types.OperatorCommand{RequestAuto: true})
	s.tick()

	if !s.State().Automatic {
		t.Error("expected automatic mode after a clean RequestAuto")
	}
}

func TestModeSwitchToAutoRejectedDuringFault(t *testing.T) {
	buf := ringbuffer.New()
	s := New(10*time.Millisecond, buf, nil, nil)

	buf.Write(types.FilteredSensorSample{Temperature: 130})
	s.SetCommand(types.OperatorCommand{RequestAuto: true})
	s.tick()

	if s.State().Automatic {
		t.Error("expected RequestAuto to be rejected while faulted")
	}
	if !s.State().Fault {
		t.Error("expected fault to be set")
	}
}

func TestFaultClearsOnlyAfterRearmAndCleanSample(t *testing.T) {
	buf := ringbuffer.New()
	s := New(10*time.Millisecond, buf, nil, nil)

	buf.Write(types.FilteredSensorSample{Temperature: 130})
	s.tick() // enters fault

	s.SetCommand(types.OperatorCommand{RequestRearm: true})
	buf.Write(types.FilteredSensorSample{Temperature: 130}) // still faulted
	s.tick()
	if !s.State().Fault {
		t.Fatal("fault should persist while the underlying condition is still present")
	}

	buf.Write(types.FilteredSensorSample{Temperature: 50}) // now clean
	s.tick()
	if !s.State().Fault {
		t.Fatal("a rearm seen while the condition was still present is discarded; fault should persist")
	}

	s.SetCommand(types.OperatorCommand{RequestRearm: true})
	s.tick()
	if s.State().Fault {
		t.Error("fault should clear once rearmed and the sample is clean")
	}
}

func TestRearmAloneDoesNotClearAnActiveFaultCondition(t *testing.T) {
	buf := ringbuffer.New()
	s := New(10*time.Millisecond, buf, nil, nil)

	buf.Write(types.FilteredSensorSample{Temperature: 130})
	s.tick()
	s.SetCommand(types.OperatorCommand{RequestRearm: true})
	s.tick() // rearm processed, but sample is still faulted

	if !s.State().Fault {
		t.Error("rearm should not instantly clear the fault while the condition persists")
	}
}

func TestManualSteeringAccumulatesAcrossTicksWithoutReset(t *testing.T) {
	buf := ringbuffer.New()
	s := New(10*time.Millisecond, buf, nil, nil)

	s.SetCommand(types.OperatorCommand{SteerLeft: 10})
	s.tick()
	first := s.ActuatorOutput().Steering
	if first != 10 {
		t.Fatalf("steering after first manual tick = %d, want 10", first)
	}

	s.SetCommand(types.OperatorCommand{RequestAuto: true}) // switch to auto...
	s.SetNavigationOutput(types.ActuatorCommand{Steering: 25})
	s.tick()
	s.SetCommand(types.OperatorCommand{RequestManual: true}) // ...then back to manual
	s.tick()
	s.SetCommand(types.OperatorCommand{SteerLeft: 10})
	s.tick()
	second := s.ActuatorOutput().Steering

	// Automatic mode adopted Navigation's steering of 25; manual mode keeps
	// that as its base instead of resetting it to zero.
	if second != 25+10 {
		t.Errorf("steering after transition = %d, want %d (no reset on mode change)", second, 25+10)
	}
}

func TestAutomaticModeAdoptsNavigationOutputVerbatim(t *testing.T) {
	buf := ringbuffer.New()
	s := New(10*time.Millisecond, buf, nil, nil)

	s.SetCommand(types.OperatorCommand{RequestAuto: true})
	s.tick()

	s.SetNavigationOutput(types.ActuatorCommand{Velocity: 42, Steering: -17, Arrived: true})
	s.tick()

	got := s.ActuatorOutput()
	if got.Velocity != 42 || got.Steering != -17 || !got.Arrived {
		t.Errorf("actuator output = %+v, want the navigation output verbatim", got)
	}
}

func TestFaultForcesActuatorOutputToZero(t *testing.T) {
	buf := ringbuffer.New()
	s := New(10*time.Millisecond, buf, nil, nil)

	s.SetCommand(types.OperatorCommand{SteerLeft: 50, Accelerate: 80})
	s.tick()

	buf.Write(types.FilteredSensorSample{FaultElectrical: true})
	s.tick()

	got := s.ActuatorOutput()
	if got.Velocity != 0 || got.Steering != 0 {
		t.Errorf("actuator output during fault = %+v, want zeroed", got)
	}
}

func TestFaultPreservesArrivedFromNavigation(t *testing.T) {
	buf := ringbuffer.New()
	s := New(10*time.Millisecond, buf, nil, nil)

	s.SetCommand(types.OperatorCommand{RequestAuto: true})
	s.tick()
	s.SetNavigationOutput(types.ActuatorCommand{Velocity: 30, Steering: 5, Arrived: true})
	s.tick()

	buf.Write(types.FilteredSensorSample{FaultElectrical: true})
	s.tick()

	got := s.ActuatorOutput()
	if got.Velocity != 0 || got.Steering != 0 {
		t.Errorf("actuator output during fault = %+v, want velocity/steering zeroed", got)
	}
	if !got.Arrived {
		t.Error("expected Arrived to be preserved across the fault transition")
	}
}

func TestManualAccelerateAndSteeringAreClamped(t *testing.T) {
	buf := ringbuffer.New()
	s := New(10*time.Millisecond, buf, nil, nil)

	s.SetCommand(types.OperatorCommand{Accelerate: 500, SteerLeft: 1000})
	s.tick()

	got := s.ActuatorOutput()
	if got.Velocity != 100 {
		t.Errorf("velocity = %d, want clamped to 100", got.Velocity)
	}
	if got.Steering != 180 {
		t.Errorf("steering = %d, want clamped to 180", got.Steering)
	}
}
