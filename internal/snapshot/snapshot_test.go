package snapshot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/types"
)

func TestTickCopiesLatestSampleStateAndActuator(t *testing.T) {
	buf := ringbuffer.New()
	buf.Write(types.FilteredSensorSample{PositionX: 10, PositionY: 20, Heading: 90})

	task := New(5*time.Millisecond, buf, nil, nil)
	task.SetTruckState(types.TruckState{Automatic: true})
	task.SetActuatorOutput(types.ActuatorCommand{Velocity: 30, Steering: 5})

	task.tick()

	got := task.Latest()
	if got.Sample.PositionX != 10 || got.Sample.PositionY != 20 {
		t.Errorf("sample = %+v", got.Sample)
	}
	if !got.State.Automatic {
		t.Errorf("state = %+v", got.State)
	}
	if got.Actuator.Velocity != 30 || got.Actuator.Steering != 5 {
		t.Errorf("actuator = %+v", got.Actuator)
	}
}

func TestStartAndStopRunPeriodicLoop(t *testing.T) {
	buf := ringbuffer.New()
	buf.Write(types.FilteredSensorSample{PositionX: 1, PositionY: 2})

	task := New(5*time.Millisecond, buf, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	task.Stop()

	got := task.Latest()
	if got.Sample.PositionX != 1 || got.Sample.PositionY != 2 {
		t.Errorf("expected at least one tick to have run, got %+v", got)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	buf := ringbuffer.New()
	task := New(5*time.Millisecond, buf, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task.Start(ctx)
	task.Start(ctx) // second call must be a no-op, not a second goroutine
	task.Stop()
}

func TestReportFormatsModeAndArrival(t *testing.T) {
	s := Snapshot{
		State:    types.TruckState{Automatic: true},
		Sample:   types.FilteredSensorSample{PositionX: 5, PositionY: 6, Heading: 90, Temperature: 40},
		Actuator: types.ActuatorCommand{Velocity: 20, Steering: -3, Arrived: true},
	}
	report := Report(s)
	if !strings.Contains(report, "[AUTO]") || !strings.Contains(report, "[ARRIVED]") {
		t.Errorf("report = %q", report)
	}
}

func TestReportShowsFaultOverAuto(t *testing.T) {
	s := Snapshot{State: types.TruckState{Automatic: true, Fault: true}}
	report := Report(s)
	if !strings.Contains(report, "[FAULT]") {
		t.Errorf("report = %q, want FAULT to dominate AUTO", report)
	}
}
