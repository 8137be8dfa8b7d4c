package faultdetector

import (
	"testing"
	"time"

	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/types"
)

func TestClassifyPriorityOrder(t *testing.T) {
	cases := []struct {
		name   string
		sample types.FilteredSensorSample
		want   types.FaultKind
	}{
		{"none", types.FilteredSensorSample{Temperature: 50}, types.FaultNone},
		{"warning", types.FilteredSensorSample{Temperature: 100}, types.FaultTemperatureWarning},
		{"critical overrides electrical", types.FilteredSensorSample{Temperature: 130, FaultElectrical: true}, types.FaultTemperatureCritical},
		{"electrical overrides hydraulic", types.FilteredSensorSample{FaultElectrical: true, FaultHydraulic: true}, types.FaultElectrical},
		{"hydraulic overrides warning", types.FilteredSensorSample{Temperature: 100, FaultHydraulic: true}, types.FaultHydraulic},
	}
	for _, c := range cases {
		if got := classify(c.sample); got != c.want {
			t.Errorf("%s: classify() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestTickFiresCallbackOnNonNoneEdge(t *testing.T) {
	buf := ringbuffer.New()
	d := New(10*time.Millisecond, buf, nil, nil)

	var events []types.FaultEvent
	d.RegisterCallback(func(e types.FaultEvent) {
		events = append(events, e)
	})

	buf.Write(types.FilteredSensorSample{Temperature: 130})
	d.tick()

	if len(events) != 1 {
		t.Fatalf("expected 1 callback invocation, got %d", len(events))
	}
	if events[0].Kind != types.FaultTemperatureCritical {
		t.Errorf("fault kind = %v, want critical", events[0].Kind)
	}
	if events[0].ID == "" {
		t.Error("expected a non-empty event ID")
	}
}

func TestTickDoesNotFireCallbackOnReturnToNone(t *testing.T) {
	buf := ringbuffer.New()
	d := New(10*time.Millisecond, buf, nil, nil)

	callCount := 0
	d.RegisterCallback(func(e types.FaultEvent) { callCount++ })

	buf.Write(types.FilteredSensorSample{Temperature: 130})
	d.tick() // none -> critical, fires

	buf.Write(types.FilteredSensorSample{Temperature: 50})
	d.tick() // critical -> none, must NOT fire

	if callCount != 1 {
		t.Errorf("callback invocations = %d, want 1 (no callback on return to none)", callCount)
	}
	if d.CurrentFault() != types.FaultNone {
		t.Errorf("current fault = %v, want none", d.CurrentFault())
	}
}

func TestTickDoesNotRefireOnRepeatedSameFault(t *testing.T) {
	buf := ringbuffer.New()
	d := New(10*time.Millisecond, buf, nil, nil)

	callCount := 0
	d.RegisterCallback(func(e types.FaultEvent) { callCount++ })

	buf.Write(types.FilteredSensorSample{Temperature: 130})
	d.tick()
	d.tick()
	d.tick()

	if callCount != 1 {
		t.Errorf("callback invocations = %d, want 1 (only on the edge)", callCount)
	}
}
