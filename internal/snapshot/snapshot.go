// Package snapshot implements the Local Snapshot Task described in
// SPEC_FULL.md §4.10, grounded on local_interface.cpp: a low-priority
// periodic consumer that peeks the latest filtered sample, copies the
// current truck state and actuator command under one lock, and emits a
// single structured status record. The terminal visual-rendering mode in
// local_interface.cpp is a pure formatting concern split out into
// Report below rather than folded into the periodic tick itself.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joaoigorandrade/ATR/internal/obslog"
	"github.com/joaoigorandrade/ATR/internal/perfmon"
	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/types"
	"github.com/joaoigorandrade/ATR/internal/watchdog"
)

var log = obslog.For("LI")

// Snapshot is a consolidated, point-in-time status record.
type Snapshot struct {
	Sample   types.FilteredSensorSample
	State    types.TruckState
	Actuator types.ActuatorCommand
}

// Task runs the periodic snapshot loop and exposes the last emitted record.
type Task struct {
	buffer *ringbuffer.Buffer
	period time.Duration
	perf   *perfmon.Monitor
	wd     *watchdog.Watchdog

	mu       sync.Mutex
	state    types.TruckState
	actuator types.ActuatorCommand
	last     Snapshot

	running atomic.Bool
	done    chan struct{}
}

// New constructs a Task.
func New(period time.Duration, buffer *ringbuffer.Buffer, perf *perfmon.Monitor, wd *watchdog.Watchdog) *Task {
	return &Task{buffer: buffer, period: period, perf: perf, wd: wd}
}

// SetTruckState installs the latest truck state, sourced from Command/Mode.
func (t *Task) SetTruckState(state types.TruckState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// SetActuatorOutput installs the latest final actuator command, sourced from
// Command/Mode.
func (t *Task) SetActuatorOutput(output types.ActuatorCommand) {
	t.mu.Lock()
	t.actuator = output
	t.mu.Unlock()
}

// Latest returns the most recently emitted snapshot.
func (t *Task) Latest() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Start begins the periodic loop.
func (t *Task) Start(ctx context.Context) {
	if !t.running.CompareAndSwap(false, true) {
		return
	}

	log.Info("", "event", "init", "period_ms", t.period.Milliseconds())

	t.done = make(chan struct{})

	if t.perf != nil {
		t.perf.Register("LocalSnapshot", int(t.period.Milliseconds()))
	}
	if t.wd != nil {
		t.wd.Register("LocalSnapshot", 10*t.period)
	}

	log.Info("", "event", "start")
	log.Warn("", "event", "rt_priority_unavailable")

	go t.loop(ctx)
}

// Stop halts the loop and waits for it to exit.
func (t *Task) Stop() {
	if !t.running.CompareAndSwap(true, false) {
		return
	}
	<-t.done
	log.Info("", "event", "stop")
}

func (t *Task) loop(ctx context.Context) {
	defer close(t.done)

	next := time.Now().Add(t.period)
	timer := time.NewTimer(t.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !t.running.Load() {
				return
			}
			t.tick()

			next = next.Add(t.period)
			if rem := time.Until(next); rem > 0 {
				timer.Reset(rem)
			} else {
				timer.Reset(0)
			}
		}
	}
}

func (t *Task) tick() {
	var start time.Time
	if t.perf != nil {
		start = t.perf.Start()
	}

	sample, _ := t.buffer.PeekLatest()

	t.mu.Lock()
	snap := Snapshot{Sample: sample, State: t.state, Actuator: t.actuator}
	t.last = snap
	t.mu.Unlock()

	log.Info("", "status", "snapshot",
		"mode", snap.State.StateString(),
		"fault", snap.State.Fault,
		"x", snap.Sample.PositionX,
		"y", snap.Sample.PositionY,
		"ang", snap.Sample.Heading,
		"temp", snap.Sample.Temperature,
		"elec", snap.Sample.FaultElectrical,
		"hydr", snap.Sample.FaultHydraulic,
		"acc", snap.Actuator.Velocity,
		"str", snap.Actuator.Steering,
		"arr", snap.Actuator.Arrived,
	)

	if t.wd != nil {
		t.wd.Heartbeat("LocalSnapshot")
	}
	if t.perf != nil {
		t.perf.End("LocalSnapshot", start)
	}
}

// Report renders a snapshot as a single human-readable line, the headless
// equivalent of local_interface.cpp's optional ANSI display mode.
func Report(s Snapshot) string {
	mode := "MANUAL"
	switch {
	case s.State.Fault:
		mode = "FAULT"
	case s.State.Automatic:
		mode = "AUTO"
	}
	arrived := ""
	if s.Actuator.Arrived {
		arrived = " [ARRIVED]"
	}
	return fmt.Sprintf("[%s] POS:(%d,%d) HDG:%d° TEMP:%d°C ACC:%d%% STR:%d°%s",
		mode, s.Sample.PositionX, s.Sample.PositionY, s.Sample.Heading,
		s.Sample.Temperature, s.Actuator.Velocity, s.Actuator.Steering, arrived)
}
