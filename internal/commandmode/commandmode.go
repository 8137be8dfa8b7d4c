// Package commandmode implements the periodic Command/Mode state machine
// described in SPEC_FULL.md §4.4, grounded on command_logic.cpp: reads the
// latest sensor sample each period, applies any pending operator command
// once, derives the fault/automatic TruckState, and computes the final
// actuator command. Two behavioral quirks are preserved exactly (the second
// is DESIGN.md's Open Question resolution #4):
//   - rearm only counts once the fault condition is gone: a rearm processed
//     while check_faults still reports a fault is discarded in that same
//     tick, and a rearm processed with a clean sample clears the fault in
//     the tick that sees it.
//   - the manual steering base is never reset to zero on a mode transition:
//     actuator_output_.steering += steering_delta accumulates across ticks.
package commandmode

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joaoigorandrade/ATR/internal/obslog"
	"github.com/joaoigorandrade/ATR/internal/perfmon"
	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/types"
	"github.com/joaoigorandrade/ATR/internal/watchdog"
)

var log = obslog.For("CL")

// StateMachine runs the periodic command/mode task.
type StateMachine struct {
	period time.Duration
	buffer *ringbuffer.Buffer
	perf   *perfmon.Monitor
	wd     *watchdog.Watchdog

	mu             sync.Mutex
	state          types.TruckState
	actuator       types.ActuatorCommand
	latestSample   types.FilteredSensorSample
	navOutput      types.ActuatorCommand
	pendingCommand types.OperatorCommand
	commandPending bool
	faultRearmed   bool

	running atomic.Bool
	done    chan struct{}
}

// New constructs a StateMachine reading from buffer, at the given period.
func New(period time.Duration, buffer *ringbuffer.Buffer, perf *perfmon.Monitor, wd *watchdog.Watchdog) *StateMachine {
	return &StateMachine{period: period, buffer: buffer, perf: perf, wd: wd}
}

// SetCommand installs cmd; its mode requests are applied exactly once on the
// next tick, matching set_command's command_pending_ latch, while its
// accelerate and steer values are reused by every manual-mode tick until the
// next command replaces them.
func (s *StateMachine) SetCommand(cmd types.OperatorCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCommand = cmd
	s.commandPending = true
}

// SetNavigationOutput installs the Navigation task's latest computed
// command, used verbatim whenever the truck is in automatic mode.
func (s *StateMachine) SetNavigationOutput(output types.ActuatorCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navOutput = output
}

// State returns the current truck state.
func (s *StateMachine) State() types.TruckState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActuatorOutput returns the current computed actuator command.
func (s *StateMachine) ActuatorOutput() types.ActuatorCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actuator
}

// LatestSensorSample returns the most recent sample this task observed.
func (s *StateMachine) LatestSensorSample() types.FilteredSensorSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestSample
}

// Start begins the periodic loop.
func (s *StateMachine) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.done = make(chan struct{})

	if s.perf != nil {
		s.perf.Register("CommandMode", int(s.period.Milliseconds()))
	}
	if s.wd != nil {
		s.wd.Register("CommandMode", 10*s.period)
	}

	log.Info("", "event", "init", "period_ms", s.period.Milliseconds())
	log.Info("", "event", "start")
	log.Warn("", "event", "rt_priority_unavailable")

	go s.loop(ctx)
}

// Stop halts the loop and waits for it to exit.
func (s *StateMachine) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	<-s.done
	log.Info("", "event", "stop")
}

func (s *StateMachine) loop(ctx context.Context) {
	defer close(s.done)

	next := time.Now().Add(s.period)
	timer := time.NewTimer(s.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !s.running.Load() {
				return
			}
			s.tick()

			next = next.Add(s.period)
			if rem := time.Until(next); rem > 0 {
				timer.Reset(rem)
			} else {
				timer.Reset(0)
			}
		}
	}
}

func (s *StateMachine) tick() {
	var start time.Time
	if s.perf != nil {
		start = s.perf.Start()
	}

	sample, _ := s.buffer.PeekLatest()

	s.mu.Lock()
	s.latestSample = sample
	faultDetected := checkFaults(sample)

	if s.commandPending {
		s.processCommand()
		s.commandPending = false
	}

	if faultDetected {
		if !s.state.Fault {
			log.Log(context.Background(), obslog.LevelCrit, "", "event", "fault_detect")
		}
		s.state.Fault = true
		s.faultRearmed = false
	} else if s.state.Fault && s.faultRearmed {
		log.Info("", "event", "fault_clear")
		s.state.Fault = false
		s.faultRearmed = false
	}

	s.calculateActuatorOutput()
	s.mu.Unlock()

	if s.wd != nil {
		s.wd.Heartbeat("CommandMode")
	}
	if s.perf != nil {
		s.perf.End("CommandMode", start)
	}
}

// processCommand applies s.pendingCommand, assumed already locked.
func (s *StateMachine) processCommand() {
	cmd := s.pendingCommand

	if cmd.RequestAuto && !s.state.Automatic {
		if !s.state.Fault {
			s.state.Automatic = true
			log.Info("", "event", "mode_change", "mode", "auto")
		} else {
			log.Warn("", "event", "mode_reject", "reason", "fault")
		}
	}

	if cmd.RequestManual && s.state.Automatic {
		s.state.Automatic = false
		log.Info("", "event", "mode_change", "mode", "manual")
	}

	if cmd.RequestRearm && s.state.Fault {
		s.faultRearmed = true
		log.Info("", "event", "rearm_ack")
	}
}

// checkFaults matches check_faults: critical temperature or either
// electrical/hydraulic flag is an immediate fault condition.
func checkFaults(data types.FilteredSensorSample) bool {
	if data.Temperature > 120 {
		return true
	}
	return data.FaultElectrical || data.FaultHydraulic
}

// calculateActuatorOutput matches calculate_actuator_outputs, assumed
// already locked. On fault, outputs are forced to zero. In automatic mode
// the navigation task's output is adopted verbatim. In manual mode the
// steering base accumulates the operator's left/right delta across ticks
// (never reset on a mode transition) and both axes are clamped.
func (s *StateMachine) calculateActuatorOutput() {
	if s.state.Fault {
		s.actuator.Velocity = 0
		s.actuator.Steering = 0
		return
	}

	if s.state.Automatic {
		s.actuator = s.navOutput
		return
	}

	s.actuator.Velocity = s.pendingCommand.Accelerate
	steeringDelta := s.pendingCommand.SteerLeft - s.pendingCommand.SteerRight
	s.actuator.Steering += steeringDelta

	if s.actuator.Steering > 180 {
		s.actuator.Steering = 180
	} else if s.actuator.Steering < -180 {
		s.actuator.Steering = -180
	}

	if s.actuator.Velocity > 100 {
		s.actuator.Velocity = 100
	} else if s.actuator.Velocity < -100 {
		s.actuator.Velocity = -100
	}
}
