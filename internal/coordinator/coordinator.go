// Package coordinator implements the Main Coordinator described in
// SPEC_FULL.md §4.11, grounded on _references/orion-prototipe's
// cmd/oriond/main.go (flag parsing, signal handling, health server,
// run/shutdown sequencing) and internal/core/orion.go's Orion type
// (construct-then-Run-then-Shutdown lifecycle, reverse-order component
// teardown, wg.Wait() before disconnecting peripheral services). It owns
// every other component, wires the Fault Detector's callback, and runs the
// single-threaded poll/fan-out loop that connects the boundary to the
// periodic tasks.
package coordinator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joaoigorandrade/ATR/internal/boundary"
	"github.com/joaoigorandrade/ATR/internal/commandmode"
	"github.com/joaoigorandrade/ATR/internal/config"
	"github.com/joaoigorandrade/ATR/internal/datalogger"
	"github.com/joaoigorandrade/ATR/internal/debugsvc"
	"github.com/joaoigorandrade/ATR/internal/faultdetector"
	"github.com/joaoigorandrade/ATR/internal/navigation"
	"github.com/joaoigorandrade/ATR/internal/obslog"
	"github.com/joaoigorandrade/ATR/internal/perfmon"
	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/routeplanner"
	"github.com/joaoigorandrade/ATR/internal/sensorfilter"
	"github.com/joaoigorandrade/ATR/internal/snapshot"
	"github.com/joaoigorandrade/ATR/internal/types"
	"github.com/joaoigorandrade/ATR/internal/watchdog"
)

var log = obslog.For("MA")

// mainLoopPeriod is the Main Coordinator's own poll/fan-out cadence.
// spec.md §4.11 does not name an explicit period for this loop (only for
// the periodic tasks it drives); 20ms equals the Sensor Filter and Fault
// Detector default periods (Navigation/Command-Mode's default 10ms is
// tighter, but boundary files arrive far slower than either) and keeps forced-refresh emission
// responsive without busy-polling the filesystem.
const mainLoopPeriod = 20 * time.Millisecond

// refreshEvery is N from spec.md §4.11's "change-detection + forced
// refresh every N iterations (N=4)".
const refreshEvery = 4

// Coordinator owns every component and drives the poll/fan-out loop.
type Coordinator struct {
	cfg config.Config

	buffer *ringbuffer.Buffer
	perf   *perfmon.Monitor
	wd     *watchdog.Watchdog

	filter   *sensorfilter.Filter
	mode     *commandmode.StateMachine
	detector *faultdetector.Detector
	nav      *navigation.Controller
	planner  *routeplanner.Planner
	logger   *datalogger.Logger
	snap     *snapshot.Task

	reader *boundary.Reader
	writer *boundary.Writer
	debug  *debugsvc.Service

	running atomic.Bool
	done    chan struct{}

	mu           sync.Mutex
	iteration    int
	lastActuator types.ActuatorCommand
	lastState    types.TruckState
	haveLast     bool
}

// New constructs every component from cfg but starts nothing.
func New(cfg config.Config) (*Coordinator, error) {
	buf := ringbuffer.New()
	perf := perfmon.New()
	wd := watchdog.New(time.Duration(cfg.Watchdog.CheckPeriodMS) * time.Millisecond)

	filter := sensorfilter.New(cfg.FilterOrder, time.Duration(cfg.Periods.SensorFilterMS)*time.Millisecond, buf, perf, wd)
	mode := commandmode.New(time.Duration(cfg.Periods.CommandModeMS)*time.Millisecond, buf, perf, wd)
	detector := faultdetector.New(time.Duration(cfg.Periods.FaultDetectMS)*time.Millisecond, buf, perf, wd)
	navConstants := navigation.Constants{
		ArrivalRadius:         cfg.Navigation.ArrivalRadius,
		AlignmentThresholdDeg: cfg.Navigation.AlignmentThresholdDeg,
		RealignThresholdDeg:   cfg.Navigation.RealignThresholdDeg,
		CruiseSpeedPct:        cfg.Navigation.CruiseSpeedPct,
		RotationEffort:        cfg.Navigation.RotationEffort,
	}
	nav := navigation.New(time.Duration(cfg.Periods.NavigationMS)*time.Millisecond, buf, perf, wd, navConstants)
	planner := routeplanner.NewWithConstants(cfg.RoutePlanner.LookAhead, float64(cfg.RoutePlanner.AvoidanceRadius), float64(cfg.RoutePlanner.Margin))
	logger := datalogger.New(cfg.Boundary.LogDir, cfg.TruckID, time.Duration(cfg.Periods.LoggerMS)*time.Millisecond, buf, perf, wd)
	snap := snapshot.New(time.Duration(cfg.Periods.SnapshotMS)*time.Millisecond, buf, perf, wd)

	reader := boundary.NewReader(cfg.Boundary.InboundDir, cfg.TruckID)
	writer, err := boundary.NewWriter(cfg.Boundary.OutboundDir, cfg.TruckID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: create boundary writer: %w", err)
	}

	c := &Coordinator{
		cfg:      cfg,
		buffer:   buf,
		perf:     perf,
		wd:       wd,
		filter:   filter,
		mode:     mode,
		detector: detector,
		nav:      nav,
		planner:  planner,
		logger:   logger,
		snap:     snap,
		reader:   reader,
		writer:   writer,
	}

	// Route the Fault Detector's edge-triggered callback to Command/Mode,
	// Navigation, and the Logger, per spec.md §4.11. Command/Mode and
	// Navigation already classify faults/react to TruckState.Fault
	// independently every tick (command_logic.cpp and navigation_control.cpp
	// both re-derive the condition from the latest sample rather than
	// waiting on a push), so the callback's only behavioral effect here is
	// the audit trail: one CSV row per fault edge, correlated by
	// FaultEvent.ID.
	detector.RegisterCallback(func(event types.FaultEvent) {
		logger.LogEvent(types.TruckState{Fault: true}.StateString(), event.Sample.PositionX, event.Sample.PositionY,
			fmt.Sprintf("fault detected: %s (id=%s)", event.Kind, event.ID))
	})

	if cfg.DebugHTTP.Enabled {
		c.debug = debugsvc.New(cfg.DebugHTTP.Port, c.IsRunning, wd, perf, snap)
	}

	return c, nil
}

// IsRunning reports whether the coordinator's loop is currently active,
// consumed by the debug endpoint's /health handler.
func (c *Coordinator) IsRunning() bool {
	return c.running.Load()
}

// watchdogTimeoutOverrides maps each task's watchdog.Register name to the
// key under watchdog.timeouts_ms in the config; "LocalSnapshot" (the
// registered task name) is configured under the shorter key "Snapshot".
var watchdogTimeoutOverrides = map[string]string{
	"SensorFilter":  "SensorFilter",
	"FaultDetect":   "FaultDetect",
	"CommandMode":   "CommandMode",
	"Navigation":    "Navigation",
	"DataLogger":    "DataLogger",
	"LocalSnapshot": "Snapshot",
}

func (c *Coordinator) applyWatchdogOverrides() {
	for taskName, configKey := range watchdogTimeoutOverrides {
		if _, ok := c.cfg.Watchdog.TimeoutsMS[configKey]; ok {
			c.wd.Register(taskName, c.cfg.WatchdogTimeout(configKey))
		}
	}
}

// Start brings up every component in the order spec.md §4.11 mandates
// (Sensor Filter, Command/Mode, Fault Detector, Navigation, Data Logger,
// Watchdog, then Local Snapshot), applies any configured watchdog timeout
// overrides, and begins the poll/fan-out loop.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}

	log.Info("", "event", "init", "truck_id", c.cfg.TruckID)

	c.perf.Register("Main", int(mainLoopPeriod.Milliseconds()))
	c.wd.Register("Main", 10*mainLoopPeriod)

	if c.debug != nil {
		c.debug.Start()
	}

	c.filter.Start(ctx)
	c.mode.Start(ctx)
	c.detector.Start(ctx)
	c.nav.Start(ctx)
	if err := c.logger.Start(ctx); err != nil {
		// Startup failure on the log file is logged, not fatal, per
		// spec.md §7: the task continues in a degraded no-op mode.
		log.Error("", "event", "datalogger_degraded", "error", err.Error())
	}
	c.wd.Start(ctx)
	c.snap.Start(ctx)

	c.applyWatchdogOverrides()

	log.Info("", "event", "start")

	c.done = make(chan struct{})
	go c.loop(ctx)
	return nil
}

// Stop halts the poll/fan-out loop, prints the Performance Monitor report,
// and stops every component in the reverse of its start order.
func (c *Coordinator) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	<-c.done

	log.Info("", "event", "shutdown_report")
	fmt.Println(c.perf.Report())

	c.snap.Stop()
	c.wd.Stop()
	c.logger.Stop()
	c.nav.Stop()
	c.detector.Stop()
	c.mode.Stop()
	c.filter.Stop()

	if c.debug != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.debug.Stop(shutdownCtx); err != nil {
			log.Error("", "event", "debug_stop_err", "error", err.Error())
		}
	}

	log.Info("", "event", "stop")
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)

	next := time.Now().Add(mainLoopPeriod)
	timer := time.NewTimer(mainLoopPeriod)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !c.running.Load() {
				return
			}
			c.tick()

			next = next.Add(mainLoopPeriod)
			if rem := time.Until(next); rem > 0 {
				timer.Reset(rem)
			} else {
				timer.Reset(0)
			}
		}
	}
}

func (c *Coordinator) tick() {
	var start time.Time
	if c.perf != nil {
		start = c.perf.Start()
	}

	if sample, ok := c.reader.ReadSensor(); ok {
		c.filter.SetRawSample(sample)
	}
	if cmd, ok := c.reader.ReadCommand(); ok {
		c.mode.SetCommand(cmd)
		c.logger.LogEvent("OK", 0, 0, "operator command received")
	}
	if x, y, speed, ok := c.reader.ReadSetpoint(); ok {
		c.planner.SetTarget(x, y, speed)
	}
	if obstacles, ok := c.reader.ReadObstacles(); ok {
		c.planner.UpdateObstacles(obstacles)
	}

	current, _ := c.buffer.PeekLatest()
	adjusted := c.planner.ComputeAdjustedSetpoint(current.PositionX, current.PositionY)
	adjusted.TargetHeading = headingDegrees(current.PositionX, current.PositionY, adjusted.TargetX, adjusted.TargetY)
	c.nav.SetSetpoint(adjusted)

	state := c.mode.State()
	c.nav.SetTruckState(state)
	c.logger.SetTruckState(state)
	c.snap.SetTruckState(state)

	c.mode.SetNavigationOutput(c.nav.Output())

	actuator := c.mode.ActuatorOutput()
	c.snap.SetActuatorOutput(actuator)

	c.emitBoundaryOutputs(actuator, state)

	if c.wd != nil {
		c.wd.Heartbeat("Main")
	}
	if c.perf != nil {
		c.perf.End("Main", start)
	}
}

// headingDegrees mirrors routeplanner.HeadingToTarget's raw atan2 bearing,
// computed here because the adjusted setpoint's target is not the
// planner's stored target (it is the ephemeral contouring result) and so
// cannot be obtained by re-querying the planner.
func headingDegrees(fromX, fromY, toX, toY int) int {
	dx := float64(toX - fromX)
	dy := float64(toY - fromY)
	return int(math.Atan2(dy, dx) * 180.0 / math.Pi)
}

// emitBoundaryOutputs writes the actuator and state files on change, or
// unconditionally every refreshEvery iterations, per spec.md §4.11.
func (c *Coordinator) emitBoundaryOutputs(actuator types.ActuatorCommand, state types.TruckState) {
	c.mu.Lock()
	c.iteration++
	forced := c.iteration%refreshEvery == 0
	changed := !c.haveLast || actuator != c.lastActuator || state != c.lastState
	if changed || forced {
		c.lastActuator = actuator
		c.lastState = state
		c.haveLast = true
	}
	c.mu.Unlock()

	if !changed && !forced {
		return
	}

	if err := c.writer.WriteActuator(actuator); err != nil {
		log.Error("", "event", "boundary_write_err", "topic", "commands", "error", err.Error())
	}
	if err := c.writer.WriteState(state); err != nil {
		log.Error("", "event", "boundary_write_err", "topic", "state", "error", err.Error())
	}
}
