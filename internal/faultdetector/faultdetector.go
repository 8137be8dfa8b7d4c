// Package faultdetector implements the periodic fault classifier described
// in SPEC_FULL.md §4.3, grounded on fault_monitoring.cpp: peek the latest
// ring-buffer sample every period, classify it in the same priority order
// (critical temperature, electrical, hydraulic, then the lower-priority
// temperature warning), and fire edge-triggered callbacks to every
// registered observer only on a transition into a non-none classification.
// A transition back to none updates the stored state but notifies nobody,
// per DESIGN.md's Open Question resolution #2. FaultEvent.ID is a fresh
// github.com/google/uuid value so the same detection can be correlated
// across the console log and the CSV log.
package faultdetector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joaoigorandrade/ATR/internal/lockset"
	"github.com/joaoigorandrade/ATR/internal/obslog"
	"github.com/joaoigorandrade/ATR/internal/perfmon"
	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/types"
	"github.com/joaoigorandrade/ATR/internal/watchdog"
)

var log = obslog.For("FM")

// Callback receives every non-none fault transition.
type Callback func(types.FaultEvent)

// Detector runs the periodic classification task.
type Detector struct {
	period time.Duration
	buffer *ringbuffer.Buffer
	perf   *perfmon.Monitor
	wd     *watchdog.Watchdog

	faultMu sync.Mutex
	current types.FaultKind

	callbackMu sync.Mutex
	callbacks  []Callback

	running atomic.Bool
	done    chan struct{}
}

// New constructs a Detector reading from buffer, at the given period.
func New(period time.Duration, buffer *ringbuffer.Buffer, perf *perfmon.Monitor, wd *watchdog.Watchdog) *Detector {
	return &Detector{
		period:  period,
		buffer:  buffer,
		perf:    perf,
		wd:      wd,
		current: types.FaultNone,
	}
}

// RegisterCallback adds an observer notified on every non-none fault edge.
func (d *Detector) RegisterCallback(cb Callback) {
	d.callbackMu.Lock()
	defer d.callbackMu.Unlock()
	d.callbacks = append(d.callbacks, cb)
}

// CurrentFault returns the most recently classified fault kind.
func (d *Detector) CurrentFault() types.FaultKind {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	return d.current
}

// Start begins the periodic loop.
func (d *Detector) Start(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.done = make(chan struct{})

	if d.perf != nil {
		d.perf.Register("FaultDetect", int(d.period.Milliseconds()))
	}
	if d.wd != nil {
		d.wd.Register("FaultDetect", 10*d.period)
	}

	log.Info("", "event", "init", "period_ms", d.period.Milliseconds())
	log.Info("", "event", "start")
	log.Warn("", "event", "rt_priority_unavailable")

	go d.loop(ctx)
}

// Stop halts the loop and waits for it to exit.
func (d *Detector) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	<-d.done
	log.Info("", "event", "stop")
}

func (d *Detector) loop(ctx context.Context) {
	defer close(d.done)

	next := time.Now().Add(d.period)
	timer := time.NewTimer(d.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !d.running.Load() {
				return
			}
			d.tick()

			next = next.Add(d.period)
			if rem := time.Until(next); rem > 0 {
				timer.Reset(rem)
			} else {
				timer.Reset(0)
			}
		}
	}
}

func (d *Detector) tick() {
	var start time.Time
	if d.perf != nil {
		start = d.perf.Start()
	}

	sample, ok := d.buffer.PeekLatest()
	if ok {
		kind := classify(sample)

		// The fault-state transition and the callback-list snapshot must be
		// taken together: a callback registered between the two would either
		// miss an edge it should have seen or be handed a stale kind. Both
		// locks are acquired in the fixed faultMu-then-callbackMu order.
		unlock := lockset.Acquire(&d.faultMu, &d.callbackMu)
		changed := kind != d.current
		if changed {
			d.current = kind
		}
		var cbs []Callback
		if changed && kind != types.FaultNone {
			cbs = make([]Callback, len(d.callbacks))
			copy(cbs, d.callbacks)
		}
		unlock()

		if cbs != nil {
			d.notify(kind, sample, cbs)
		}
	}

	if d.wd != nil {
		d.wd.Heartbeat("FaultDetect")
	}
	if d.perf != nil {
		d.perf.End("FaultDetect", start)
	}
}

// classify checks sample for a fault condition in check_for_faults' exact
// priority order: critical temperature first, then electrical, then
// hydraulic, then the lower-priority temperature warning.
func classify(sample types.FilteredSensorSample) types.FaultKind {
	switch {
	case sample.Temperature > 120:
		return types.FaultTemperatureCritical
	case sample.FaultElectrical:
		return types.FaultElectrical
	case sample.FaultHydraulic:
		return types.FaultHydraulic
	case sample.Temperature > 95:
		return types.FaultTemperatureWarning
	default:
		return types.FaultNone
	}
}

func (d *Detector) notify(kind types.FaultKind, sample types.FilteredSensorSample, cbs []Callback) {
	event := types.FaultEvent{
		ID:     uuid.NewString(),
		Kind:   kind,
		Sample: sample,
		At:     time.Now(),
	}

	switch kind {
	case types.FaultTemperatureWarning:
		log.Warn("", "event", "fault", "type", "TEMP_WRN", "temp", sample.Temperature,
			"pos_x", sample.PositionX, "pos_y", sample.PositionY, "fault_id", event.ID)
	case types.FaultTemperatureCritical:
		log.Log(context.Background(), obslog.LevelCrit, "", "event", "fault", "type", "TEMP_CRT",
			"temp", sample.Temperature, "pos_x", sample.PositionX, "pos_y", sample.PositionY, "fault_id", event.ID)
	case types.FaultElectrical:
		log.Log(context.Background(), obslog.LevelCrit, "", "event", "fault", "type", "ELEC",
			"temp", sample.Temperature, "pos_x", sample.PositionX, "pos_y", sample.PositionY, "fault_id", event.ID)
	case types.FaultHydraulic:
		log.Log(context.Background(), obslog.LevelCrit, "", "event", "fault", "type", "HYDR",
			"temp", sample.Temperature, "pos_x", sample.PositionX, "pos_y", sample.PositionY, "fault_id", event.ID)
	}

	for _, cb := range cbs {
		cb(event)
	}
}
