// Package sensorfilter implements the periodic moving-average filter task
// described in SPEC_FULL.md §4.2, grounded on sensor_processing.cpp:
// independent fixed-size history queues per channel (position X, position Y,
// heading, temperature), integer moving average, and a periodic loop that
// writes one filtered sample to the ring buffer per tick and heartbeats the
// watchdog. The absolute-deadline scheduling (next_execution +=
// period_ms_; sleep_until) is realized with time.Timer recomputed from an
// always-advancing deadline, since time.Ticker would double-fire after an
// overrun; this follows the same idiom used by every other periodic task
// package (commandmode, faultdetector, navigation, datalogger, snapshot).
package sensorfilter

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

var log = obslog.For("SP")

// Filter runs the periodic sensor-smoothing task.
type Filter struct {
	order  int
	period time.Duration
	buffer *ringbuffer.Buffer
	perf   *perfmon.Monitor
	wd     *watchdog.Watchdog

	rawMu sync.Mutex
	raw   types.RawSensorSample

	historyX    []int
	historyY    []int
	historyHead []int
	historyTemp []int

	writeCount atomic.Int64

	running atomic.Bool
	done    chan struct{}
}

// New constructs a Filter with the given moving-average window (order),
// period, destination ring buffer, performance monitor and watchdog.
func New(order int, period time.Duration, buffer *ringbuffer.Buffer, perf *perfmon.Monitor, wd *watchdog.Watchdog) *Filter {
	return &Filter{
		order:  order,
		period: period,
		buffer: buffer,
		perf:   perf,
		wd:     wd,
		raw:    types.RawSensorSample{Temperature: 20},
	}
}

// SetRawSample installs the latest unfiltered sample, consumed on the next
// tick. Safe to call from the Main Coordinator concurrently with the task
// loop, matching set_raw_data's mutex-guarded setter.
func (f *Filter) SetRawSample(sample types.RawSensorSample) {
	f.rawMu.Lock()
	f.raw = sample
	f.rawMu.Unlock()
}

// Start begins the periodic loop in a background goroutine.
func (f *Filter) Start(ctx context.Context) {
	if !f.running.CompareAndSwap(false, true) {
		return
	}
	f.done = make(chan struct{})

	if f.perf != nil {
		f.perf.Register("SensorFilter", int(f.period.Milliseconds()))
	}
	if f.wd != nil {
		f.wd.Register("SensorFilter", 10*f.period)
	}

	log.Info("", "event", "start", "period_ms", f.period.Milliseconds(), "filter_order", f.order)
	log.Warn("", "event", "rt_priority_unavailable")

	go f.loop(ctx)
}

// Stop halts the loop and waits for it to exit.
func (f *Filter) Stop() {
	if !f.running.CompareAndSwap(true, false) {
		return
	}
	<-f.done
	log.Info("", "event", "stop")
}

func (f *Filter) loop(ctx context.Context) {
	defer close(f.done)

	next := time.Now().Add(f.period)
	timer := time.NewTimer(f.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !f.running.Load() {
				return
			}
			f.tick()

			next = next.Add(f.period)
			if d := time.Until(next); d > 0 {
				timer.Reset(d)
			} else {
				timer.Reset(0)
			}
		}
	}
}

func (f *Filter) tick() {
	var start time.Time
	if f.perf != nil {
		start = f.perf.Start()
	}

	f.rawMu.Lock()
	raw := f.raw
	f.rawMu.Unlock()

	filteredX := movingAverage(raw.PositionX, &f.historyX, f.order)
	filteredY := movingAverage(raw.PositionY, &f.historyY, f.order)
	filteredHeading := movingAverage(raw.Heading, &f.historyHead, f.order)
	filteredTemp := movingAverage(raw.Temperature, &f.historyTemp, f.order)

	sample := types.FilteredSensorSample{
		PositionX:       filteredX,
		PositionY:       filteredY,
		Heading:         filteredHeading,
		Temperature:     filteredTemp,
		FaultElectrical: raw.FaultElectrical,
		FaultHydraulic:  raw.FaultHydraulic,
		TimestampMS:     time.Now().UnixMilli(),
	}

	f.buffer.Write(sample)

	if n := f.writeCount.Add(1); n%50 == 0 {
		log.Debug("", "event", "write", "temp", sample.Temperature, "pos_x", sample.PositionX, "pos_y", sample.PositionY)
	}

	if f.wd != nil {
		f.wd.Heartbeat("SensorFilter")
	}
	if f.perf != nil {
		f.perf.End("SensorFilter", start)
	}
}

// movingAverage appends value to history (capped at order entries, dropping
// the oldest) and returns the integer average of the window, matching
// apply_moving_average's deque push_back/pop_front/accumulate.
func movingAverage(value int, history *[]int, order int) int {
	*history = append(*history, value)
	if len(*history) > order {
		*history = (*history)[1:]
	}

	sum := 0
	for _, v := range *history {
		sum += v
	}
	return sum / len(*history)
}
