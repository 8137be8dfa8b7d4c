// Package datalogger implements the periodic CSV event logger described in
// SPEC_FULL.md §4.9, grounded on data_collector.cpp: append-open a per-truck
// CSV file, write a header only if the file is new/empty, write one
// "periodic status update" row per period plus ad-hoc rows from LogEvent
// (called by fault callbacks and the Main Coordinator), everything
// serialized under one file lock.
package datalogger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joaoigorandrade/ATR/internal/obslog"
	"github.com/joaoigorandrade/ATR/internal/perfmon"
	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/types"
	"github.com/joaoigorandrade/ATR/internal/watchdog"
)

var log = obslog.For("DC")

const header = "Timestamp,TruckID,State,PositionX,PositionY,Description\n"

// Logger runs the periodic CSV logging task and exposes LogEvent for
// out-of-band rows.
type Logger struct {
	buffer  *ringbuffer.Buffer
	truckID int
	period  time.Duration
	perf    *perfmon.Monitor
	wd      *watchdog.Watchdog

	filename string

	fileMu sync.Mutex
	file   *os.File

	stateMu sync.Mutex
	state   types.TruckState

	running atomic.Bool
	done    chan struct{}
}

// New constructs a Logger writing to <logDir>/truck_<truckID>_log.csv.
func New(logDir string, truckID int, period time.Duration, buffer *ringbuffer.Buffer, perf *perfmon.Monitor, wd *watchdog.Watchdog) *Logger {
	filename := filepath.Join(logDir, fmt.Sprintf("truck_%d_log.csv", truckID))
	return &Logger{
		buffer:   buffer,
		truckID:  truckID,
		period:   period,
		perf:     perf,
		wd:       wd,
		filename: filename,
	}
}

// SetTruckState installs the latest truck state, read by the periodic row.
func (l *Logger) SetTruckState(state types.TruckState) {
	l.stateMu.Lock()
	l.state = state
	l.stateMu.Unlock()
}

// Start opens the log file (appending, writing a header if it is empty)
// and begins the periodic loop. If the file cannot be opened the loop still
// runs with every row dropped, and the open error is returned.
func (l *Logger) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return nil
	}

	log.Info("", "event", "init", "truck_id", l.truckID, "period_ms", l.period.Milliseconds(), "file", l.filename)

	openErr := l.openLogFile()

	l.done = make(chan struct{})

	if l.perf != nil {
		l.perf.Register("DataLogger", int(l.period.Milliseconds()))
	}
	if l.wd != nil {
		l.wd.Register("DataLogger", 10*l.period)
	}

	log.Info("", "event", "start")
	log.Warn("", "event", "rt_priority_unavailable")

	go l.loop(ctx)
	return openErr
}

// Stop halts the loop, waits for it to exit, and closes the log file.
func (l *Logger) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	<-l.done
	l.closeLogFile()
	log.Info("", "event", "stop")
}

func (l *Logger) openLogFile() error {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.filename), 0o755); err != nil {
		log.Error("", "event", "file_err", "file", l.filename, "error", err.Error())
		return err
	}

	f, err := os.OpenFile(l.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Error("", "event", "file_err", "file", l.filename, "error", err.Error())
		return err
	}

	info, err := f.Stat()
	if err == nil && info.Size() == 0 {
		if _, werr := f.WriteString(header); werr != nil {
			f.Close()
			return werr
		}
	}

	l.file = f
	log.Debug("", "event", "file_open", "file", l.filename)
	return nil
}

func (l *Logger) closeLogFile() {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// LogEvent writes a single event row, serialized under the file lock. It is
// called by the periodic loop and also by out-of-band callers (fault
// callbacks, the Main Coordinator on boundary events).
func (l *Logger) LogEvent(state string, positionX, positionY int, description string) {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	if l.file == nil {
		return
	}

	row := fmt.Sprintf("%d,%d,%s,%d,%d,%s\n", time.Now().UnixMilli(), l.truckID, state, positionX, positionY, description)
	if _, err := l.file.WriteString(row); err != nil {
		log.Error("", "event", "write_err", "error", err.Error())
	}
}

func (l *Logger) loop(ctx context.Context) {
	defer close(l.done)

	next := time.Now().Add(l.period)
	timer := time.NewTimer(l.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !l.running.Load() {
				return
			}
			l.tick()

			next = next.Add(l.period)
			if rem := time.Until(next); rem > 0 {
				timer.Reset(rem)
			} else {
				timer.Reset(0)
			}
		}
	}
}

func (l *Logger) tick() {
	var start time.Time
	if l.perf != nil {
		start = l.perf.Start()
	}

	sample, _ := l.buffer.PeekLatest()

	l.stateMu.Lock()
	state := l.state
	l.stateMu.Unlock()

	l.LogEvent(state.StateString(), sample.PositionX, sample.PositionY, "Periodic status update")

	if l.wd != nil {
		l.wd.Heartbeat("DataLogger")
	}
	if l.perf != nil {
		l.perf.End("DataLogger", start)
	}
}
