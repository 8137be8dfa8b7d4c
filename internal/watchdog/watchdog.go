// Package watchdog implements the heartbeat/timeout monitor described in
// SPEC_FULL.md §4.7, grounded on watchdog.cpp: per-task registration with a
// timeout, a heartbeat call each task makes once per period, and a
// monitoring loop that flags a task as faulted once it has reported at
// least once but then gone silent past its timeout ("ever_reported" gates
// the very first check so a slow-starting task is never falsely flagged).
// The loop itself follows the teacher's ctx-cancellable ticker pattern in
// orion.go's watchWorkers, replacing watchdog.cpp's sleep_until-based
// absolute-deadline loop with an idiomatic context.Context + time.Ticker.
package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joaoigorandrade/ATR/internal/obslog"
)

var log = obslog.For("MA")

// FaultHandler is invoked once per detected timeout. task is the name
// passed to Register; elapsed is the time since the task's last heartbeat.
type FaultHandler func(task string, elapsed time.Duration)

type taskInfo struct {
	timeout             time.Duration
	lastHeartbeat       time.Time
	everReported        bool
	consecutiveFailures int
}

// Watchdog monitors a set of named tasks for missed heartbeats.
type Watchdog struct {
	checkPeriod time.Duration

	mu    sync.Mutex
	tasks map[string]*taskInfo

	handlerMu sync.Mutex
	handler   FaultHandler

	running    atomic.Bool
	faultCount atomic.Int64

	heartbeatCount atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Watchdog that checks every checkPeriod. The default
// fault handler logs at CRIT, matching watchdog.cpp's default_fault_handler.
func New(checkPeriod time.Duration) *Watchdog {
	w := &Watchdog{
		checkPeriod: checkPeriod,
		tasks:       make(map[string]*taskInfo),
	}
	w.handler = w.defaultFaultHandler
	return w
}

// SetFaultHandler installs a custom callback, replacing the default logger.
func (w *Watchdog) SetFaultHandler(h FaultHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handler = h
}

// Register declares a task with its heartbeat timeout.
func (w *Watchdog) Register(taskName string, timeout time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tasks[taskName] = &taskInfo{timeout: timeout, lastHeartbeat: time.Now()}
	log.Info("", "event", "watchdog_register", "task", taskName, "timeout_ms", timeout.Milliseconds())
}

// Unregister removes a task from monitoring.
func (w *Watchdog) Unregister(taskName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tasks, taskName)
	log.Info("", "event", "watchdog_unregister", "task", taskName)
}

// Heartbeat reports that taskName is alive. Every 100th heartbeat across
// all tasks is logged at debug level, matching the teacher's rate-limited
// counter in watchdog.cpp.
func (w *Watchdog) Heartbeat(taskName string) {
	w.mu.Lock()
	info, ok := w.tasks[taskName]
	if ok {
		info.lastHeartbeat = time.Now()
		info.everReported = true
		info.consecutiveFailures = 0
	}
	w.mu.Unlock()

	if !ok {
		log.Warn("", "event", "watchdog_heartbeat_unknown", "task", taskName)
		return
	}

	if n := w.heartbeatCount.Add(1); n%100 == 0 {
		log.Debug("", "event", "watchdog_heartbeat", "task", taskName, "count", n)
	}
}

// TaskCount reports the number of currently registered tasks.
func (w *Watchdog) TaskCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tasks)
}

// FaultCount reports the lifetime number of detected timeouts.
func (w *Watchdog) FaultCount() int64 {
	return w.faultCount.Load()
}

// Start begins the monitoring loop in a background goroutine. Calling
// Start twice without an intervening Stop is a no-op, matching
// watchdog.cpp's running_ guard in start().
func (w *Watchdog) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	log.Info("", "event", "watchdog_start", "check_period_ms", w.checkPeriod.Milliseconds())
	log.Warn("", "event", "rt_priority_unavailable")

	go w.loop(ctx)
}

// Stop halts the monitoring loop and waits for it to exit.
func (w *Watchdog) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	w.cancel()
	<-w.done
	log.Info("", "event", "watchdog_stop", "faults_detected", w.faultCount.Load())
}

// IsRunning reports whether the monitoring loop is active.
func (w *Watchdog) IsRunning() bool {
	return w.running.Load()
}

func (w *Watchdog) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.checkPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce()
		}
	}
}

func (w *Watchdog) checkOnce() {
	w.mu.Lock()
	var timedOut []struct {
		name    string
		elapsed time.Duration
	}
	now := time.Now()
	for name, info := range w.tasks {
		if !info.everReported {
			continue
		}
		elapsed := now.Sub(info.lastHeartbeat)
		if elapsed > info.timeout {
			info.consecutiveFailures++
			info.lastHeartbeat = now
			timedOut = append(timedOut, struct {
				name    string
				elapsed time.Duration
			}{name, elapsed})
		}
	}
	w.mu.Unlock()

	for _, t := range timedOut {
		w.faultCount.Add(1)

		w.handlerMu.Lock()
		h := w.handler
		w.handlerMu.Unlock()

		if h != nil {
			h(t.name, t.elapsed)
		}
	}
}

func (w *Watchdog) defaultFaultHandler(task string, elapsed time.Duration) {
	log.Log(context.Background(), obslog.LevelCrit, "", "event", "watchdog_fault", "task", task,
		"elapsed_ms", elapsed.Milliseconds(), "total_faults", w.faultCount.Load())
}
