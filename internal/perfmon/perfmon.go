// Package perfmon tracks per-task execution time statistics and deadline
// compliance, per SPEC_FULL.md §4.8. It is grounded directly on
// performance_monitor.cpp: register/start/end-measurement, the incremental
// running-mean formula, a 100-sample rolling window for standard deviation,
// deadline-violation counting with worst-overrun tracking, and the 80%
// utilization warning. Logging style (module-tagged key=value lines)
// follows the teacher's slog usage via internal/obslog.
package perfmon

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joaoigorandrade/ATR/internal/obslog"
	"github.com/joaoigorandrade/ATR/internal/types"
)

const windowSize = 100

var log = obslog.For("MA")

type taskStats struct {
	periodMS           int
	lastExecUS         int64
	minExecUS          int64
	maxExecUS          int64
	meanExecUS         float64
	sampleCount        int64
	recent             []int64
	stdDevExecUS       float64
	deadlineViolations int64
	worstOverrunUS     int64
}

// Monitor is the process-wide table of per-task performance statistics.
type Monitor struct {
	mu    sync.Mutex
	tasks map[string]*taskStats
}

// New constructs an empty monitor.
func New() *Monitor {
	return &Monitor{tasks: make(map[string]*taskStats)}
}

// Register declares a task's expected period before it is first measured.
// Calling it again resets that task's statistics and sets its period to the
// new periodMS, matching reset_stats.
func (m *Monitor) Register(taskName string, periodMS int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[taskName] = &taskStats{periodMS: periodMS}
	log.Info("", "task", taskName, "period_ms", periodMS, "event", "perf_registered")
}

// Start returns the current time; pair it with End to measure a task's
// execution time for one period.
func (m *Monitor) Start() time.Time {
	return time.Now()
}

// End records the elapsed time since start for taskName, auto-registering
// the task with a zero period (no deadline checking) if it was never
// registered, matching end_measurement's auto_register_perf fallback.
func (m *Monitor) End(taskName string, start time.Time) {
	execUS := time.Since(start).Microseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.tasks[taskName]
	if !ok {
		log.Warn("", "task", taskName, "event", "auto_register_perf")
		stats = &taskStats{}
		m.tasks[taskName] = stats
	}

	updateStatistics(stats, execUS)

	deadlineUS := int64(stats.periodMS) * 1000
	if deadlineUS > 0 && execUS > deadlineUS {
		stats.deadlineViolations++
		overrun := execUS - deadlineUS
		if overrun > stats.worstOverrunUS {
			stats.worstOverrunUS = overrun
		}
		log.Warn("", "task", taskName, "exec_us", execUS, "deadline_us", deadlineUS,
			"overrun_us", overrun, "event", "deadline_miss")
	}

	if deadlineUS > 0 && float64(execUS) > float64(deadlineUS)*0.8 {
		log.Warn("", "task", taskName, "exec_us", execUS, "deadline_us", deadlineUS,
			"utilization_pct", 100.0*float64(execUS)/float64(deadlineUS), "event", "high_utilization")
	}
}

func updateStatistics(s *taskStats, execUS int64) {
	s.lastExecUS = execUS
	s.sampleCount++

	if s.sampleCount == 1 || execUS < s.minExecUS {
		s.minExecUS = execUS
	}
	if execUS > s.maxExecUS {
		s.maxExecUS = execUS
	}

	s.recent = append(s.recent, execUS)
	if len(s.recent) > windowSize {
		s.recent = s.recent[1:]
	}

	delta := float64(execUS) - s.meanExecUS
	s.meanExecUS += delta / float64(s.sampleCount)

	if len(s.recent) >= 2 {
		s.stdDevExecUS = stdDev(s.recent, s.meanExecUS)
	}
}

func stdDev(samples []int64, mean float64) float64 {
	var sumSq float64
	for _, v := range samples {
		diff := float64(v) - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// Stats returns a snapshot of one task's statistics. ok is false if the
// task was never registered or measured.
func (m *Monitor) Stats(taskName string) (types.TaskStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.tasks[taskName]
	if !ok {
		return types.TaskStats{}, false
	}
	return toTypesStats(taskName, s), true
}

// AllStats returns a snapshot of every registered task's statistics,
// ordered by task name for deterministic reporting.
func (m *Monitor) AllStats() []types.TaskStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.tasks))
	for name := range m.tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]types.TaskStats, 0, len(names))
	for _, name := range names {
		out = append(out, toTypesStats(name, m.tasks[name]))
	}
	return out
}

func toTypesStats(name string, s *taskStats) types.TaskStats {
	return types.TaskStats{
		TaskName:           name,
		PeriodMS:           s.periodMS,
		LastExecUS:         s.lastExecUS,
		MinExecUS:          s.minExecUS,
		MaxExecUS:          s.maxExecUS,
		MeanExecUS:         s.meanExecUS,
		StdDevExecUS:       s.stdDevExecUS,
		SampleCount:        s.sampleCount,
		DeadlineViolations: s.deadlineViolations,
		WorstOverrunUS:     s.worstOverrunUS,
	}
}

// HasDeadlineViolations reports whether any registered task has ever missed
// its deadline.
func (m *Monitor) HasDeadlineViolations() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.tasks {
		if s.deadlineViolations > 0 {
			return true
		}
	}
	return false
}

// Report renders the fixed-width table get_report_string produces, for the
// CLI to print at shutdown and the debug endpoint to serve at /stats.
func (m *Monitor) Report() string {
	all := m.AllStats()

	var b strings.Builder
	b.WriteString("\n========================================\n")
	b.WriteString("    TASK PERFORMANCE REPORT\n")
	b.WriteString("========================================\n\n")

	if len(all) == 0 {
		b.WriteString("No performance data available.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-20s%-10s%-12s%-12s%-12s%-12s%-12s%-10s%-10s\n",
		"Task", "Period", "Current", "Min", "Avg", "Max", "Std Dev", "Util%", "Violations")
	b.WriteString(strings.Repeat("-", 110) + "\n")

	var totalViolations int64
	for _, s := range all {
		util := 0.0
		if s.PeriodMS > 0 {
			util = 100.0 * s.MeanExecUS / (float64(s.PeriodMS) * 1000.0)
		}
		minStr := "-"
		if s.SampleCount > 0 {
			minStr = fmt.Sprintf("%dus", s.MinExecUS)
		}
		fmt.Fprintf(&b, "%-20s%-10s%-12s%-12s%-12s%-12s%-12s%-10.1f%-10d\n",
			s.TaskName,
			fmt.Sprintf("%dms", s.PeriodMS),
			fmt.Sprintf("%dus", s.LastExecUS),
			minStr,
			fmt.Sprintf("%dus", int64(s.MeanExecUS)),
			fmt.Sprintf("%dus", s.MaxExecUS),
			fmt.Sprintf("%dus", int64(s.StdDevExecUS)),
			util,
			s.DeadlineViolations,
		)
		totalViolations += s.DeadlineViolations
	}
	b.WriteString(strings.Repeat("-", 110) + "\n")

	fmt.Fprintf(&b, "\nSummary:\n  Total Tasks: %d\n  Total Deadline Violations: %d\n", len(all), totalViolations)
	if totalViolations > 0 {
		b.WriteString("  WARNING: Deadline violations detected!\n")
	} else {
		b.WriteString("  All tasks meeting deadlines\n")
	}
	b.WriteString("========================================\n")

	return b.String()
}
