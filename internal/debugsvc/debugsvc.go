// Package debugsvc implements the optional observability HTTP endpoint
// described in SPEC_FULL.md §4.14, grounded on the teacher's
// core.StartHealthServer/LivenessHandler/ReadinessHandler: a bare
// net/http.ServeMux started in a goroutine from main, never blocking
// startup, serving /health, /stats, and /status as JSON.
package debugsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/joaoigorandrade/ATR/internal/obslog"
	"github.com/joaoigorandrade/ATR/internal/perfmon"
	"github.com/joaoigorandrade/ATR/internal/snapshot"
	"github.com/joaoigorandrade/ATR/internal/watchdog"
)

var log = obslog.For("MA")

// healthResponse is the /health payload.
type healthResponse struct {
	Running        bool  `json:"running"`
	WatchdogFaults int64 `json:"watchdog_faults"`
	TaskCount      int   `json:"task_count"`
}

// statsResponse is the /stats payload.
type statsResponse struct {
	Report string `json:"report"`
}

// Service serves the debug HTTP endpoint over a configurable port.
type Service struct {
	server  *http.Server
	running func() bool
	wd      *watchdog.Watchdog
	perf    *perfmon.Monitor
	snap    *snapshot.Task
}

// New constructs a Service bound to ":port". running reports whether the
// Main Coordinator's run loop is currently active.
func New(port string, running func() bool, wd *watchdog.Watchdog, perf *perfmon.Monitor, snap *snapshot.Task) *Service {
	s := &Service{running: running, wd: wd, perf: perf, snap: snap}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/status", s.handleStatus)

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start launches the HTTP server in a background goroutine. It returns
// immediately; a failure to bind is logged, never fatal.
func (s *Service) Start() {
	log.Info("", "event", "start", "addr", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("", "event", "serve_err", "error", err.Error())
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Service) Stop(ctx context.Context) error {
	log.Info("", "event", "stop")
	return s.server.Shutdown(ctx)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := s.running()

	resp := healthResponse{Running: running}
	if s.wd != nil {
		resp.WatchdogFaults = s.wd.FaultCount()
		resp.TaskCount = s.wd.TaskCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if !running {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{}
	if s.perf != nil {
		resp.Report = s.perf.Report()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if s.snap == nil {
		json.NewEncoder(w).Encode(snapshot.Snapshot{})
		return
	}
	json.NewEncoder(w).Encode(s.snap.Latest())
}
