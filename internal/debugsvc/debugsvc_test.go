package debugsvc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joaoigorandrade/ATR/internal/perfmon"
	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/snapshot"
	"github.com/joaoigorandrade/ATR/internal/types"
	"github.com/joaoigorandrade/ATR/internal/watchdog"
)

func TestHealthReportsRunningTrue(t *testing.T) {
	wd := watchdog.New(10 * time.Millisecond)
	s := New("0", func() bool { return true }, wd, nil, nil)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Running {
		t.Error("expected running=true")
	}
}

func TestHealthReportsUnavailableWhenNotRunning(t *testing.T) {
	s := New("0", func() bool { return false }, nil, nil, nil)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestStatsReturnsPerformanceReport(t *testing.T) {
	perf := perfmon.New()
	perf.Register("Navigation", 10)
	start := perf.Start()
	perf.End("Navigation", start)

	s := New("0", func() bool { return true }, nil, perf, nil)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Report == "" {
		t.Error("expected a non-empty report")
	}
}

func TestStatusReturnsLatestSnapshot(t *testing.T) {
	buf := ringbuffer.New()
	buf.Write(types.FilteredSensorSample{PositionX: 7, PositionY: 8})
	snap := snapshot.New(5*time.Millisecond, buf, nil, nil)
	snap.SetTruckState(types.TruckState{Automatic: true})

	s := New("0", func() bool { return true }, nil, nil, snap)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	// Exercise the handler without running the periodic loop.
	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body snapshot.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Sample.PositionX != 0 {
		t.Errorf("expected zero-value snapshot before any tick has run, got %+v", body)
	}
}
