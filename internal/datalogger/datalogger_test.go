package datalogger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/types"
)

func TestStartWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	buf := ringbuffer.New()
	l := New(dir, 7, 10*time.Millisecond, buf, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	l.Stop()

	contents, err := os.ReadFile(filepath.Join(dir, "truck_7_log.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	if lines[0] != "Timestamp,TruckID,State,PositionX,PositionY,Description" {
		t.Errorf("header = %q", lines[0])
	}
}

func TestRestartDoesNotDuplicateHeader(t *testing.T) {
	dir := t.TempDir()
	buf := ringbuffer.New()

	l1 := New(dir, 3, 10*time.Millisecond, buf, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := l1.Start(ctx); err != nil {
		t.Fatal(err)
	}
	l1.LogEvent("MANUAL", 1, 2, "first run")
	l1.Stop()
	cancel()

	l2 := New(dir, 3, 10*time.Millisecond, buf, nil, nil)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	if err := l2.Start(ctx2); err != nil {
		t.Fatal(err)
	}
	l2.LogEvent("AUTO", 3, 4, "second run")
	l2.Stop()

	contents, err := os.ReadFile(filepath.Join(dir, "truck_3_log.csv"))
	if err != nil {
		t.Fatal(err)
	}
	headerCount := strings.Count(string(contents), "Timestamp,TruckID,State")
	if headerCount != 1 {
		t.Errorf("header appears %d times, want 1", headerCount)
	}
}

func TestLogEventWritesRow(t *testing.T) {
	dir := t.TempDir()
	buf := ringbuffer.New()
	l := New(dir, 1, time.Second, buf, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	l.LogEvent("FAULT", 10, 20, "electrical fault detected")
	l.Stop()

	contents, _ := os.ReadFile(filepath.Join(dir, "truck_1_log.csv"))
	if !strings.Contains(string(contents), ",FAULT,10,20,electrical fault detected") {
		t.Errorf("expected event row in file, got: %q", contents)
	}
}

func TestPeriodicTickWritesStatusRow(t *testing.T) {
	dir := t.TempDir()
	buf := ringbuffer.New()
	buf.Write(types.FilteredSensorSample{PositionX: 55, PositionY: 66})

	l := New(dir, 1, 5*time.Millisecond, buf, nil, nil)
	l.SetTruckState(types.TruckState{Automatic: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	l.Stop()

	contents, _ := os.ReadFile(filepath.Join(dir, "truck_1_log.csv"))
	if !strings.Contains(string(contents), ",AUTO,55,66,Periodic status update") {
		t.Errorf("expected periodic status row, got: %q", contents)
	}
}
