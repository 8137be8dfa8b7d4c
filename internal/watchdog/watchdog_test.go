package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestHeartbeatBeforeTimeoutNeverFaults(t *testing.T) {
	w := New(10 * time.Millisecond)
	w.Register("Navigation", 50*time.Millisecond)

	var mu sync.Mutex
	faulted := false
	w.SetFaultHandler(func(task string, elapsed time.Duration) {
		mu.Lock()
		faulted = true
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	stop := time.After(120 * time.Millisecond)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ticker.C:
			w.Heartbeat("Navigation")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if faulted {
		t.Error("task heartbeating regularly should never fault")
	}
}

func TestNeverHeartbeatedTaskDoesNotFault(t *testing.T) {
	w := New(10 * time.Millisecond)
	w.Register("Snapshot", 20*time.Millisecond)

	var mu sync.Mutex
	faulted := false
	w.SetFaultHandler(func(task string, elapsed time.Duration) {
		mu.Lock()
		faulted = true
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if faulted {
		t.Error("a task that never heartbeats should be exempt (ever_reported gate)")
	}
}

func TestStoppedHeartbeatingTriggersFault(t *testing.T) {
	w := New(10 * time.Millisecond)
	w.Register("DataLogger", 30*time.Millisecond)
	w.Heartbeat("DataLogger")

	faultCh := make(chan string, 1)
	w.SetFaultHandler(func(task string, elapsed time.Duration) {
		select {
		case faultCh <- task:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case task := <-faultCh:
		if task != "DataLogger" {
			t.Errorf("faulted task = %q, want DataLogger", task)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a fault after the task stopped heartbeating")
	}

	if w.FaultCount() == 0 {
		t.Error("FaultCount should be > 0 after a detected fault")
	}
}

func TestStartIsIdempotentAndStopWaitsForLoopExit(t *testing.T) {
	w := New(10 * time.Millisecond)
	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx) // should be a no-op, not a second goroutine
	if !w.IsRunning() {
		t.Fatal("expected watchdog to be running")
	}
	w.Stop()
	if w.IsRunning() {
		t.Fatal("expected watchdog to be stopped")
	}
}

func TestRegisterAndUnregisterTrackTaskCount(t *testing.T) {
	w := New(time.Second)
	w.Register("A", time.Second)
	w.Register("B", time.Second)
	if w.TaskCount() != 2 {
		t.Errorf("task count = %d, want 2", w.TaskCount())
	}
	w.Unregister("A")
	if w.TaskCount() != 1 {
		t.Errorf("task count = %d, want 1", w.TaskCount())
	}
}
