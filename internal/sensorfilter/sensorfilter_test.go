package sensorfilter

import (
	"context"
	"testing"
	"time"

	"github.com/joaoigorandrade/ATR/internal/ringbuffer"
	"github.com/joaoigorandrade/ATR/internal/types"
)

func TestMovingAverageWindowCapsAtOrder(t *testing.T) {
	var history []int
	for _, v := range []int{10, 20, 30, 40} {
		movingAverage(v, &history, 3)
	}
	// Window should hold the last 3 values: 20, 30, 40 -> avg 30.
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	got := movingAverage(50, &history, 3)
	// After pushing 50, window is 30,40,50 -> avg 40.
	if got != 40 {
		t.Errorf("moving average = %d, want 40", got)
	}
}

func TestTickWritesFilteredSampleToBuffer(t *testing.T) {
	buf := ringbuffer.New()
	f := New(5, 10*time.Millisecond, buf, nil, nil)
	f.SetRawSample(types.RawSensorSample{PositionX: 100, PositionY: 200, Heading: 90, Temperature: 25})

	f.tick()

	sample, ok := buf.PeekLatest()
	if !ok {
		t.Fatal("expected a sample to have been written")
	}
	if sample.PositionX != 100 || sample.PositionY != 200 || sample.Heading != 90 || sample.Temperature != 25 {
		t.Errorf("unexpected filtered sample: %+v", sample)
	}
}

func TestStartAndStopRunLoop(t *testing.T) {
	buf := ringbuffer.New()
	f := New(5, 5*time.Millisecond, buf, nil, nil)
	f.SetRawSample(types.RawSensorSample{PositionX: 1, Temperature: 20})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.Start(ctx)
	time.Sleep(40 * time.Millisecond)
	f.Stop()

	if buf.IsEmpty() {
		t.Error("expected at least one sample to have been written during the run")
	}
}
