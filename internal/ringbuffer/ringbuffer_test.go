package ringbuffer

import (
	"testing"
	"time"

	"github.com/joaoigorandrade/ATR/internal/types"
)

func sample(x int) types.FilteredSensorSample {
	return types.FilteredSensorSample{PositionX: x}
}

func TestWriteThenReadIsFIFO(t *testing.T) {
	b := New()
	b.Write(sample(1))
	b.Write(sample(2))
	b.Write(sample(3))

	if got := b.Read().PositionX; got != 1 {
		t.Errorf("first read = %d, want 1", got)
	}
	if got := b.Read().PositionX; got != 2 {
		t.Errorf("second read = %d, want 2", got)
	}
	if b.Size() != 1 {
		t.Errorf("size = %d, want 1", b.Size())
	}
}

func TestPeekLatestDoesNotConsume(t *testing.T) {
	b := New()
	if _, ok := b.PeekLatest(); ok {
		t.Fatal("expected ok=false on empty buffer")
	}

	b.Write(sample(1))
	b.Write(sample(2))

	peeked, ok := b.PeekLatest()
	if !ok || peeked.PositionX != 2 {
		t.Errorf("PeekLatest = %+v, %v, want PositionX=2, true", peeked, ok)
	}
	if b.Size() != 2 {
		t.Errorf("peek should not consume, size = %d", b.Size())
	}
}

func TestWriteOverwritesOldestWhenFull(t *testing.T) {
	b := New()
	for i := 0; i < Capacity; i++ {
		b.Write(sample(i))
	}
	if b.IsFull() != true {
		t.Fatal("expected buffer to be full")
	}

	overwrote := b.Write(sample(9999))
	if !overwrote {
		t.Error("expected Write to report an overwrite")
	}
	if b.Overwrites() != 1 {
		t.Errorf("overwrites = %d, want 1", b.Overwrites())
	}

	// The oldest sample (index 0) should have been dropped; the new
	// oldest is index 1.
	if got := b.Read().PositionX; got != 1 {
		t.Errorf("oldest after overwrite = %d, want 1", got)
	}
}

func TestReadBlocksUntilWrite(t *testing.T) {
	b := New()
	done := make(chan types.FilteredSensorSample, 1)
	go func() {
		done <- b.Read()
	}()

	select {
	case <-done:
		t.Fatal("Read returned before any Write")
	case <-time.After(20 * time.Millisecond):
	}

	b.Write(sample(42))

	select {
	case got := <-done:
		if got.PositionX != 42 {
			t.Errorf("Read() = %d, want 42", got.PositionX)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Write")
	}
}

func TestCloseUnblocksRead(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		b.Read()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock a pending Read")
	}
}

func TestIsEmptyAndIsFull(t *testing.T) {
	b := New()
	if !b.IsEmpty() {
		t.Error("new buffer should be empty")
	}
	b.Write(sample(1))
	if b.IsEmpty() {
		t.Error("buffer with one sample should not be empty")
	}
	if b.IsFull() {
		t.Error("buffer with one sample should not be full")
	}
}
