// Package ringbuffer implements the fixed-capacity, overwrite-on-full
// sample buffer that the Sensor Filter task publishes into and every other
// task reads from, per SPEC_FULL.md §4.1. It is grounded on two sources:
// circular_buffer.cpp's fixed 200-slot array with read/write indices and
// is_empty/is_full/size accessors, and framebus's internal latestFrameHolder,
// whose sync.Cond-based Receive/TryReceive pair is the idiomatic Go shape for
// "blocking read of the newest value, non-blocking peek of the newest
// value", the DropOld policy this core needs since a write must never block
// a producer waiting on a full reader.
package ringbuffer

import (
	"sync"

	"github.com/joaoigorandrade/ATR/internal/types"
)

// Capacity matches circular_buffer.h's BUFFER_SIZE.
const Capacity = 200

// Buffer is a thread-safe, fixed-size ring of FilteredSensorSample values.
// Write never blocks: once full, the oldest sample is silently dropped to
// make room for the newest, mirroring CircularBuffer::write's overwrite
// branch.
type Buffer struct {
	mu    sync.Mutex
	cond  *sync.Cond
	data   [Capacity]types.FilteredSensorSample
	read   int
	write  int
	count  int
	closed bool

	overwrites int64
}

// New constructs an empty buffer.
func New() *Buffer {
	b := &Buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends sample, overwriting the oldest entry if the buffer is full.
// It reports whether an overwrite occurred, so the caller can rate-limit a
// warning log the way CircularBuffer::write does every 100th overwrite.
func (b *Buffer) Write(sample types.FilteredSensorSample) (overwrote bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == Capacity {
		b.read = (b.read + 1) % Capacity
		b.count--
		b.overwrites++
		overwrote = true
	}

	b.data[b.write] = sample
	b.write = (b.write + 1) % Capacity
	b.count++

	b.cond.Broadcast()
	return overwrote
}

// Read blocks until at least one sample is available, then removes and
// returns the oldest one (FIFO), matching CircularBuffer::read.
func (b *Buffer) Read() types.FilteredSensorSample {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		return types.FilteredSensorSample{}
	}

	sample := b.data[b.read]
	b.read = (b.read + 1) % Capacity
	b.count--
	return sample
}

// PeekLatest returns the most recently written sample without consuming it.
// ok is false while the buffer is empty (never written to, or drained by
// Read).
func (b *Buffer) PeekLatest() (sample types.FilteredSensorSample, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return types.FilteredSensorSample{}, false
	}
	latest := b.write - 1
	if latest < 0 {
		latest = Capacity - 1
	}
	return b.data[latest], true
}

// Size reports the current occupancy.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// IsEmpty reports whether the buffer holds no samples.
func (b *Buffer) IsEmpty() bool {
	return b.Size() == 0
}

// IsFull reports whether the buffer is at capacity.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count == Capacity
}

// Overwrites reports the lifetime count of dropped-oldest events, for the
// Performance Monitor / debug endpoint to surface.
func (b *Buffer) Overwrites() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overwrites
}

// Close unblocks any goroutine waiting in Read, which then observes an
// empty buffer and returns a zero sample. It lets a shutdown sequence
// release a consumer blocked in Read; the coordinator's own shutdown does not
// call it, since no periodic task uses Read. The idea mirrors the teacher's ordered-shutdown comment in orion.go
// ("order is important!") applied to this buffer's own readers.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
