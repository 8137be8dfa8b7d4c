package lockset

import (
	"sync"
	"testing"
)

func TestAcquireLocksAllAndUnlockReleasesAll(t *testing.T) {
	var a, b, c sync.Mutex

	unlock := Acquire(&a, &b, &c)

	if a.TryLock() || b.TryLock() || c.TryLock() {
		t.Fatal("locks should still be held")
	}

	unlock()

	if !a.TryLock() || !b.TryLock() || !c.TryLock() {
		t.Fatal("locks should be released after unlock")
	}
	a.Unlock()
	b.Unlock()
	c.Unlock()
}

func TestTryAcquireSucceedsWhenAllFree(t *testing.T) {
	var a, b sync.Mutex

	unlock, ok := TryAcquire(&a, &b)
	if !ok {
		t.Fatal("expected TryAcquire to succeed")
	}
	if a.TryLock() || b.TryLock() {
		t.Fatal("locks should be held")
	}
	unlock()
}

func TestTryAcquireFailsAndReleasesPartialHolds(t *testing.T) {
	var a, b sync.Mutex
	b.Lock() // simulate another goroutine already holding b

	_, ok := TryAcquire(&a, &b)
	if ok {
		t.Fatal("expected TryAcquire to fail when b is already held")
	}
	if !a.TryLock() {
		t.Fatal("a should have been released after the failed acquire")
	}
	a.Unlock()
	b.Unlock()
}
