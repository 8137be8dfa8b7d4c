// Package lockset implements the rank-ordered multi-lock acquisition
// primitive described in SPEC_FULL.md §5. Its one call site in the core is
// the Fault Detector's tick, which holds its fault-state and callback-list
// locks together; any call site that takes several locks must always acquire
// them in the same global order to avoid deadlock. The teacher repo
// never needed more than one lock at a time per call site (its bus and
// health-check mutexes are always acquired alone), so this package has no
// direct teacher analogue; it generalizes the "always take locks in a fixed
// order" convention visible throughout orion.go's lifecycle guards into an
// explicit, reusable helper.
package lockset

import "sync"

// Acquire locks every element of locks in the given order and returns an
// unlock function that releases them in reverse. Callers are expected to
// pass the SAME slice order at every call site for a given set of locks, so
// the rank is fixed by construction rather than computed at runtime; this
// package only enforces the acquire/release discipline, not the ranking
// itself.
//
//	unlock := lockset.Acquire(&d.faultMu, &d.callbackMu)
//	defer unlock()
func Acquire(locks ...sync.Locker) func() {
	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// TryAcquire attempts to lock every element of locks in order using the
// TryLocker interface, backing off and releasing anything already held the
// moment one lock is unavailable. It reports whether all locks were
// acquired; on failure no lock is left held.
type TryLocker interface {
	sync.Locker
	TryLock() bool
}

func TryAcquire(locks ...TryLocker) (func(), bool) {
	held := make([]TryLocker, 0, len(locks))
	for _, l := range locks {
		if !l.TryLock() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].Unlock()
			}
			return nil, false
		}
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}, true
}
