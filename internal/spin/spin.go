// Package spin provides a busy-wait mutual exclusion lock for very short
// critical sections.
//
// A Lock never parks the goroutine: Lock loops on an atomic exchange and
// yields the processor between attempts. There is no fairness and no
// reentrancy. Hold it only across bounded work, never across a system call.
package spin

import (
	"runtime"
	"sync/atomic"
)

// Lock is a test-and-set spinlock. The zero value is unlocked.
type Lock struct {
	state atomic.Uint32
}

// Lock acquires l, spinning until the previous holder releases it.
func (l *Lock) Lock() {
	for l.state.Swap(1) != 0 {
		runtime.Gosched()
	}
}

// TryLock acquires l if it is free and reports whether it did.
func (l *Lock) TryLock() bool {
	return l.state.Swap(1) == 0
}

// Unlock releases l. Unlocking an unlocked Lock is a no-op.
func (l *Lock) Unlock() {
	l.state.Store(0)
}

// Locked reports whether l is currently held. Only meaningful for
// diagnostics; the answer may be stale by the time it is read.
func (l *Lock) Locked() bool {
	return l.state.Load() != 0
}
