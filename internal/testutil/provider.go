// Package testutil holds shared test doubles for the allocator packages.
package testutil

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/joshuapare/tcheap/internal/vmem"
)

// ErrInjected is returned by FailingProvider once its budget is spent.
var ErrInjected = errors.New("testutil: injected provider failure")

// RecordingProvider wraps a real provider and records every call so tests
// can assert on what the heap asked of the operating system.
type RecordingProvider struct {
	Inner vmem.Provider

	mu       sync.Mutex
	live     map[uintptr]uintptr // addr -> length
	reserves []uintptr
	releases []uintptr
	resizes  int
}

// NewRecordingProvider wraps vmem.MMap.
func NewRecordingProvider() *RecordingProvider {
	return &RecordingProvider{Inner: vmem.MMap{}, live: make(map[uintptr]uintptr)}
}

// Reserve implements vmem.Provider.
func (r *RecordingProvider) Reserve(length uintptr) (unsafe.Pointer, error) {
	p, err := r.Inner.Reserve(length)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.live[uintptr(p)] = length
	r.reserves = append(r.reserves, length)
	r.mu.Unlock()
	return p, nil
}

// Release implements vmem.Provider.
func (r *RecordingProvider) Release(addr unsafe.Pointer, length uintptr) error {
	if err := r.Inner.Release(addr, length); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.live, uintptr(addr))
	r.releases = append(r.releases, length)
	r.mu.Unlock()
	return nil
}

// Resize implements vmem.Provider.
func (r *RecordingProvider) Resize(addr unsafe.Pointer, oldLength, newLength uintptr, mayMove bool) (unsafe.Pointer, error) {
	p, err := r.Inner.Resize(addr, oldLength, newLength, mayMove)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	delete(r.live, uintptr(addr))
	r.live[uintptr(p)] = newLength
	r.resizes++
	r.mu.Unlock()
	return p, nil
}

// Reserves returns the lengths of every successful Reserve call in order.
func (r *RecordingProvider) Reserves() []uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uintptr(nil), r.reserves...)
}

// Releases returns the lengths of every successful Release call in order.
func (r *RecordingProvider) Releases() []uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uintptr(nil), r.releases...)
}

// Resizes returns the number of successful Resize calls.
func (r *RecordingProvider) Resizes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resizes
}

// Live reports whether a region starting at addr is currently reserved and
// its length.
func (r *RecordingProvider) Live(addr unsafe.Pointer) (uintptr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.live[uintptr(addr)]
	return n, ok
}

// LiveCount returns the number of regions currently reserved.
func (r *RecordingProvider) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// FailingProvider lets Budget reservations and resizes through and fails
// every one after that with ErrInjected.
type FailingProvider struct {
	Inner  vmem.Provider
	Budget int

	mu sync.Mutex
}

// NewFailingProvider wraps vmem.MMap with the given budget.
func NewFailingProvider(budget int) *FailingProvider {
	return &FailingProvider{Inner: vmem.MMap{}, Budget: budget}
}

func (f *FailingProvider) spend() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Budget <= 0 {
		return false
	}
	f.Budget--
	return true
}

// Reserve implements vmem.Provider.
func (f *FailingProvider) Reserve(length uintptr) (unsafe.Pointer, error) {
	if !f.spend() {
		return nil, ErrInjected
	}
	return f.Inner.Reserve(length)
}

// Release implements vmem.Provider.
func (f *FailingProvider) Release(addr unsafe.Pointer, length uintptr) error {
	return f.Inner.Release(addr, length)
}

// Resize implements vmem.Provider.
func (f *FailingProvider) Resize(addr unsafe.Pointer, oldLength, newLength uintptr, mayMove bool) (unsafe.Pointer, error) {
	if !f.spend() {
		return nil, ErrInjected
	}
	return f.Inner.Resize(addr, oldLength, newLength, mayMove)
}
