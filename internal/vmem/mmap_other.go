//go:build !unix && !windows

package vmem

import (
	"fmt"
	"sync"
	"unsafe"
)

// MMap falls back to pinned Go heap slices on platforms with neither mmap nor
// VirtualAlloc (js, wasip1, plan9). Regions stay reachable through the live
// table until released. None of these platforms supports the race detector,
// so checkptr never inspects links stored in them.
type MMap struct{}

var live = struct {
	sync.Mutex
	regions map[unsafe.Pointer][]byte
}{regions: make(map[unsafe.Pointer][]byte)}

// Reserve allocates length zeroed bytes and pins them.
func (MMap) Reserve(length uintptr) (unsafe.Pointer, error) {
	if err := checkLength(length); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReserve, err)
	}
	// Over-allocate by a page so the region can start page aligned, as a
	// kernel mapping would.
	data := make([]byte, (length+PageSize-1)&^(PageSize-1)+PageSize)
	base := unsafe.Pointer(unsafe.SliceData(data))
	addr := unsafe.Add(base, (PageSize-uintptr(base)%PageSize)%PageSize)
	live.Lock()
	live.regions[addr] = data
	live.Unlock()
	return addr, nil
}

// Release unpins the region at addr.
func (MMap) Release(addr unsafe.Pointer, length uintptr) error {
	live.Lock()
	defer live.Unlock()
	data, ok := live.regions[addr]
	if !ok || uintptr(len(data))-PageSize < length {
		return fmt.Errorf("%w (%d bytes at %p): unknown region", ErrRelease, length, addr)
	}
	delete(live.regions, addr)
	return nil
}

// Resize keeps the region when it already has room and otherwise moves it.
func (m MMap) Resize(addr unsafe.Pointer, oldLength, newLength uintptr, mayMove bool) (unsafe.Pointer, error) {
	if err := checkLength(newLength); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResize, err)
	}
	live.Lock()
	data, ok := live.regions[addr]
	live.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w (%d bytes at %p): unknown region", ErrResize, oldLength, addr)
	}
	if newLength <= uintptr(len(data))-PageSize {
		return addr, nil
	}
	if !mayMove {
		return nil, fmt.Errorf("%w (%d -> %d bytes): cannot resize in place", ErrResize, oldLength, newLength)
	}
	dst, err := moveResize(m, addr, oldLength, newLength)
	if err != nil {
		return nil, fmt.Errorf("%w (%d -> %d bytes): %w", ErrResize, oldLength, newLength, err)
	}
	return dst, nil
}
