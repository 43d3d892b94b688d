//go:build linux

package vmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Resize uses mremap(2), which grows in place when the following pages are
// free and otherwise moves the mapping if mayMove is set.
func (MMap) Resize(addr unsafe.Pointer, oldLength, newLength uintptr, mayMove bool) (unsafe.Pointer, error) {
	if addr == nil {
		return nil, fmt.Errorf("%w: nil address", ErrResize)
	}
	if err := checkLength(oldLength); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResize, err)
	}
	if err := checkLength(newLength); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResize, err)
	}
	flags := 0
	if mayMove {
		flags = unix.MREMAP_MAYMOVE
	}
	data, err := unix.Mremap(region(addr, oldLength), int(newLength), flags)
	if err != nil {
		return nil, fmt.Errorf("%w (%d -> %d bytes): %w", ErrResize, oldLength, newLength, err)
	}
	return unsafe.Pointer(unsafe.SliceData(data)), nil
}
