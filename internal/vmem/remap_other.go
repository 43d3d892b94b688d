//go:build unix && !linux

package vmem

import (
	"fmt"
	"unsafe"
)

// Resize always moves, since only Linux has mremap(2). The mapping table in
// x/sys is keyed by the exact region, so even a same-page resize gets a new
// reservation of the new length.
func (m MMap) Resize(addr unsafe.Pointer, oldLength, newLength uintptr, mayMove bool) (unsafe.Pointer, error) {
	if addr == nil {
		return nil, fmt.Errorf("%w: nil address", ErrResize)
	}
	if err := checkLength(oldLength); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResize, err)
	}
	if err := checkLength(newLength); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResize, err)
	}
	if newLength == oldLength {
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
