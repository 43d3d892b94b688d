//go:build unix

package vmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MMap reserves private anonymous mappings. The zero value is ready to use.
type MMap struct{}

// Reserve maps length bytes of zeroed, private, anonymous memory.
func (MMap) Reserve(length uintptr) (unsafe.Pointer, error) {
	if err := checkLength(length); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReserve, err)
	}
	data, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w (%d bytes): %w", ErrReserve, length, err)
	}
	return unsafe.Pointer(unsafe.SliceData(data)), nil
}

// Release unmaps the region at addr. The length must match the reservation.
func (MMap) Release(addr unsafe.Pointer, length uintptr) error {
	if addr == nil {
		return fmt.Errorf("%w: nil address", ErrRelease)
	}
	if err := checkLength(length); err != nil {
		return fmt.Errorf("%w: %w", ErrRelease, err)
	}
	if err := unix.Munmap(region(addr, length)); err != nil {
		return fmt.Errorf("%w (%d bytes at %p): %w", ErrRelease, length, addr, err)
	}
	return nil
}
