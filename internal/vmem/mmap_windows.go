//go:build windows

package vmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// MMap reserves committed private pages with VirtualAlloc. The zero value is
// ready to use.
type MMap struct{}

// Reserve commits length bytes of zeroed memory.
func (MMap) Reserve(length uintptr) (unsafe.Pointer, error) {
	if err := checkLength(length); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReserve, err)
	}
	addr, err := windows.VirtualAlloc(0, length, windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("%w (%d bytes): %w", ErrReserve, length, err)
	}
	return addrPointer(addr), nil
}

// Release frees the whole region at addr. VirtualFree releases by base
// address, so length is only validated.
func (MMap) Release(addr unsafe.Pointer, length uintptr) error {
	if addr == nil {
		return fmt.Errorf("%w: nil address", ErrRelease)
	}
	if err := checkLength(length); err != nil {
		return fmt.Errorf("%w: %w", ErrRelease, err)
	}
	if err := windows.VirtualFree(uintptr(addr), 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("%w (%d bytes at %p): %w", ErrRelease, length, addr, err)
	}
	return nil
}

// Resize always moves; Windows has no remap for private memory.
func (m MMap) Resize(addr unsafe.Pointer, oldLength, newLength uintptr, mayMove bool) (unsafe.Pointer, error) {
	if addr == nil {
		return nil, fmt.Errorf("%w: nil address", ErrResize)
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

// addrPointer turns an address returned by VirtualAlloc into a pointer. The
// memory is outside the Go heap, so the garbage collector never moves it.
func addrPointer(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}
