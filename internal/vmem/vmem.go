// Package vmem reserves, releases and resizes raw anonymous memory regions.
//
// The heap package never touches the operating system directly; every arena
// and every large object goes through a Provider. MMap is the production
// implementation. Tests substitute recording or failing providers.
package vmem

import (
	"errors"
	"unsafe"
)

var (
	// ErrReserve indicates that a new region could not be reserved.
	ErrReserve = errors.New("vmem: reserve failed")

	// ErrRelease indicates that a region could not be released.
	ErrRelease = errors.New("vmem: release failed")

	// ErrResize indicates that a region could not be resized in place or moved.
	ErrResize = errors.New("vmem: resize failed")

	// ErrBadLength indicates a zero length or a length that does not fit an int.
	ErrBadLength = errors.New("vmem: bad region length")
)

// Provider is the contract between the allocator and the virtual memory
// system.
type Provider interface {
	// Reserve returns a zero-initialized, readable and writable region of at
	// least length bytes.
	Reserve(length uintptr) (unsafe.Pointer, error)

	// Release unmaps exactly the region previously reserved at addr with the
	// given length.
	Release(addr unsafe.Pointer, length uintptr) error

	// Resize grows or shrinks the region at addr. If mayMove is set and the
	// region cannot be resized in place it is relocated; the bytes in
	// [0, min(oldLength, newLength)) are preserved across the move.
	Resize(addr unsafe.Pointer, oldLength, newLength uintptr, mayMove bool) (unsafe.Pointer, error)
}

// PageSize is the granularity regions are rounded to by the kernel.
const PageSize = 4096

// maxLength is the largest length that still converts to a non-negative int.
const maxLength = uintptr(^uint(0) >> 1)

func checkLength(length uintptr) error {
	if length == 0 || length > maxLength {
		return ErrBadLength
	}
	return nil
}

// region views length bytes at addr as a slice whose len and cap both equal
// length, the shape the mapping tables in x/sys expect.
func region(addr unsafe.Pointer, length uintptr) []byte {
	return unsafe.Slice((*byte)(addr), int(length))
}

// moveResize relocates a region by reserving a new one, copying the
// overlapping prefix and releasing the old one. Used where the kernel has no
// remap primitive.
func moveResize(p Provider, addr unsafe.Pointer, oldLength, newLength uintptr) (unsafe.Pointer, error) {
	dst, err := p.Reserve(newLength)
	if err != nil {
		return nil, err
	}
	copy(region(dst, newLength), region(addr, min(oldLength, newLength)))
	if err := p.Release(addr, oldLength); err != nil {
		_ = p.Release(dst, newLength)
		return nil, err
	}
	return dst, nil
}
