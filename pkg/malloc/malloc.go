package malloc

import (
	"sync"
	"unsafe"

	"github.com/joshuapare/tcheap/heap"
)

// Default returns the process-wide heap behind this package. It is built on
// first use with default options.
var Default = sync.OnceValue(func() *heap.Heap {
	return heap.New(heap.Options{})
})

// Malloc allocates size bytes. It returns nil for size 0 or when memory
// cannot be reserved.
func Malloc(size uintptr) unsafe.Pointer {
	p, err := Default().Alloc(size)
	if err != nil {
		return nil
	}
	return p
}

// Free releases p. It returns 0 on success and -1 if p is nil or not a live
// allocation.
func Free(p unsafe.Pointer) int {
	if err := Default().Free(p); err != nil {
		return -1
	}
	return 0
}

// Calloc allocates zeroed memory for n elements of size bytes each.
func Calloc(n, size uintptr) unsafe.Pointer {
	p, err := Default().Calloc(n, size)
	if err != nil {
		return nil
	}
	return p
}

// Realloc resizes p to size bytes and returns the possibly moved pointer.
// Realloc(nil, size) is Malloc(size); Realloc(p, 0) frees p and returns nil.
func Realloc(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	q, err := Default().Realloc(p, size)
	if err != nil {
		return nil
	}
	return q
}

// UsableSize reports how many bytes p can hold, or 0 if p is not a live
// allocation.
func UsableSize(p unsafe.Pointer) uintptr {
	return Default().SizeOf(p)
}
