/*
Package malloc is the C-shaped face of the tcheap allocator: four functions
over one process-wide heap, with nil and -1 standing in for errors.

# Quick Start

	p := malloc.Malloc(64)
	if p == nil {
	    // out of memory, or a zero-size request
	}
	defer malloc.Free(p)

# Functions

  - Malloc(size) returns a 16-byte aligned pointer, or nil for size 0 and
    when the operating system refuses memory.
  - Free(p) returns 0, or -1 for nil, a double free, or a pointer this
    allocator did not hand out. A rejected free changes nothing.
  - Calloc(n, size) is Malloc(n*size) with the memory zeroed, or nil if
    either operand is 0 or the product overflows.
  - Realloc(p, size) behaves as Malloc for a nil p and as Free for size 0.
    When the existing cell has room it returns p unchanged. On failure it
    returns nil and p stays valid.

Memory comes from anonymous mappings, never from the Go heap, so the
garbage collector neither scans nor moves it. Pointers into it must not be
used to hold the only reference to a Go object.

# Thread Safety

Every function is safe for concurrent use. Each call borrows a per-P cache
from the shared heap, so the common case takes no lock.

# Related Packages

  - github.com/joshuapare/tcheap/heap: the engine, with explicit caches,
    error values, statistics and verification
*/
package malloc
