package heap

import (
	"fmt"
	"unsafe"
)

// Calloc allocates n*size bytes and zeroes the whole cell.
//
// Returns ErrZeroSize if either operand is 0 and ErrOverflow if the product
// does not fit a uintptr. Large objects are not cleared again: fresh
// mappings are already zero.
func (c *Cache) Calloc(n, size uintptr) (unsafe.Pointer, error) {
	if n == 0 || size == 0 {
		return nil, ErrZeroSize
	}
	total := n * size
	if total/size != n {
		return nil, fmt.Errorf("%w: %d * %d", ErrOverflow, n, size)
	}
	p, err := c.Alloc(total)
	if err != nil {
		return nil, err
	}
	cl := cellOf(p)
	if cl.size > MidMax {
		return p, nil
	}
	// Clear the aligned cell size, not total, so the tail past an
	// unaligned request is zero too.
	clear(unsafe.Slice((*uint64)(p), cl.size/8))
	return p, nil
}

// Realloc changes the size of the allocation at p.
//
// A nil p behaves like Alloc(size). A zero size frees p and returns nil. If
// the cell already has room for size, p is returned unchanged; cells never
// shrink in place. Otherwise a new cell is allocated, the old cell's bytes
// are copied and the old cell is freed. Large objects are resized through
// the provider and may move. On error p is still valid and unchanged.
func (c *Cache) Realloc(p unsafe.Pointer, size uintptr) (unsafe.Pointer, error) {
	if p == nil {
		return c.Alloc(size)
	}
	if size == 0 {
		return nil, c.Free(p)
	}
	if c.h.closed.Load() {
		return nil, ErrClosed
	}
	cl, large, err := c.h.resolve(p)
	if err != nil {
		return nil, err
	}
	if size > maxRequest {
		return nil, fmt.Errorf("%w: %d bytes", ErrNoMemory, size)
	}
	s := align16(size)

	if large {
		if s <= MidMax {
			// The mapping must stay a large object so Free unmaps it.
			return p, nil
		}
		return c.h.resizeLarge(cl, s)
	}
	if cl.size >= s {
		return p, nil
	}

	q, err := c.Alloc(s)
	if err != nil {
		return nil, err
	}
	if !cl.claim() {
		// p was freed concurrently. q was never handed out, so return it.
		_ = c.Free(q)
		return nil, ErrInvalidFree
	}
	copy(unsafe.Slice((*byte)(q), cl.size), unsafe.Slice((*byte)(p), cl.size))
	c.stats.Frees++
	c.push(cl)
	return q, nil
}
