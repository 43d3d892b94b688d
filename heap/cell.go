package heap

import (
	"sync/atomic"
	"unsafe"
)

// cell is the header placed immediately before every payload handed out.
// It lives in provider memory, never in the Go heap. The link is a uintptr
// rather than a pointer so that storing it needs no write barrier.
type cell struct {
	size uintptr // usable payload bytes: class size, or aligned size for large objects
	link uintptr // next free cell, or linkInUse while handed out
}

// HeaderSize is the number of bytes reserved in front of every payload.
const HeaderSize = unsafe.Sizeof(cell{})

// linkInUse marks a cell that belongs to a caller. No cell lives at the top
// of the address space, so it cannot collide with a real link.
const linkInUse = ^uintptr(0)

// cellOf recovers the header for a payload pointer.
func cellOf(p unsafe.Pointer) *cell {
	return (*cell)(unsafe.Add(p, -int(HeaderSize)))
}

func (c *cell) payload() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(c), HeaderSize)
}

func (c *cell) addr() uintptr {
	return uintptr(unsafe.Pointer(c))
}

func (c *cell) allocated() bool {
	return atomic.LoadUintptr(&c.link) == linkInUse
}

func (c *cell) markInUse() {
	c.link = linkInUse
}

// claim flips an in-use cell to free and reports whether this call did it.
// Two racing frees of one pointer cannot both succeed.
func (c *cell) claim() bool {
	return atomic.CompareAndSwapUintptr(&c.link, linkInUse, 0)
}

// next reads the link word as a pointer. Cells only ever live in provider
// memory, which the garbage collector neither scans nor moves.
func (c *cell) next() *cell {
	return (*cell)(*(*unsafe.Pointer)(unsafe.Pointer(&c.link)))
}

func (c *cell) setNext(n *cell) {
	c.link = uintptr(unsafe.Pointer(n))
}

// stamp initializes a header handed straight to a caller.
func (c *cell) stamp(size uintptr) unsafe.Pointer {
	c.size = size
	c.link = linkInUse
	return c.payload()
}

// chain is a detached run of free cells linked head to tail.
type chain struct {
	head, tail *cell
	n          int
}

// detach cuts up to limit cells off the front of the list starting at *head and
// returns them as a chain whose tail links to nothing.
func detach(head **cell, limit int) chain {
	first := *head
	if first == nil || limit <= 0 {
		return chain{}
	}
	tail, n := first, 1
	for n < limit {
		nx := tail.next()
		if nx == nil {
			break
		}
		tail = nx
		n++
	}
	*head = tail.next()
	tail.setNext(nil)
	return chain{head: first, tail: tail, n: n}
}

// prepend splices ch in front of the list at *head.
func prepend(head **cell, ch chain) {
	if ch.n == 0 {
		return
	}
	ch.tail.setNext(*head)
	*head = ch.head
}

// Bytes views n bytes of payload at p as a slice. The slice aliases provider
// memory and is only valid until p is freed.
func Bytes(p unsafe.Pointer, n uintptr) []byte {
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// SizeOf reports the usable capacity recorded in p's header. It returns 0
// for nil or for a pointer that is not currently allocated. It reads the
// header directly, so p must not be a large object that was already freed;
// Heap.SizeOf checks that first.
func SizeOf(p unsafe.Pointer) uintptr {
	if p == nil {
		return 0
	}
	c := cellOf(p)
	if !c.allocated() {
		return 0
	}
	return c.size
}
