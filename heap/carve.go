package heap

import "unsafe"

// carve slices a fresh arena into cells of classSize payload bytes, each
// preceded by a header, and links them in address order. It walks from the
// last cell that fits back to the first so every link is written once and
// the last cell ends the chain. The arena bytes past the last whole cell are
// unused.
func carve(base unsafe.Pointer, arenaSize, classSize uintptr) chain {
	stride := HeaderSize + classSize
	n := int(arenaSize / stride)
	if n == 0 {
		return chain{}
	}

	tail := (*cell)(unsafe.Add(base, uintptr(n-1)*stride))
	var next *cell
	for i := n - 1; i >= 0; i-- {
		c := (*cell)(unsafe.Add(base, uintptr(i)*stride))
		c.size = classSize
		c.setNext(next)
		next = c
	}
	return chain{head: next, tail: tail, n: n}
}
