package heap

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroSize indicates a zero-byte request, or a zero count or size to Calloc.
	ErrZeroSize = errors.New("heap: zero-size request")

	// ErrOverflow indicates that count*size does not fit a uintptr.
	ErrOverflow = errors.New("heap: size overflow")

	// ErrNoMemory indicates that the memory provider could not supply a region.
	ErrNoMemory = errors.New("heap: out of memory")

	// ErrNilPointer indicates a nil pointer passed to Free.
	ErrNilPointer = errors.New("heap: nil pointer")

	// ErrInvalidFree indicates a pointer whose header is not marked in use:
	// a double free, or memory this heap did not hand out.
	ErrInvalidFree = errors.New("heap: invalid free")

	// ErrClosed indicates use of a Heap (or one of its caches) after Close.
	ErrClosed = errors.New("heap: closed")
)

// CorruptionError describes a free chain that failed verification.
type CorruptionError struct {
	Tier   Tier
	Class  int
	Addr   uintptr // offending cell header, 0 if not cell specific
	Reason string
}

func (e *CorruptionError) Error() string {
	if e.Addr == 0 {
		return fmt.Sprintf("heap: %s class %d: %s", e.Tier, e.Class, e.Reason)
	}
	return fmt.Sprintf("heap: %s class %d: cell %#x: %s", e.Tier, e.Class, e.Addr, e.Reason)
}
