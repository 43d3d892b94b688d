package heap

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/tcheap/internal/vmem"
)

// allocLarge maps header+s bytes for a single object above MidMax. The
// mapping is already zeroed.
func (h *Heap) allocLarge(s uintptr) (unsafe.Pointer, error) {
	length := HeaderSize + s
	base, err := h.provider.Reserve(length)
	if err != nil {
		h.stats.providerFailures.Add(1)
		h.log.Warn("large reserve failed", "bytes", length, "error", err)
		return nil, fmt.Errorf("%w: large object of %d bytes: %w", ErrNoMemory, s, err)
	}
	p := (*cell)(base).stamp(s)
	h.putLarge(region{addr: base, size: length})
	h.stats.largeAllocs.Add(1)
	h.stats.largeLive.Add(1)
	h.stats.largeBytes.Add(int64(length))
	if logAlloc {
		h.log.Debug("large mapped", "bytes", length, "addr", base)
	}
	return p, nil
}

func (h *Heap) putLarge(r region) {
	h.largeMu.Lock()
	h.large[uintptr(r.addr)] = r
	h.largeMu.Unlock()
}

// takeLarge removes the live large object mapped at base. Of two callers
// racing on the same object only one gets ok.
func (h *Heap) takeLarge(base uintptr) (region, bool) {
	h.largeMu.Lock()
	defer h.largeMu.Unlock()
	r, ok := h.large[base]
	if ok {
		delete(h.large, base)
	}
	return r, ok
}

func (h *Heap) isLarge(base uintptr) bool {
	h.largeMu.Lock()
	_, ok := h.large[base]
	h.largeMu.Unlock()
	return ok
}

// resolve finds the header behind a pointer handed to Free or Realloc
// without reading memory that may already be unmapped. A large payload sits
// one header past a page-aligned mapping, so only such pointers are looked
// up: a hit is a live large object, a miss must lie inside an arena before
// its header is read.
func (h *Heap) resolve(p unsafe.Pointer) (cl *cell, large bool, err error) {
	cl = cellOf(p)
	if base := cl.addr(); base%vmem.PageSize == 0 {
		if h.isLarge(base) {
			return cl, true, nil
		}
		if !h.inArena(base) {
			return nil, false, ErrInvalidFree
		}
	}
	if !cl.allocated() {
		return nil, false, ErrInvalidFree
	}
	if !validCellSize(cl.size) {
		return nil, false, fmt.Errorf("%w: header size %d is not a class size", ErrInvalidFree, cl.size)
	}
	return cl, false, nil
}

// SizeOf reports the usable capacity of p, or 0 if p is nil or not a live
// allocation of h. Unlike the package-level SizeOf it is safe on a large
// object that was already freed.
func (h *Heap) SizeOf(p unsafe.Pointer) uintptr {
	if p == nil || h.closed.Load() {
		return 0
	}
	cl, _, err := h.resolve(p)
	if err != nil {
		return 0
	}
	return cl.size
}

// freeLarge unmaps a large object. If the provider refuses, the object stays
// live so the caller still owns it.
func (h *Heap) freeLarge(cl *cell) error {
	r, ok := h.takeLarge(cl.addr())
	if !ok {
		return ErrInvalidFree
	}
	cl.claim()
	if err := h.provider.Release(r.addr, r.size); err != nil {
		cl.markInUse()
		h.putLarge(r)
		h.stats.providerFailures.Add(1)
		h.log.Warn("large release failed", "bytes", r.size, "error", err)
		return err
	}
	h.stats.largeFrees.Add(1)
	h.stats.largeLive.Add(-1)
	h.stats.largeBytes.Add(-int64(r.size))
	if logAlloc {
		h.log.Debug("large unmapped", "bytes", r.size)
	}
	return nil
}

// resizeLarge grows or shrinks a large object's mapping, letting the
// provider move it, and rewrites the header at the resulting address.
func (h *Heap) resizeLarge(cl *cell, s uintptr) (unsafe.Pointer, error) {
	r, ok := h.takeLarge(cl.addr())
	if !ok {
		return nil, ErrInvalidFree
	}
	if s == cl.size {
		h.putLarge(r)
		return cl.payload(), nil
	}
	newLen := HeaderSize + s
	base, err := h.provider.Resize(r.addr, r.size, newLen, true)
	if err != nil {
		h.putLarge(r)
		h.stats.providerFailures.Add(1)
		h.log.Warn("large resize failed", "from", r.size, "to", newLen, "error", err)
		return nil, fmt.Errorf("%w: resize large object to %d bytes: %w", ErrNoMemory, s, err)
	}
	p := (*cell)(base).stamp(s)
	h.putLarge(region{addr: base, size: newLen})
	h.stats.largeResizes.Add(1)
	h.stats.largeBytes.Add(int64(newLen) - int64(r.size))
	if logAlloc {
		h.log.Debug("large remapped", "from", r.size, "to", newLen, "moved", base != r.addr)
	}
	return p, nil
}
