// Package heap implements a thread-caching, size-segregated allocator for
// memory that lives outside the Go heap.
//
// # Overview
//
// Every allocation is a cell: a 16-byte header followed by the payload. The
// header records the cell's usable size and a link word. While the cell is
// free the link points at the next free cell of whatever list owns it; while
// it is handed out the link holds a sentinel. Free-versus-used is decided
// from that word alone.
//
// Requests are routed by their 16-byte aligned size:
//
//	Tier    Stride   Classes             Arena       Batch
//	tiny      16 B   16 B to 512 B       64 KiB         32
//	small    128 B   640 B to 4 KiB      256 KiB        16
//	mid      4 KiB   8 KiB to 128 KiB    2000000 B       4
//	large        -   above 128 KiB       one mapping per object
//
// Each tier has 32 classes. Every cell of a class has the class size, so any
// cell in a bin satisfies any request routed to that bin.
//
// # Two-tier free lists
//
// A Heap owns the global bins: one free chain and one spinlock per (tier,
// class). A Cache is a per-goroutine mirror of the same structure with no
// locking at all. Allocation pops from the cache; on a miss the cache takes
// one batch from the global bin under that bin's lock; if the bin is empty a
// new arena is reserved from the vmem.Provider (with no lock held), carved
// into a chain, spliced into the bin and the batch transfer is retried in the
// same critical section. Freeing pushes onto the freeing goroutine's cache,
// and once a class holds two batches they are flushed back to the bin.
//
// A cell freed by a different goroutine than the one that allocated it just
// goes to the freeing goroutine's cache. The header is self-describing, so
// no ownership tracking is needed.
//
// Requests above 128 KiB bypass bins and caches: each one is its own
// mapping and is released back to the provider on free.
//
// # Usage
//
//	h := heap.New(heap.Options{})
//
//	// Borrow a pooled cache per call.
//	p, err := h.Alloc(256)
//	if err != nil {
//	    return err
//	}
//	buf := heap.Bytes(p, 256)
//	copy(buf, payload)
//	err = h.Free(p)
//
//	// Or own a cache for a hot loop.
//	c := h.NewCache()
//	defer c.Release()
//	q, _ := c.Alloc(64)
//	_ = c.Free(q)
//
// # Thread Safety
//
// Heap methods are safe for concurrent use. A Cache must be used by one
// goroutine at a time. Memory from tiny, small and mid arenas is never
// returned to the operating system while the Heap is open.
//
// # Related Packages
//
//   - github.com/joshuapare/tcheap/internal/vmem: anonymous memory provider
//   - github.com/joshuapare/tcheap/internal/spin: bin spinlock
//   - github.com/joshuapare/tcheap/pkg/malloc: process-wide malloc/free surface
package heap
