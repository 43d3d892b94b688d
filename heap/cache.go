package heap

import (
	"fmt"
	"unsafe"
)

// cacheClass is one class of a cache: a free chain and its exact length.
type cacheClass struct {
	head *cell
	n    int
}

// Cache is the lock-free front of a Heap. It holds up to two batches of free
// cells per class and only takes a bin lock to refill or flush a whole batch.
//
// A Cache is not safe for concurrent use.
type Cache struct {
	h       *Heap
	classes [numTiers][NumClasses]cacheClass
	stats   CacheStats
}

// Heap returns the heap the cache draws from.
func (c *Cache) Heap() *Heap { return c.h }

// Alloc returns a 16-byte aligned pointer to at least size usable bytes.
//
// Returns ErrZeroSize for size 0, ErrNoMemory if the provider cannot supply
// an arena or mapping, and ErrClosed after the heap is closed. A failed call
// leaves the heap untouched.
func (c *Cache) Alloc(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, ErrZeroSize
	}
	if c.h.closed.Load() {
		return nil, ErrClosed
	}
	if size > maxRequest {
		return nil, fmt.Errorf("%w: %d bytes", ErrNoMemory, size)
	}
	c.stats.Allocs++

	s := align16(size)
	if s > MidMax {
		return c.h.allocLarge(s)
	}

	t, idx := classOf(s)
	cc := &c.classes[t][idx]
	if cl := cc.head; cl != nil {
		cc.head = cl.next()
		cc.n--
		cl.markInUse()
		c.stats.Hits++
		return cl.payload(), nil
	}
	c.stats.Misses++
	return c.refill(t, idx)
}

// refill serves a cache miss from the class's global bin, reserving a new
// arena when the bin is empty. The bin lock is never held across Reserve.
func (c *Cache) refill(t Tier, idx int) (unsafe.Pointer, error) {
	b := &c.h.bins[t][idx]
	batch := tiers[t].batch

	b.lock.Lock()
	ch := b.take(batch)
	b.lock.Unlock()

	if ch.n == 0 {
		fresh, err := c.h.newArena(t, idx)
		if err != nil {
			return nil, err
		}
		b.lock.Lock()
		// Other goroutines may have flushed into the bin meanwhile; splice
		// rather than overwrite.
		b.put(fresh)
		ch = b.take(batch)
		b.lock.Unlock()
	}
	c.h.stats.tiers[t].refills.Add(1)

	cc := &c.classes[t][idx]
	prepend(&cc.head, ch)
	cc.n += ch.n

	cl := cc.head
	cc.head = cl.next()
	cc.n--
	cl.markInUse()
	return cl.payload(), nil
}

// Free returns p to the cache. Returns ErrNilPointer for nil and
// ErrInvalidFree if p is not a live allocation (a double free, or memory this
// heap did not hand out), in which case nothing is modified.
func (c *Cache) Free(p unsafe.Pointer) error {
	if p == nil {
		return ErrNilPointer
	}
	if c.h.closed.Load() {
		return ErrClosed
	}
	cl, large, err := c.h.resolve(p)
	if err != nil {
		return err
	}
	if large {
		return c.h.freeLarge(cl)
	}
	if !cl.claim() {
		return ErrInvalidFree
	}
	c.stats.Frees++
	c.push(cl)
	return nil
}

// push adds a free cell to its class, flushing two batches to the global bin
// first if the class is full.
func (c *Cache) push(cl *cell) {
	t, idx := classOf(cl.size)
	cc := &c.classes[t][idx]
	if limit := 2 * tiers[t].batch; cc.n >= limit {
		c.flush(t, idx, limit)
	}
	cl.setNext(cc.head)
	cc.head = cl
	cc.n++
}

// flush moves n cells of (t, idx) to the global bin. The chain is cut
// outside the lock; only the splice happens under it.
func (c *Cache) flush(t Tier, idx, n int) {
	cc := &c.classes[t][idx]
	ch := detach(&cc.head, n)
	cc.n -= ch.n
	if ch.n == 0 {
		return
	}
	b := &c.h.bins[t][idx]
	b.lock.Lock()
	b.put(ch)
	b.lock.Unlock()
	c.stats.Flushes++
	c.h.stats.tiers[t].flushes.Add(1)
}

// Release hands every cached cell back to the global bins. The cache stays
// usable. Releasing a cache of a closed heap just forgets its cells.
func (c *Cache) Release() {
	c.h.releaseMu.Lock()
	defer c.h.releaseMu.Unlock()
	closed := c.h.closed.Load()
	for t := range numTiers {
		for idx := range NumClasses {
			cc := &c.classes[t][idx]
			if cc.n == 0 {
				continue
			}
			if closed {
				*cc = cacheClass{}
				continue
			}
			c.flush(Tier(t), idx, cc.n)
		}
	}
}

// Stats returns the cache's counters.
func (c *Cache) Stats() CacheStats {
	s := c.stats
	s.Cached = 0
	for t := range c.classes {
		for idx := range c.classes[t] {
			s.Cached += c.classes[t][idx].n
		}
	}
	return s
}
