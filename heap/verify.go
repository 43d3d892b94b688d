package heap

// Verify walks every global bin and the given caches and checks that each
// free chain is acyclic, that its length matches the tracked count, that
// every cell is marked free and carries its class size, and that no cell
// appears twice anywhere.
//
// Bins are locked one at a time. For a meaningful answer the heap should be
// quiescent; caches must belong to h and must not be in use by their owners
// during the call.
func (h *Heap) Verify(caches ...*Cache) error {
	seen := make(map[uintptr]struct{})
	for t := range numTiers {
		for idx := range NumClasses {
			b := &h.bins[t][idx]
			b.lock.Lock()
			err := verifyChain(seen, Tier(t), idx, b.head, b.n, "bin")
			b.lock.Unlock()
			if err != nil {
				return err
			}
		}
	}
	for _, c := range caches {
		if c.h != h {
			return &CorruptionError{Tier: Tiny, Class: -1, Reason: "cache belongs to another heap"}
		}
		if err := c.verify(seen); err != nil {
			return err
		}
	}
	return nil
}

// Verify checks the cache's own chains and counts. It does not look at the
// global bins.
func (c *Cache) Verify() error {
	return c.verify(make(map[uintptr]struct{}))
}

func (c *Cache) verify(seen map[uintptr]struct{}) error {
	for t := range numTiers {
		for idx := range NumClasses {
			cc := &c.classes[t][idx]
			if err := verifyChain(seen, Tier(t), idx, cc.head, cc.n, "cache"); err != nil {
				return err
			}
		}
	}
	return nil
}

// verifyChain walks at most want+1 links so a cycle cannot spin forever; a
// cycle shows up as a revisited cell.
func verifyChain(seen map[uintptr]struct{}, t Tier, idx int, head *cell, want int, where string) error {
	size := tiers[t].classSize(idx)
	n := 0
	for cl := head; cl != nil; cl = cl.next() {
		if _, dup := seen[cl.addr()]; dup {
			return &CorruptionError{Tier: t, Class: idx, Addr: cl.addr(), Reason: where + ": cell listed twice or chain has a cycle"}
		}
		seen[cl.addr()] = struct{}{}
		if cl.link == linkInUse {
			return &CorruptionError{Tier: t, Class: idx, Addr: cl.addr(), Reason: where + ": in-use cell on free chain"}
		}
		if cl.size != size {
			return &CorruptionError{Tier: t, Class: idx, Addr: cl.addr(), Reason: where + ": wrong cell size"}
		}
		if cl.addr()%Alignment != 0 {
			return &CorruptionError{Tier: t, Class: idx, Addr: cl.addr(), Reason: where + ": misaligned cell"}
		}
		n++
		if n > want {
			return &CorruptionError{Tier: t, Class: idx, Reason: where + ": chain longer than tracked count"}
		}
	}
	if n != want {
		return &CorruptionError{Tier: t, Class: idx, Reason: where + ": chain shorter than tracked count"}
	}
	return nil
}
