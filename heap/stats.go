package heap

import "sync/atomic"

// counters are updated on slow paths only, so plain atomics are cheap enough.
type counters struct {
	tiers [numTiers]tierCounters

	largeAllocs      atomic.Uint64
	largeFrees       atomic.Uint64
	largeResizes     atomic.Uint64
	largeLive        atomic.Int64
	largeBytes       atomic.Int64
	providerFailures atomic.Uint64
}

type tierCounters struct {
	arenas     atomic.Uint64
	arenaBytes atomic.Uint64
	cells      atomic.Uint64
	refills    atomic.Uint64 // batch transfers bin -> cache
	flushes    atomic.Uint64 // batch transfers cache -> bin
}

// TierStats is a snapshot of one binned tier.
type TierStats struct {
	Tier       Tier
	Arenas     uint64 // arenas reserved
	ArenaBytes uint64 // bytes reserved for arenas
	Cells      uint64 // cells carved out of those arenas
	Refills    uint64 // bin to cache batch transfers
	Flushes    uint64 // cache to bin batch transfers
	BinCells   int    // cells sitting in the global bins right now
}

// Stats is a snapshot of a Heap's counters.
type Stats struct {
	Tiers [numTiers]TierStats

	LargeAllocs  uint64
	LargeFrees   uint64
	LargeResizes uint64
	LargeLive    int64 // large objects currently mapped
	LargeBytes   int64 // bytes mapped for live large objects, headers included

	ProviderFailures uint64
}

// ReservedBytes is the total memory currently held from the provider.
func (s Stats) ReservedBytes() uint64 {
	total := uint64(max(s.LargeBytes, 0))
	for _, t := range s.Tiers {
		total += t.ArenaBytes
	}
	return total
}

// Stats returns a snapshot. Bin lengths are read under each bin's lock, one
// bin at a time, so the snapshot is not atomic across bins.
func (h *Heap) Stats() Stats {
	var s Stats
	for t := range numTiers {
		c := &h.stats.tiers[t]
		ts := TierStats{
			Tier:       Tier(t),
			Arenas:     c.arenas.Load(),
			ArenaBytes: c.arenaBytes.Load(),
			Cells:      c.cells.Load(),
			Refills:    c.refills.Load(),
			Flushes:    c.flushes.Load(),
		}
		for i := range h.bins[t] {
			ts.BinCells += h.bins[t][i].length()
		}
		s.Tiers[t] = ts
	}
	s.LargeAllocs = h.stats.largeAllocs.Load()
	s.LargeFrees = h.stats.largeFrees.Load()
	s.LargeResizes = h.stats.largeResizes.Load()
	s.LargeLive = h.stats.largeLive.Load()
	s.LargeBytes = h.stats.largeBytes.Load()
	s.ProviderFailures = h.stats.providerFailures.Load()
	return s
}

// CacheStats are the counters of a single cache. They are not synchronized;
// read them from the goroutine that owns the cache.
type CacheStats struct {
	Allocs  uint64
	Frees   uint64
	Hits    uint64 // allocations served from the cache without a lock
	Misses  uint64 // allocations that went to a global bin
	Flushes uint64 // batches handed back to global bins
	Cached  int    // cells currently held
}
