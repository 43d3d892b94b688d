package heap

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/tcheap/internal/logger"
	"github.com/joshuapare/tcheap/internal/vmem"
)

// Runtime debug flag for arena and large-object logging - controlled by TCHEAP_LOG_ALLOC env var.
var logAlloc = os.Getenv("TCHEAP_LOG_ALLOC") != ""

// Options configures a Heap. The zero value uses anonymous mappings and the
// global logger.
type Options struct {
	// Provider supplies arenas and large objects. Default: vmem.MMap{}.
	Provider vmem.Provider

	// Logger receives slow-path events. Default: logger.L.
	Logger *slog.Logger
}

// Heap is one allocator instance: the global bins of all three tiers, the
// memory provider behind them, and a pool of per-goroutine caches.
type Heap struct {
	provider vmem.Provider
	log      *slog.Logger

	bins [numTiers][NumClasses]bin

	// caches holds *pooledCache. sync.Pool keeps one per P, which is as
	// close as Go gets to thread-local storage.
	caches sync.Pool

	// Arenas sorted by address, for Close and for resolving pointers that
	// could be large objects. Only touched on slow paths.
	arenaMu sync.Mutex
	arenas  []region

	// Live large objects keyed by mapping base.
	largeMu sync.Mutex
	large   map[uintptr]region

	// releaseMu orders Cache.Release against Close. Pool cleanups run on
	// their own goroutine and may otherwise flush into unmapped arenas.
	releaseMu sync.Mutex

	closed atomic.Bool
	stats  counters
}

type region struct {
	addr unsafe.Pointer
	size uintptr
}

// pooledCache is the pool entry. Its cleanup releases the inner Cache when
// the pool drops it, so cached cells return to the bins instead of being
// stranded.
type pooledCache struct {
	c *Cache
}

// New creates an empty heap. No memory is reserved until the first request.
func New(opts Options) *Heap {
	h := &Heap{
		provider: opts.Provider,
		log:      opts.Logger,
		large:    make(map[uintptr]region),
	}
	if h.provider == nil {
		h.provider = vmem.MMap{}
	}
	if h.log == nil {
		h.log = logger.L
	}
	h.caches.New = func() any {
		pc := &pooledCache{c: h.NewCache()}
		runtime.AddCleanup(pc, func(c *Cache) { c.Release() }, pc.c)
		return pc
	}
	return h
}

// NewCache returns a cache bound to h. The cache must be used by a single
// goroutine at a time; call Release when done with it to hand its cells
// back to the shared bins.
func (h *Heap) NewCache() *Cache {
	return &Cache{h: h}
}

func (h *Heap) getCache() *pooledCache {
	return h.caches.Get().(*pooledCache)
}

// Alloc allocates size bytes using a pooled cache. See Cache.Alloc.
func (h *Heap) Alloc(size uintptr) (unsafe.Pointer, error) {
	pc := h.getCache()
	p, err := pc.c.Alloc(size)
	h.caches.Put(pc)
	return p, err
}

// Free releases p using a pooled cache. See Cache.Free.
func (h *Heap) Free(p unsafe.Pointer) error {
	pc := h.getCache()
	err := pc.c.Free(p)
	h.caches.Put(pc)
	return err
}

// Calloc allocates zeroed memory for n elements of size bytes. See Cache.Calloc.
func (h *Heap) Calloc(n, size uintptr) (unsafe.Pointer, error) {
	pc := h.getCache()
	p, err := pc.c.Calloc(n, size)
	h.caches.Put(pc)
	return p, err
}

// Realloc resizes p using a pooled cache. See Cache.Realloc.
func (h *Heap) Realloc(p unsafe.Pointer, size uintptr) (unsafe.Pointer, error) {
	pc := h.getCache()
	q, err := pc.c.Realloc(p, size)
	h.caches.Put(pc)
	return q, err
}

// newArena reserves and carves one arena for (t, idx). It must be called
// without any bin lock held.
func (h *Heap) newArena(t Tier, idx int) (chain, error) {
	ts := &tiers[t]
	base, err := h.provider.Reserve(ts.arenaSize)
	if err != nil {
		h.stats.providerFailures.Add(1)
		h.log.Warn("arena reserve failed", "tier", t.String(), "class", idx, "bytes", ts.arenaSize, "error", err)
		return chain{}, fmt.Errorf("%w: %s arena: %w", ErrNoMemory, t, err)
	}

	ch := carve(base, ts.arenaSize, ts.classSize(idx))

	h.arenaMu.Lock()
	i, _ := slices.BinarySearchFunc(h.arenas, uintptr(base), func(r region, addr uintptr) int {
		return cmp.Compare(uintptr(r.addr), addr)
	})
	h.arenas = slices.Insert(h.arenas, i, region{addr: base, size: ts.arenaSize})
	h.arenaMu.Unlock()

	tc := &h.stats.tiers[t]
	tc.arenas.Add(1)
	tc.arenaBytes.Add(uint64(ts.arenaSize))
	tc.cells.Add(uint64(ch.n))

	if logAlloc {
		h.log.Debug("arena reserved",
			"tier", t.String(), "class", idx, "cell", ts.classSize(idx),
			"cells", ch.n, "bytes", ts.arenaSize)
	}
	return ch, nil
}

// inArena reports whether addr lies inside an arena of this heap.
func (h *Heap) inArena(addr uintptr) bool {
	h.arenaMu.Lock()
	defer h.arenaMu.Unlock()
	i, found := slices.BinarySearchFunc(h.arenas, addr, func(r region, addr uintptr) int {
		return cmp.Compare(uintptr(r.addr), addr)
	})
	if found {
		return true
	}
	if i == 0 {
		return false
	}
	r := h.arenas[i-1]
	return addr < uintptr(r.addr)+r.size
}

// Close releases every arena and every outstanding large object back to the
// provider. The caller guarantees that no goroutine is inside a Heap or Cache
// call and that no pointer from this heap is used afterwards. Later calls
// fail with ErrClosed.
func (h *Heap) Close() error {
	h.releaseMu.Lock()
	defer h.releaseMu.Unlock()
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	for t := range h.bins {
		for i := range h.bins[t] {
			b := &h.bins[t][i]
			b.lock.Lock()
			b.head, b.n = nil, 0
			b.lock.Unlock()
		}
	}

	h.arenaMu.Lock()
	arenas := h.arenas
	h.arenas = nil
	h.arenaMu.Unlock()

	h.largeMu.Lock()
	large := h.large
	h.large = make(map[uintptr]region)
	h.largeMu.Unlock()

	var errs []error
	for _, r := range arenas {
		if err := h.provider.Release(r.addr, r.size); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range large {
		if err := h.provider.Release(r.addr, r.size); err != nil {
			errs = append(errs, err)
			continue
		}
		h.stats.largeLive.Add(-1)
		h.stats.largeBytes.Add(-int64(r.size))
	}
	if len(large) > 0 {
		h.log.Debug("large objects released on close", "count", len(large))
	}
	return errors.Join(errs...)
}
