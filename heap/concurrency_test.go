package heap

import (
	"math/rand/v2"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type liveObj struct {
	p    unsafe.Pointer
	size uintptr
	seed byte
}

// stressSize biases toward the binned tiers with the odd large object.
func stressSize(r *rand.Rand) uintptr {
	switch n := r.IntN(100); {
	case n < 50:
		return uintptr(1 + r.IntN(TinyMax))
	case n < 80:
		return uintptr(TinyMax + 1 + r.IntN(SmallMax-TinyMax))
	case n < 98:
		return uintptr(SmallMax + 1 + r.IntN(MidMax-SmallMax))
	default:
		return uintptr(MidMax + 1 + r.IntN(256<<10))
	}
}

// Test_Concurrent_Stress runs independent caches against one heap. Each
// goroutine frees some of its own objects and hands the rest to a neighbour,
// so cells travel between caches and through the bins.
func Test_Concurrent_Stress(t *testing.T) {
	workers, ops := 8, 20000
	if testing.Short() {
		workers, ops = 4, 2000
	}

	h, _ := newTestHeap(t)
	caches := make([]*Cache, workers)
	for i := range caches {
		caches[i] = h.NewCache()
	}

	// Every live pointer is registered here; a second registration of the
	// same address means two callers own one cell.
	var owners sync.Map

	handoff := make([]chan liveObj, workers)
	for i := range handoff {
		handoff[i] = make(chan liveObj, 256)
	}

	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := caches[w]
			r := rand.New(rand.NewPCG(uint64(w), 42))
			var live []liveObj

			release := func(o liveObj) bool {
				if !checkObj(o) {
					errs <- &CorruptionError{Reason: "payload overwritten", Addr: uintptr(o.p)}
					return false
				}
				owners.Delete(uintptr(o.p))
				if err := c.Free(o.p); err != nil {
					errs <- err
					return false
				}
				return true
			}

			for i := range ops {
				select {
				case o := <-handoff[w]:
					if !release(o) {
						return
					}
				default:
				}

				if len(live) > 0 && (len(live) >= 512 || r.IntN(2) == 0) {
					j := r.IntN(len(live))
					o := live[j]
					live[j] = live[len(live)-1]
					live = live[:len(live)-1]
					if r.IntN(4) == 0 {
						select {
						case handoff[(w+1)%workers] <- o:
							continue
						default:
						}
					}
					if !release(o) {
						return
					}
					continue
				}

				size := stressSize(r)
				p, err := c.Alloc(size)
				if err != nil {
					errs <- err
					return
				}
				if _, dup := owners.LoadOrStore(uintptr(p), w); dup {
					errs <- &CorruptionError{Reason: "pointer handed out twice", Addr: uintptr(p)}
					return
				}
				o := liveObj{p: p, size: size, seed: byte(w*31 + i)}
				fill(p, min(size, 256), o.seed)
				live = append(live, o)
			}
			for _, o := range live {
				if !release(o) {
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Objects still in flight between workers.
	for w := range workers {
		close(handoff[w])
		for o := range handoff[w] {
			require.True(t, checkObj(o))
			owners.Delete(uintptr(o.p))
			require.NoError(t, caches[w].Free(o.p))
		}
	}

	leftover := 0
	owners.Range(func(_, _ any) bool { leftover++; return true })
	require.Zero(t, leftover)
	require.NoError(t, h.Verify(caches...))

	s := h.Stats()
	require.Zero(t, s.LargeLive)
	held := 0
	for _, c := range caches {
		held += c.Stats().Cached
	}
	var binned, carved int
	for _, ts := range s.Tiers {
		binned += ts.BinCells
		carved += int(ts.Cells)
	}
	require.Equal(t, carved, binned+held, "every carved cell is free again")
}

func checkObj(o liveObj) bool {
	b := Bytes(o.p, min(o.size, 256))
	for i := range b {
		if b[i] != o.seed+byte(i) {
			return false
		}
	}
	return true
}

// Test_Concurrent_Pooled drives the pooled entry points from many
// goroutines.
func Test_Concurrent_Pooled(t *testing.T) {
	workers, ops := 8, 5000
	if testing.Short() {
		ops = 500
	}
	h, _ := newTestHeap(t)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(w), 7))
			for range ops {
				size := uintptr(1 + r.IntN(SmallMax))
				p, err := h.Alloc(size)
				if err != nil {
					errs <- err
					return
				}
				fill(p, size, byte(w))
				if r.IntN(2) == 0 {
					if p, err = h.Realloc(p, size*2); err != nil {
						errs <- err
						return
					}
				}
				if err := h.Free(p); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

// Test_Concurrent_RacingDoubleFree frees one pointer from two caches at once;
// exactly one free may win.
func Test_Concurrent_RacingDoubleFree(t *testing.T) {
	h, _ := newTestHeap(t)
	owner := h.NewCache()
	a, b := h.NewCache(), h.NewCache()

	for range 200 {
		p := mustAlloc(t, owner, 64)
		var wg sync.WaitGroup
		var ea, eb error
		wg.Add(2)
		go func() { defer wg.Done(); ea = a.Free(p) }()
		go func() { defer wg.Done(); eb = b.Free(p) }()
		wg.Wait()

		require.True(t, (ea == nil) != (eb == nil), "a=%v b=%v", ea, eb)
		if ea != nil {
			require.ErrorIs(t, ea, ErrInvalidFree)
		} else {
			require.ErrorIs(t, eb, ErrInvalidFree)
		}
	}
	require.NoError(t, h.Verify(owner, a, b))
}

// Test_Concurrent_ReallocRacingFree grows a pointer on one goroutine while
// another frees it. Whichever loses must report ErrInvalidFree and leave no
// cell behind.
func Test_Concurrent_ReallocRacingFree(t *testing.T) {
	h, _ := newTestHeap(t)
	owner := h.NewCache()
	a, b := h.NewCache(), h.NewCache()

	for range 500 {
		p := mustAlloc(t, owner, 64)
		var wg sync.WaitGroup
		var q unsafe.Pointer
		var errRealloc, errFree error
		wg.Add(2)
		go func() { defer wg.Done(); q, errRealloc = a.Realloc(p, 1024) }()
		go func() { defer wg.Done(); errFree = b.Free(p) }()
		wg.Wait()

		if errRealloc == nil {
			require.NotNil(t, q)
			require.ErrorIs(t, errFree, ErrInvalidFree)
			require.NoError(t, a.Free(q))
		} else {
			require.ErrorIs(t, errRealloc, ErrInvalidFree)
			require.Nil(t, q)
			require.NoError(t, errFree)
		}
	}
	require.NoError(t, h.Verify(owner, a, b))

	held := owner.Stats().Cached + a.Stats().Cached + b.Stats().Cached
	var binned, carved int
	for _, ts := range h.Stats().Tiers {
		binned += ts.BinCells
		carved += int(ts.Cells)
	}
	require.Equal(t, carved, binned+held, "no cell may leak")
}

func Test_Concurrent_RacingLargeDoubleFree(t *testing.T) {
	h, rp := newTestHeap(t)
	a, b := h.NewCache(), h.NewCache()

	for range 50 {
		p := mustAlloc(t, a, 200000)
		var wg sync.WaitGroup
		var ea, eb error
		wg.Add(2)
		go func() { defer wg.Done(); ea = a.Free(p) }()
		go func() { defer wg.Done(); eb = b.Free(p) }()
		wg.Wait()
		require.True(t, (ea == nil) != (eb == nil), "a=%v b=%v", ea, eb)
	}
	require.Len(t, rp.Releases(), 50)
	require.Zero(t, h.Stats().LargeLive)
}
