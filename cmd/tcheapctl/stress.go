package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/joshuapare/tcheap/heap"
	"github.com/joshuapare/tcheap/internal/logger"
)

var (
	stressWorkers int
	stressOps     int
	stressMaxSize uint64
	stressMaxLive int
	stressSeed    uint64
	stressPooled  bool
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVarP(&stressWorkers, "goroutines", "g", runtime.GOMAXPROCS(0), "Number of concurrent workers")
	cmd.Flags().IntVarP(&stressOps, "ops", "n", 100000, "Operations per worker")
	cmd.Flags().Uint64Var(&stressMaxSize, "max-size", 256<<10, "Largest request size in bytes")
	cmd.Flags().IntVar(&stressMaxLive, "max-live", 1024, "Live objects per worker before it starts freeing")
	cmd.Flags().Uint64Var(&stressSeed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&stressPooled, "pooled", false, "Use the heap's pooled caches instead of one cache per worker")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a concurrent alloc/free workload and verify the heap",
		Long: `The stress command runs goroutines doing randomized alloc, free and realloc
of mixed sizes against a fresh heap. Every object carries a fill pattern that
is checked before it is freed, no address may be live twice, and once the
workers stop every free chain is walked and verified.

Example:
  tcheapctl stress
  tcheapctl stress -g 16 -n 1000000 --max-size 65536
  tcheapctl stress --pooled --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := stressConfig{
				Workers: stressWorkers,
				Ops:     stressOps,
				MaxSize: uintptr(stressMaxSize),
				MaxLive: stressMaxLive,
				Seed:    stressSeed,
				Pooled:  stressPooled,
			}
			res, err := runStress(cfg)
			if err != nil {
				return err
			}
			return printStress(res)
		},
	}
	return cmd
}

type stressConfig struct {
	Workers int
	Ops     int
	MaxSize uintptr
	MaxLive int
	Seed    uint64
	Pooled  bool
}

// StressResult summarizes one stress run.
type StressResult struct {
	Workers  int           `json:"workers"`
	Ops      uint64        `json:"ops"`
	Allocs   uint64        `json:"allocs"`
	Frees    uint64        `json:"frees"`
	Reallocs uint64        `json:"reallocs"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Verified bool          `json:"verified"`
	Heap     heap.Stats    `json:"heap"`
}

var (
	errOverlap   = errors.New("address handed out while still live")
	errOverwrite = errors.New("payload overwritten")
)

type stressObj struct {
	p    unsafe.Pointer
	size uintptr
	seed byte
}

// patternLen bounds how much of each object is filled and checked.
const patternLen = 64

func (o stressObj) fill() {
	b := heap.Bytes(o.p, min(o.size, patternLen))
	for i := range b {
		b[i] = o.seed ^ byte(i)
	}
}

func (o stressObj) intact() bool {
	b := heap.Bytes(o.p, min(o.size, patternLen))
	for i := range b {
		if b[i] != o.seed^byte(i) {
			return false
		}
	}
	return true
}

// allocator is the slice of the heap API a worker drives; both *heap.Cache
// and *heap.Heap satisfy it.
type allocator interface {
	Alloc(size uintptr) (unsafe.Pointer, error)
	Free(p unsafe.Pointer) error
	Realloc(p unsafe.Pointer, size uintptr) (unsafe.Pointer, error)
}

type stressCounts struct {
	allocs, frees, reallocs uint64
}

func runStress(cfg stressConfig) (StressResult, error) {
	if cfg.Workers <= 0 || cfg.Ops <= 0 || cfg.MaxLive <= 0 {
		return StressResult{}, fmt.Errorf("goroutines, ops and max-live must be positive")
	}
	if cfg.MaxSize == 0 {
		return StressResult{}, fmt.Errorf("max-size must be positive")
	}

	h := heap.New(heap.Options{})
	defer h.Close()

	caches := make([]*heap.Cache, cfg.Workers)
	for i := range caches {
		caches[i] = h.NewCache()
	}

	printVerbose("Running %d workers x %s ops, sizes 1-%s, seed %d\n",
		cfg.Workers, formatNumber(cfg.Ops), formatNumber(cfg.MaxSize), cfg.Seed)
	logger.Info("stress started", "workers", cfg.Workers, "ops", cfg.Ops, "max_size", cfg.MaxSize, "pooled", cfg.Pooled)

	var (
		owners sync.Map
		wg     sync.WaitGroup
		errMu  sync.Mutex
		errs   []error
	)
	counts := make([]stressCounts, cfg.Workers)

	start := time.Now()
	for w := range cfg.Workers {
		var a allocator = caches[w]
		if cfg.Pooled {
			a = h
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := stressWorker(a, &owners, cfg, w, &counts[w]); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("worker %d: %w", w, err))
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if err := errors.Join(errs...); err != nil {
		warnProviderFailures(h.Stats())
		logger.Error("stress failed", "error", err)
		return StressResult{}, err
	}

	verifyWith := caches
	if cfg.Pooled {
		verifyWith = nil
	}
	if err := h.Verify(verifyWith...); err != nil {
		logger.Error("heap verification failed", "error", err)
		return StressResult{}, fmt.Errorf("verify: %w", err)
	}

	res := StressResult{
		Workers:  cfg.Workers,
		Elapsed:  elapsed,
		Verified: true,
		Heap:     h.Stats(),
	}
	for _, c := range counts {
		res.Allocs += c.allocs
		res.Frees += c.frees
		res.Reallocs += c.reallocs
	}
	res.Ops = res.Allocs + res.Frees + res.Reallocs
	logger.Info("stress finished", "ops", res.Ops, "elapsed", elapsed)
	return res, nil
}

// warnProviderFailures tells an out-of-memory failure apart from a heap bug.
func warnProviderFailures(st heap.Stats) {
	if st.ProviderFailures > 0 {
		logger.Warn("provider refused memory during stress", "failures", st.ProviderFailures,
			"reserved", st.ReservedBytes())
	}
}

func stressWorker(a allocator, owners *sync.Map, cfg stressConfig, w int, n *stressCounts) error {
	r := rand.New(rand.NewPCG(cfg.Seed, uint64(w)))
	live := make([]stressObj, 0, cfg.MaxLive)

	release := func(o stressObj) error {
		if !o.intact() {
			return fmt.Errorf("%w at %p", errOverwrite, o.p)
		}
		owners.Delete(uintptr(o.p))
		if err := a.Free(o.p); err != nil {
			return err
		}
		n.frees++
		return nil
	}
	claim := func(o stressObj) error {
		if _, dup := owners.LoadOrStore(uintptr(o.p), w); dup {
			return fmt.Errorf("%w: %p", errOverlap, o.p)
		}
		o.fill()
		return nil
	}

	for i := range cfg.Ops {
		op := r.IntN(10)
		switch {
		case len(live) > 0 && (len(live) >= cfg.MaxLive || op < 4):
			j := r.IntN(len(live))
			o := live[j]
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			if err := release(o); err != nil {
				return err
			}

		case len(live) > 0 && op == 4:
			j := r.IntN(len(live))
			o := live[j]
			if !o.intact() {
				return fmt.Errorf("%w at %p", errOverwrite, o.p)
			}
			size := stressSize(r, cfg.MaxSize)
			owners.Delete(uintptr(o.p))
			q, err := a.Realloc(o.p, size)
			if err != nil {
				return err
			}
			n.reallocs++
			// The prefix that fits in both sizes survives the move.
			if kept := min(o.size, size, patternLen); !(stressObj{p: q, size: kept, seed: o.seed}).intact() {
				return fmt.Errorf("%w by realloc at %p", errOverwrite, q)
			}
			o = stressObj{p: q, size: size, seed: byte(i)}
			if err := claim(o); err != nil {
				return err
			}
			live[j] = o

		default:
			size := stressSize(r, cfg.MaxSize)
			p, err := a.Alloc(size)
			if err != nil {
				return err
			}
			n.allocs++
			o := stressObj{p: p, size: size, seed: byte(i)}
			if err := claim(o); err != nil {
				return err
			}
			live = append(live, o)
		}
	}
	for _, o := range live {
		if err := release(o); err != nil {
			return err
		}
	}
	return nil
}

// stressSize favours small requests: the exponent is uniform, the mantissa
// uniform within it.
func stressSize(r *rand.Rand, limit uintptr) uintptr {
	bits := 1
	for uintptr(1)<<bits < limit {
		bits++
	}
	hi := uintptr(1) << (1 + r.IntN(bits))
	return min(1+uintptr(r.Uint64N(uint64(hi))), limit)
}

func printStress(res StressResult) error {
	if jsonOut {
		return printJSON(res)
	}
	s := res.Heap
	printInfo("Stress run: %d workers, %s ops in %s (%s)\n",
		res.Workers, formatNumber(res.Ops), res.Elapsed.Round(time.Millisecond), formatRate(res.Ops, res.Elapsed.Seconds()))
	printInfo("  allocs %s, frees %s, reallocs %s\n",
		formatNumber(res.Allocs), formatNumber(res.Frees), formatNumber(res.Reallocs))
	printInfo("  verification: passed\n\n")

	printInfo("%-6s %7s %11s %10s %9s %9s %10s\n", "TIER", "ARENAS", "RESERVED", "CELLS", "REFILLS", "FLUSHES", "IN BINS")
	for _, t := range s.Tiers {
		printInfo("%-6s %7s %11s %10s %9s %9s %10s\n",
			t.Tier, formatNumber(t.Arenas), formatBytes(t.ArenaBytes), formatNumber(t.Cells),
			formatNumber(t.Refills), formatNumber(t.Flushes), formatNumber(t.BinCells))
	}
	printInfo("large  %s mapped, %s unmapped, %s resized\n",
		formatNumber(s.LargeAllocs), formatNumber(s.LargeFrees), formatNumber(s.LargeResizes))
	printInfo("Total reserved: %s\n", formatBytes(s.ReservedBytes()))
	if s.ProviderFailures > 0 {
		printInfo("Provider failures: %s\n", formatNumber(s.ProviderFailures))
	}
	return nil
}
