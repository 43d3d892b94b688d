package main

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/joshuapare/tcheap/heap"
	"github.com/joshuapare/tcheap/internal/logger"
)

var (
	benchIterations int
	benchHold       int
	benchWorkers    int
)

func init() {
	cmd := newBenchCmd()
	cmd.Flags().IntVarP(&benchIterations, "iterations", "n", 1000000, "Alloc/free pairs per tier and worker")
	cmd.Flags().IntVar(&benchHold, "hold", 1, "Objects held live before freeing them in one burst")
	cmd.Flags().IntVarP(&benchWorkers, "goroutines", "g", 1, "Concurrent workers, each with its own cache")
	rootCmd.AddCommand(cmd)
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure alloc/free throughput per tier",
		Long: `The bench command times alloc/free pairs of one representative size per
tier against a fresh heap. With --hold greater than 1, each worker allocates
that many objects before freeing them, which pushes the caches through
refills and flushes.

Example:
  tcheapctl bench
  tcheapctl bench --hold 256 -g 8
  tcheapctl bench --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := runBench(benchIterations, benchHold, benchWorkers)
			if err != nil {
				return err
			}
			return printBench(results)
		},
	}
	return cmd
}

// BenchResult is the timing of one tier.
type BenchResult struct {
	Tier     string        `json:"tier"`
	Size     uintptr       `json:"size"`
	Pairs    uint64        `json:"pairs"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	NsPerOp  float64       `json:"ns_per_pair"`
	Reserved uint64        `json:"reserved_bytes"`
}

var benchSizes = []struct {
	tier heap.Tier
	size uintptr
}{
	{heap.Tiny, 64},
	{heap.Small, 2048},
	{heap.Mid, 64 << 10},
	{heap.Large, 256 << 10},
}

func runBench(iterations, hold, workers int) ([]BenchResult, error) {
	if iterations <= 0 || hold <= 0 || workers <= 0 {
		return nil, fmt.Errorf("iterations, hold and goroutines must be positive")
	}
	rounds := max(iterations/hold, 1)

	results := make([]BenchResult, 0, len(benchSizes))
	for _, bs := range benchSizes {
		h := heap.New(heap.Options{})
		printVerbose("Timing %s (%d bytes)...\n", bs.tier, bs.size)

		var (
			wg    sync.WaitGroup
			errMu sync.Mutex
			first error
		)
		start := time.Now()
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := benchWorker(h.NewCache(), bs.size, rounds, hold); err != nil {
					errMu.Lock()
					if first == nil {
						first = err
					}
					errMu.Unlock()
				}
			}()
		}
		wg.Wait()
		elapsed := time.Since(start)
		reserved := h.Stats().ReservedBytes()
		if err := h.Close(); err != nil {
			return nil, err
		}
		if first != nil {
			return nil, fmt.Errorf("%s: %w", bs.tier, first)
		}

		pairs := uint64(rounds) * uint64(hold) * uint64(workers)
		logger.Debug("bench tier done", "tier", bs.tier, "size", bs.size, "pairs", pairs, "elapsed", elapsed)
		results = append(results, BenchResult{
			Tier:     bs.tier.String(),
			Size:     bs.size,
			Pairs:    pairs,
			Elapsed:  elapsed,
			NsPerOp:  float64(elapsed.Nanoseconds()) / float64(pairs),
			Reserved: reserved,
		})
	}
	return results, nil
}

func benchWorker(c *heap.Cache, size uintptr, rounds, hold int) error {
	ptrs := make([]unsafe.Pointer, hold)
	for range rounds {
		for i := range ptrs {
			p, err := c.Alloc(size)
			if err != nil {
				return err
			}
			ptrs[i] = p
		}
		for _, p := range ptrs {
			if err := c.Free(p); err != nil {
				return err
			}
		}
	}
	c.Release()
	return nil
}

func printBench(results []BenchResult) error {
	if jsonOut {
		return printJSON(results)
	}
	printInfo("%-6s %9s %12s %12s %14s %11s\n", "TIER", "SIZE", "PAIRS", "NS/PAIR", "RATE", "RESERVED")
	for _, r := range results {
		printInfo("%-6s %9s %12s %12s %14s %11s\n",
			r.Tier, formatBytes(r.Size), formatNumber(r.Pairs), printer.Sprintf("%.1f", r.NsPerOp),
			formatRate(r.Pairs, r.Elapsed.Seconds()), formatBytes(r.Reserved))
	}
	return nil
}
