package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/tcheap/heap"
)

var (
	classesTier string
)

func init() {
	cmd := newClassesCmd()
	cmd.Flags().StringVar(&classesTier, "tier", "", "Only show one tier (tiny, small, mid)")
	rootCmd.AddCommand(cmd)
}

func newClassesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classes [size...]",
		Short: "Show the size-class table or route request sizes",
		Long: `The classes command prints every reachable size class with the request
range it serves, its arena geometry and its batch size. Given one or more
request sizes it shows where each one is served instead.

Example:
  tcheapctl classes
  tcheapctl classes --tier small
  tcheapctl classes 1 513 4097 200000
  tcheapctl classes --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return runRoute(args)
			}
			return runClasses()
		},
	}
	return cmd
}

// ClassRow is one line of the class table.
type ClassRow struct {
	Tier          string  `json:"tier"`
	Index         int     `json:"index"`
	MinRequest    uintptr `json:"min_request"`
	MaxRequest    uintptr `json:"max_request"`
	ArenaSize     uintptr `json:"arena_size"`
	CellsPerArena int     `json:"cells_per_arena"`
	Batch         int     `json:"batch"`
}

// Route is where one request size is served.
type Route struct {
	Request uintptr `json:"request"`
	Tier    string  `json:"tier"`
	Index   int     `json:"index"`
	Size    uintptr `json:"size"`
	Waste   uintptr `json:"waste"`
}

func runClasses() error {
	filter := strings.ToLower(classesTier)
	switch filter {
	case "", "tiny", "small", "mid":
	default:
		return fmt.Errorf("unknown tier %q (want tiny, small or mid)", classesTier)
	}

	var rows []ClassRow
	for _, d := range heap.Classes() {
		if filter != "" && d.Tier.String() != filter {
			continue
		}
		rows = append(rows, ClassRow{
			Tier:          d.Tier.String(),
			Index:         d.Index,
			MinRequest:    d.MinRequest,
			MaxRequest:    d.Size,
			ArenaSize:     d.ArenaSize,
			CellsPerArena: d.CellsPerArena,
			Batch:         d.Batch,
		})
	}
	printVerbose("%d classes, header %d bytes, alignment %d\n", len(rows), heap.HeaderSize, heap.Alignment)

	if jsonOut {
		return printJSON(rows)
	}

	printInfo("%-6s %5s %17s %10s %8s %6s\n", "TIER", "CLASS", "REQUEST", "ARENA", "CELLS", "BATCH")
	for _, r := range rows {
		span := formatNumber(r.MinRequest) + "-" + formatNumber(r.MaxRequest)
		printInfo("%-6s %5d %17s %10s %8s %6d\n",
			r.Tier, r.Index, span, formatBytes(r.ArenaSize), formatNumber(r.CellsPerArena), r.Batch)
	}
	printInfo("Requests above %s bytes are mapped individually.\n", formatNumber(uintptr(heap.MidMax)))
	return nil
}

func runRoute(args []string) error {
	routes := make([]Route, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseUint(strings.ReplaceAll(arg, ",", ""), 0, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", arg, err)
		}
		if n == 0 {
			return fmt.Errorf("invalid size %q: must be positive", arg)
		}
		info := heap.Classify(uintptr(n))
		routes = append(routes, Route{
			Request: uintptr(n),
			Tier:    info.Tier.String(),
			Index:   info.Index,
			Size:    info.Size,
			Waste:   info.Size - uintptr(n),
		})
	}

	if jsonOut {
		return printJSON(routes)
	}
	for _, r := range routes {
		if r.Index < 0 {
			printInfo("%s -> %s (%s bytes mapped)\n", formatNumber(r.Request), r.Tier, formatNumber(r.Size+heap.HeaderSize))
			continue
		}
		printInfo("%s -> %s class %d (%s byte cell, %s wasted)\n",
			formatNumber(r.Request), r.Tier, r.Index, formatNumber(r.Size), formatNumber(r.Waste))
	}
	return nil
}
