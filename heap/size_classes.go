package heap

// Alignment is the granularity of every request and of every payload address.
const Alignment = 16

// Tier ceilings. A request whose aligned size is at most TinyMax is tiny, at
// most SmallMax is small, at most MidMax is mid, and anything above is large.
const (
	TinyMax  = 512
	SmallMax = 4 << 10
	MidMax   = 128 << 10
)

// NumClasses is the number of size classes per tier.
const NumClasses = 32

// Tier identifies a size range with its own stride, arena size and batch size.
type Tier uint8

const (
	Tiny Tier = iota
	Small
	Mid
	Large

	numTiers = int(Large) // tiers that have bins
)

func (t Tier) String() string {
	switch t {
	case Tiny:
		return "tiny"
	case Small:
		return "small"
	case Mid:
		return "mid"
	case Large:
		return "large"
	default:
		return "unknown"
	}
}

// tierSpec holds the fixed geometry of one binned tier.
type tierSpec struct {
	stride    uintptr // class spacing; class i holds cells of (i+1)*stride bytes
	max       uintptr // largest aligned request served by this tier
	arenaSize uintptr // bytes reserved per arena
	batch     int     // cells moved per bin refill; a cache flushes at 2*batch
}

var tiers = [numTiers]tierSpec{
	Tiny:  {stride: 16, max: TinyMax, arenaSize: 64 << 10, batch: 32},
	Small: {stride: 128, max: SmallMax, arenaSize: 256 << 10, batch: 16},
	// Not a power of two. Kept as is: it fixes how many cells each mid
	// arena yields.
	Mid: {stride: 4096, max: MidMax, arenaSize: 2000000, batch: 4},
}

// maxRequest is the largest size that can be aligned and given a header
// without overflowing a uintptr.
const maxRequest = ^uintptr(0) - HeaderSize - Alignment

func align16(n uintptr) uintptr {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// ClassInfo describes where a request is served from.
type ClassInfo struct {
	Tier  Tier
	Index int     // class index within the tier, -1 for large
	Size  uintptr // usable bytes of the cell handed out
}

// Classify routes a request of size bytes. The zero ClassInfo with Index -1
// is returned for size 0.
func Classify(size uintptr) ClassInfo {
	if size == 0 {
		return ClassInfo{Index: -1}
	}
	if size > maxRequest {
		return ClassInfo{Tier: Large, Index: -1, Size: size}
	}
	s := align16(size)
	if s > MidMax {
		return ClassInfo{Tier: Large, Index: -1, Size: s}
	}
	t, idx := classOf(s)
	return ClassInfo{Tier: t, Index: idx, Size: tiers[t].classSize(idx)}
}

// classOf maps an aligned size no larger than MidMax to its tier and class.
func classOf(s uintptr) (Tier, int) {
	var t Tier
	switch {
	case s <= TinyMax:
		t = Tiny
	case s <= SmallMax:
		t = Small
	default:
		t = Mid
	}
	stride := tiers[t].stride
	return t, int((s+stride-1)/stride) - 1
}

func (ts *tierSpec) classSize(idx int) uintptr {
	return uintptr(idx+1) * ts.stride
}

// cellsPerArena is how many header+payload cells of class idx one arena holds.
func (ts *tierSpec) cellsPerArena(idx int) int {
	return int(ts.arenaSize / (HeaderSize + ts.classSize(idx)))
}

// validCellSize reports whether size is the class size of some binned class,
// which every tiered header must carry.
func validCellSize(size uintptr) bool {
	if size == 0 || size > MidMax || size%Alignment != 0 {
		return false
	}
	t, idx := classOf(size)
	return tiers[t].classSize(idx) == size
}

// Classes lists every reachable class in routing order. Small classes below
// TinyMax and the first mid class are never routed to and are omitted.
func Classes() []ClassDesc {
	out := make([]ClassDesc, 0, numTiers*NumClasses)
	lo := uintptr(1)
	for t := range numTiers {
		ts := &tiers[t]
		for idx := range NumClasses {
			size := ts.classSize(idx)
			if size < lo {
				continue
			}
			out = append(out, ClassDesc{
				ClassInfo:     ClassInfo{Tier: Tier(t), Index: idx, Size: size},
				MinRequest:    lo,
				ArenaSize:     ts.arenaSize,
				CellsPerArena: ts.cellsPerArena(idx),
				Batch:         ts.batch,
			})
			lo = size + 1
		}
	}
	return out
}

// ClassDesc is one row of the class table.
type ClassDesc struct {
	ClassInfo
	MinRequest    uintptr // smallest request routed here
	ArenaSize     uintptr
	CellsPerArena int
	Batch         int
}
