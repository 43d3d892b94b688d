package heap

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func Test_Calloc_Zeroed(t *testing.T) {
	h, _ := newTestHeap(t)
	c := h.NewCache()

	for _, tc := range []struct {
		n, size uintptr
	}{
		{16, 4},
		{3, 7}, // unaligned total
		{1, TinyMax},
		{10, 100},
		{2, 3000},
		{9, 10000},
		{1, MidMax},
	} {
		// Dirty a cell of the same class and put it back so Calloc reuses it.
		total := tc.n * tc.size
		dirty := mustAlloc(t, c, total)
		fill(dirty, SizeOf(dirty), 0xa5)
		require.NoError(t, c.Free(dirty))

		p, err := c.Calloc(tc.n, tc.size)
		require.NoError(t, err)
		require.Equal(t, dirty, p, "Calloc(%d, %d) should reuse the dirtied cell", tc.n, tc.size)

		size, _ := header(p)
		for i, b := range Bytes(p, size) {
			if b != 0 {
				t.Fatalf("Calloc(%d, %d): byte %d of %d is 0x%x", tc.n, tc.size, i, size, b)
			}
		}
		require.NoError(t, c.Free(p))
	}
}

func Test_Calloc_Large(t *testing.T) {
	h, _ := newTestHeap(t)
	c := h.NewCache()

	p, err := c.Calloc(1000, 250)
	require.NoError(t, err)
	for i, b := range Bytes(p, 250000) {
		if b != 0 {
			t.Fatalf("byte %d is 0x%x", i, b)
		}
	}
	require.NoError(t, c.Free(p))
}

func Test_Calloc_InvalidOperands(t *testing.T) {
	h, rp := newTestHeap(t)
	c := h.NewCache()

	_, err := c.Calloc(0, 8)
	require.ErrorIs(t, err, ErrZeroSize)
	_, err = c.Calloc(8, 0)
	require.ErrorIs(t, err, ErrZeroSize)

	p, err := c.Calloc(math.MaxUint64/2, 3)
	require.ErrorIs(t, err, ErrOverflow)
	require.Nil(t, p)
	require.Empty(t, rp.Reserves())
}

func Test_Realloc_GrowPreservesContent(t *testing.T) {
	h, _ := newTestHeap(t)
	c := h.NewCache()

	// Walk one pointer up through every tier.
	p := mustAlloc(t, c, 32)
	fill(p, 32, 1)
	for _, size := range []uintptr{128, 600, 5000, 100000, 300000, 1 << 20} {
		old, _ := header(p)
		q, err := c.Realloc(p, size)
		require.NoError(t, err, "Realloc to %d", size)
		checkFill(t, q, 32, 1)
		got, inUse := header(q)
		require.True(t, inUse)
		require.GreaterOrEqual(t, got, size)
		if old < size {
			fill(q, size, 1)
		}
		p = q
	}
	require.NoError(t, c.Free(p))
	require.NoError(t, h.Verify(c))
}

func Test_Realloc_OldCellFreed(t *testing.T) {
	h, _ := newTestHeap(t)
	c := h.NewCache()

	p := mustAlloc(t, c, 64)
	q, err := c.Realloc(p, 1024)
	require.NoError(t, err)
	require.NotEqual(t, p, q)
	require.ErrorIs(t, c.Free(p), ErrInvalidFree, "old cell must already be free")

	// And it is the next 64-byte cell handed out.
	r := mustAlloc(t, c, 64)
	require.Equal(t, p, r)
}

func Test_Realloc_ShrinkKeepsAddress(t *testing.T) {
	h, _ := newTestHeap(t)
	c := h.NewCache()

	for _, tc := range []struct {
		from, to uintptr
	}{
		{128, 32},
		{128, 128},
		{100, 112}, // still inside the 112-byte class
		{4000, 10},
		{60000, 5000},
	} {
		p := mustAlloc(t, c, tc.from)
		q, err := c.Realloc(p, tc.to)
		require.NoError(t, err)
		require.Equal(t, p, q, "Realloc(%d -> %d)", tc.from, tc.to)
		size, _ := header(q)
		require.Equal(t, Classify(tc.from).Size, size, "capacity stays attached")
		require.NoError(t, c.Free(q))
	}
}

func Test_Realloc_NilAndZero(t *testing.T) {
	h, _ := newTestHeap(t)
	c := h.NewCache()

	p, err := c.Realloc(nil, 48)
	require.NoError(t, err)
	size, inUse := header(p)
	require.Equal(t, uintptr(48), size)
	require.True(t, inUse)

	q, err := c.Realloc(p, 0)
	require.NoError(t, err)
	require.Nil(t, q)
	require.ErrorIs(t, c.Free(p), ErrInvalidFree, "Realloc to 0 frees")

	_, err = c.Realloc(nil, 0)
	require.ErrorIs(t, err, ErrZeroSize)
}

func Test_Realloc_FreedPointer(t *testing.T) {
	h, _ := newTestHeap(t)
	c := h.NewCache()

	p := mustAlloc(t, c, 48)
	require.NoError(t, c.Free(p))
	q, err := c.Realloc(p, 4096)
	require.ErrorIs(t, err, ErrInvalidFree)
	require.Nil(t, q)
	require.NoError(t, c.Verify())
}

func Test_Realloc_FailureKeepsOriginal(t *testing.T) {
	// One arena for the tiny cell, nothing after that.
	h := newFailingHeap(t, 1)
	c := h.NewCache()

	p := mustAlloc(t, c, 32)
	fill(p, 32, 9)

	q, err := c.Realloc(p, 2000)
	require.ErrorIs(t, err, ErrNoMemory)
	require.Nil(t, q)

	size, inUse := header(p)
	require.True(t, inUse, "p must stay allocated")
	require.Equal(t, uintptr(32), size)
	checkFill(t, p, 32, 9)
	require.NoError(t, c.Free(p))
}

func Test_Heap_ReallocPooled(t *testing.T) {
	h, _ := newTestHeap(t)

	p, err := h.Calloc(4, 8)
	require.NoError(t, err)
	*(*uint64)(p) = 42

	q, err := h.Realloc(p, 1<<10)
	require.NoError(t, err)
	require.Equal(t, uint64(42), *(*uint64)(q))
	require.Zero(t, *(*uint64)(unsafe.Add(q, 8)))
	require.NoError(t, h.Free(q))
}
