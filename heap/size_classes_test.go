package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Classify(t *testing.T) {
	cases := []struct {
		size  uintptr
		tier  Tier
		index int
		class uintptr
	}{
		{0, Tiny, -1, 0},
		{1, Tiny, 0, 16},
		{33, Tiny, 2, 48},
		{512, Tiny, 31, 512},
		{513, Small, 4, 640},
		{4096, Small, 31, 4096},
		{4097, Mid, 1, 8192},
		{MidMax, Mid, 31, MidMax},
		{MidMax + 1, Large, -1, MidMax + 16},
		{1 << 30, Large, -1, 1 << 30},
	}
	for _, tc := range cases {
		got := Classify(tc.size)
		assert.Equal(t, tc.tier, got.Tier, "tier of %d", tc.size)
		assert.Equal(t, tc.index, got.Index, "index of %d", tc.size)
		assert.Equal(t, tc.class, got.Size, "class size of %d", tc.size)
	}
}

func Test_ValidCellSize(t *testing.T) {
	for _, d := range Classes() {
		assert.True(t, validCellSize(d.Size), "%d", d.Size)
	}
	for _, s := range []uintptr{0, 8, 520, 656, 4112, 8208, MidMax + 16} {
		assert.False(t, validCellSize(s), "%d", s)
	}
}

func Test_Classes(t *testing.T) {
	rows := Classes()

	// 32 tiny, 28 small above 512, 31 mid above 4096.
	require.Len(t, rows, 32+28+31)

	first := rows[0]
	require.Equal(t, Tiny, first.Tier)
	require.Equal(t, uintptr(1), first.MinRequest)
	require.Equal(t, uintptr(16), first.Size)

	lo := uintptr(1)
	var firstSmall, firstMid *ClassDesc
	for i := range rows {
		r := &rows[i]
		require.Equal(t, lo, r.MinRequest, "row %d must start where the previous ended", i)
		require.GreaterOrEqual(t, r.Size, r.MinRequest)
		require.Equal(t, Classify(r.MinRequest), r.ClassInfo)
		require.Equal(t, Classify(r.Size), r.ClassInfo)
		require.Positive(t, r.CellsPerArena)
		lo = r.Size + 1

		if r.Tier == Small && firstSmall == nil {
			firstSmall = r
		}
		if r.Tier == Mid && firstMid == nil {
			firstMid = r
		}
	}
	require.Equal(t, uintptr(MidMax+1), lo)

	require.NotNil(t, firstSmall)
	require.Equal(t, uintptr(513), firstSmall.MinRequest)
	require.Equal(t, uintptr(640), firstSmall.Size)
	require.NotNil(t, firstMid)
	require.Equal(t, uintptr(4097), firstMid.MinRequest)
	require.Equal(t, uintptr(8192), firstMid.Size)
	require.Equal(t, 2000000/(int(HeaderSize)+8192), firstMid.CellsPerArena)
}
