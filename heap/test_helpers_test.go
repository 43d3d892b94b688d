package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/tcheap/internal/testutil"
)

// newTestHeap returns a heap over a recording provider that is closed when
// the test ends.
func newTestHeap(t testing.TB) (*Heap, *testutil.RecordingProvider) {
	t.Helper()
	rp := testutil.NewRecordingProvider()
	h := New(Options{Provider: rp})
	t.Cleanup(func() {
		require.NoError(t, h.Close())
	})
	return h, rp
}

// newFailingHeap returns a heap whose provider fails after budget
// successful reservations.
func newFailingHeap(t testing.TB, budget int) *Heap {
	t.Helper()
	h := New(Options{Provider: testutil.NewFailingProvider(budget)})
	t.Cleanup(func() {
		require.NoError(t, h.Close())
	})
	return h
}

// mustAlloc allocates from c and fails the test on error.
func mustAlloc(t testing.TB, c *Cache, size uintptr) unsafe.Pointer {
	t.Helper()
	p, err := c.Alloc(size)
	require.NoError(t, err, "Alloc(%d)", size)
	require.NotNil(t, p, "Alloc(%d)", size)
	return p
}

// fill writes a byte pattern derived from seed over n bytes at p.
func fill(p unsafe.Pointer, n uintptr, seed byte) {
	b := Bytes(p, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
}

// checkFill verifies a pattern written by fill.
func checkFill(t testing.TB, p unsafe.Pointer, n uintptr, seed byte) {
	t.Helper()
	b := Bytes(p, n)
	for i := range b {
		if b[i] != seed+byte(i) {
			t.Fatalf("byte %d at %p: got 0x%x want 0x%x", i, p, b[i], seed+byte(i))
		}
	}
}

// header exposes the raw header fields for assertions.
func header(p unsafe.Pointer) (size uintptr, inUse bool) {
	cl := cellOf(p)
	return cl.size, cl.link == linkInUse
}
