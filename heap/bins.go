package heap

import (
	"golang.org/x/sys/cpu"

	"github.com/joshuapare/tcheap/internal/spin"
)

// bin is the process-wide free chain for one (tier, class). Every field is
// guarded by lock. Bins are padded so neighbouring classes do not share a
// cache line under contention.
type bin struct {
	lock spin.Lock
	head *cell
	n    int
	_    cpu.CacheLinePad
}

// take detaches up to limit cells. Caller holds b.lock.
func (b *bin) take(limit int) chain {
	ch := detach(&b.head, limit)
	b.n -= ch.n
	return ch
}

// put splices ch in front of the bin. Caller holds b.lock.
func (b *bin) put(ch chain) {
	prepend(&b.head, ch)
	b.n += ch.n
}

// length returns the tracked chain length under the bin lock.
func (b *bin) length() int {
	b.lock.Lock()
	n := b.n
	b.lock.Unlock()
	return n
}
