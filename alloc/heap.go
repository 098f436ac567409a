package alloc

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipe/fence"
	"github.com/gogpu/pipe/internal/logging"
)

// DefaultBudgetMB is the default heap budget (256 MB).
const DefaultBudgetMB = 256

// Stats contains heap usage statistics.
type Stats struct {
	// BudgetBytes is the total budget in bytes.
	BudgetBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// PeakBytes is the highest UsedBytes seen.
	PeakBytes uint64

	// Buffers is the number of live buffers.
	Buffers int

	// Failures counts allocations refused for lack of budget.
	Failures uint64
}

// String returns a human-readable string of heap stats.
func (s Stats) String() string {
	return fmt.Sprintf("Heap[%d/%d KB used, peak %d KB, %d buffers, %d failures]",
		s.UsedBytes/1024, s.BudgetBytes/1024, s.PeakBytes/1024, s.Buffers, s.Failures)
}

// Heap is a malloc-style allocator backed by Go memory with a byte budget.
//
// Heap is safe for concurrent use.
type Heap struct {
	mu      sync.Mutex
	budget  uint64
	used    uint64
	peak    uint64
	live    int
	fails   uint64
	address addressSpace
}

// NewHeap creates a heap allocator. A budget of 0 selects DefaultBudgetMB.
func NewHeap(budgetBytes uint64) *Heap {
	if budgetBytes == 0 {
		budgetBytes = DefaultBudgetMB << 20
	}
	return &Heap{budget: budgetBytes}
}

// Allocate implements Allocator. The buffer is zero-filled.
func (h *Heap) Allocate(alignment uint64, usage gputypes.BufferUsage, size uint64) (Buffer, error) {
	if err := checkRequest(alignment, size); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.used+size > h.budget {
		h.fails++
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: need %d bytes, have %d bytes available",
			ErrOutOfMemory, size, h.budget-h.used)
	}
	h.used += size
	h.peak = max(h.peak, h.used)
	h.live++
	h.mu.Unlock()

	b := &heapBuffer{
		heap:  h,
		data:  make([]byte, size),
		usage: usage,
		addr:  h.address.assign(alignment, size),
	}
	logging.Logger().Debug("alloc: heap buffer", "size", size, "addr", b.addr)
	return b, nil
}

// Stats returns current usage statistics.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		BudgetBytes: h.budget,
		UsedBytes:   h.used,
		PeakBytes:   h.peak,
		Buffers:     h.live,
		Failures:    h.fails,
	}
}

func (h *Heap) release(size uint64) {
	h.mu.Lock()
	h.used -= size
	h.live--
	h.mu.Unlock()
}

type heapBuffer struct {
	state
	heap  *Heap
	data  []byte
	usage gputypes.BufferUsage
	addr  uint64
}

func (b *heapBuffer) Size() uint64                { return uint64(len(b.data)) }
func (b *heapBuffer) Usage() gputypes.BufferUsage { return b.usage }
func (b *heapBuffer) Address() uint64             { return b.addr }
func (b *heapBuffer) Fence(f fence.Fence)         { b.setFence(f) }

func (b *heapBuffer) Map(access Access) ([]byte, error) {
	if err := b.beginMap(access); err != nil {
		return nil, err
	}
	return b.data, nil
}

func (b *heapBuffer) Unmap() error { return b.endMap() }

func (b *heapBuffer) Destroy() {
	if b.markDestroyed() {
		b.heap.release(uint64(len(b.data)))
		b.data = nil
	}
}
