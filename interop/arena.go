package interop

import (
	"sync"

	"github.com/wippyai/gibind"
	"github.com/wippyai/gibind/errors"
)

// Allocation is one transient native buffer.
type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

// Arena tracks the transient buffers of one call so they can be released
// together once the call completes.
type Arena struct {
	alloc       gibind.Allocator
	allocations []Allocation
}

var arenaPool = sync.Pool{
	New: func() any {
		return &Arena{allocations: make([]Allocation, 0, 8)}
	},
}

const maxPooledArenaCapacity = 128

// NewArena takes an arena from the pool.
func NewArena(alloc gibind.Allocator) *Arena {
	a := arenaPool.Get().(*Arena)
	a.alloc = alloc
	return a
}

// Alloc reserves a zeroed buffer and records it.
func (a *Arena) Alloc(mem gibind.Memory, size, align uint32) (uint32, error) {
	if a.alloc == nil {
		return 0, errors.NilPointer(errors.PhaseRuntime, nil, "allocator")
	}
	if size == 0 {
		size = 1
	}
	ptr, err := a.alloc.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	a.Add(ptr, size, align)
	if err := mem.Write(ptr, make([]byte, size)); err != nil {
		return 0, err
	}
	return ptr, nil
}

// Add records a buffer allocated elsewhere.
func (a *Arena) Add(ptr, size, align uint32) {
	a.allocations = append(a.allocations, Allocation{
		Ptr:   ptr,
		Size:  size,
		Align: align,
	})
}

// Free releases every recorded buffer in reverse order.
func (a *Arena) Free() {
	if a.alloc == nil {
		return
	}
	for i := len(a.allocations) - 1; i >= 0; i-- {
		if al := a.allocations[i]; al.Ptr != 0 {
			a.alloc.Free(al.Ptr, al.Size, al.Align)
		}
	}
	a.allocations = a.allocations[:0]
}

// Count returns the number of recorded buffers.
func (a *Arena) Count() int {
	return len(a.allocations)
}

// Release frees the buffers and returns the arena to the pool. The arena
// must not be used afterwards.
func (a *Arena) Release() {
	a.Free()
	if cap(a.allocations) > maxPooledArenaCapacity {
		return
	}
	a.alloc = nil
	a.allocations = a.allocations[:0]
	arenaPool.Put(a)
}

// BumpAllocator hands out buffers from a fixed region of memory. Free only
// reclaims the most recent allocation.
type BumpAllocator struct {
	mu    sync.Mutex
	next  uint32
	limit uint32
}

// NewBumpAllocator serves allocations from [base, limit).
func NewBumpAllocator(base, limit uint32) *BumpAllocator {
	return &BumpAllocator{next: base, limit: limit}
}

func (b *BumpAllocator) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ptr := (b.next + align - 1) &^ (align - 1)
	if ptr < b.next || uint64(ptr)+uint64(size) > uint64(b.limit) {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	b.next = ptr + size
	return ptr, nil
}

func (b *BumpAllocator) Free(ptr, size, align uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ptr+size == b.next {
		b.next = ptr
	}
}

// Remaining returns the number of free bytes left in the region.
func (b *BumpAllocator) Remaining() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit - b.next
}
