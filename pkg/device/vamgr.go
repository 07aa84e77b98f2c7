package device

import (
	"fmt"
	"sync"
)

// vaRange is a contiguous span of free GPU virtual address space.
type vaRange struct {
	base uint64
	size uint64
}

// vaAllocator hands out GPU virtual address ranges from the window the
// kernel reports for the process VM. First fit from the low end, so
// freed ranges are reused before the window grows upward.
type vaAllocator struct {
	mu       sync.Mutex
	minAlign uint64
	free     []vaRange
}

func newVaAllocator(base, limit, minAlign uint64) *vaAllocator {
	if minAlign == 0 {
		minAlign = 4096
	}
	a := &vaAllocator{minAlign: minAlign}
	if limit > base {
		a.free = []vaRange{{base: base, size: limit - base}}
	}
	return a
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// alloc carves a size-byte range aligned to at least the allocator
// minimum. Returns the base address of the range.
func (a *vaAllocator) alloc(size, align uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("zero-size address range")
	}
	if align < a.minAlign {
		align = a.minAlign
	}
	size = alignUp(size, a.minAlign)

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, r := range a.free {
		base := alignUp(r.base, align)
		pad := base - r.base
		if r.size < pad || r.size-pad < size {
			continue
		}

		// Carve [base, base+size) out of r; the slack before and
		// after stays on the free list.
		var pieces []vaRange
		if pad > 0 {
			pieces = append(pieces, vaRange{base: r.base, size: pad})
		}
		if rest := r.size - pad - size; rest > 0 {
			pieces = append(pieces, vaRange{base: base + size, size: rest})
		}
		a.free = append(a.free[:i], append(pieces, a.free[i+1:]...)...)
		return base, nil
	}
	return 0, ErrNoVaSpace
}

// release returns a range obtained from alloc. Adjacent free ranges are
// merged so the window does not fragment over long runs.
func (a *vaAllocator) release(base, size uint64) {
	size = alignUp(size, a.minAlign)

	a.mu.Lock()
	defer a.mu.Unlock()

	// Insert sorted by base.
	i := 0
	for i < len(a.free) && a.free[i].base < base {
		i++
	}
	a.free = append(a.free, vaRange{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = vaRange{base: base, size: size}

	// Merge with the right neighbor, then the left.
	if i+1 < len(a.free) && a.free[i].base+a.free[i].size == a.free[i+1].base {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].base+a.free[i-1].size == a.free[i].base {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// freeBytes reports the total unallocated space, for diagnostics.
func (a *vaAllocator) freeBytes() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total uint64
	for _, r := range a.free {
		total += r.size
	}
	return total
}
