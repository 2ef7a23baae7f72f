// Package arena implements the kernel's bootstrap memory allocator. An Arena
// owns a single contiguous physical region and hands out non-overlapping
// byte ranges from it.
//
// Allocations are carved with a bump pointer. Ranges returned via Free are
// kept in a small fixed-size hole list and reused first-fit; a freed range
// that touches the bump pointer rolls it back instead. The allocator never
// uses the Go heap so it can run before any other memory management exists.
//
// Bookkeeping updates run with interrupts masked: the interrupt handlers
// allocate scratch buffers from the same arena as the code they interrupt.
package arena

import (
	"unsafe"

	"zipos/kernel"
	"zipos/kernel/mem"
	"zipos/kernel/sync"
)

// maxHoles is the capacity of the free-range list.
const maxHoles = 32

var (
	// ErrOutOfMemory is returned when the region has no range that can
	// satisfy a request.
	ErrOutOfMemory = &kernel.Error{Module: "arena", Message: "out of memory", Kind: kernel.KindOutOfMemory}

	// ErrFreeListFull is returned by Free when the range cannot be merged
	// with a neighbour and the hole list has no free slot.
	ErrFreeListFull = &kernel.Error{Module: "arena", Message: "free list is full", Kind: kernel.KindOutOfMemory}

	// ErrInvalidSize is returned for zero-sized requests.
	ErrInvalidSize = &kernel.Error{Module: "arena", Message: "allocation size must be greater than zero", Kind: kernel.KindInvalidArgument}

	// ErrInvalidAlignment is returned when the alignment is not a power of two.
	ErrInvalidAlignment = &kernel.Error{Module: "arena", Message: "alignment must be a power of two", Kind: kernel.KindInvalidArgument}

	// ErrInvalidRegion is returned by Init for empty or wrapping regions.
	ErrInvalidRegion = &kernel.Error{Module: "arena", Message: "region is empty or wraps the address space", Kind: kernel.KindInvalidArgument}

	// ErrNotAllocated is returned by Free for ranges that are not live
	// allocations of this arena.
	ErrNotAllocated = &kernel.Error{Module: "arena", Message: "range is not a live allocation", Kind: kernel.KindInvalidArgument}

	// guardAcquireFn and guardReleaseFn are mocked by tests.
	guardAcquireFn = (*sync.IRQGuard).Acquire
	guardReleaseFn = (*sync.IRQGuard).Release
)

// Allocation describes the byte range [Addr, Addr+Size) owned by whoever
// requested it.
type Allocation struct {
	Addr uintptr
	Size mem.Size
}

// End returns the address right past the last byte of the allocation.
func (a Allocation) End() uintptr {
	return a.Addr + uintptr(a.Size)
}

// Overlaps reports whether a and b share at least one byte.
func (a Allocation) Overlaps(b Allocation) bool {
	return a.Size != 0 && b.Size != 0 && a.Addr < b.End() && b.Addr < a.End()
}

// Bytes returns a slice that overlays the allocation. The contents are
// whatever the memory held before unless the allocation came from
// AllocZeroed.
func (a Allocation) Bytes() []byte {
	if a.Size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(a.Addr)), a.Size)
}

// Stats is a snapshot of the arena's bookkeeping.
type Stats struct {
	Base        uintptr
	Size        mem.Size
	InUse       mem.Size
	Available   mem.Size
	Holes       int
	Allocations uint64
}

// Arena manages one region of memory. The zero value has an empty region and
// fails every allocation with ErrOutOfMemory until Init is called.
type Arena struct {
	base, end uintptr

	// next is the bump pointer; everything in [next, end) is unused.
	next uintptr

	// holes lists freed ranges below next sorted by address. Adjacent
	// holes are always merged.
	holes     [maxHoles]Allocation
	holeCount int

	inUse      mem.Size
	allocCount uint64
}

// Init hands the region [base, base+size) to the arena and resets its state.
// The caller guarantees that nothing else uses the region afterwards.
func (a *Arena) Init(base uintptr, size mem.Size) *kernel.Error {
	end := base + uintptr(size)
	if size == 0 || end < base {
		return ErrInvalidRegion
	}

	var guard sync.IRQGuard
	guardAcquireFn(&guard)
	defer guardReleaseFn(&guard)

	*a = Arena{base: base, end: end, next: base}
	return nil
}

// Alloc reserves size bytes aligned to align (0 is treated as 1). Freed holes
// are tried first-fit before advancing the bump pointer. The returned memory
// is not zeroed.
//
// On failure ErrOutOfMemory is returned and the arena state is left
// untouched.
func (a *Arena) Alloc(size mem.Size, align mem.Size) (Allocation, *kernel.Error) {
	if size == 0 {
		return Allocation{}, ErrInvalidSize
	}
	if align == 0 {
		align = 1
	}
	if !align.IsPowerOfTwo() {
		return Allocation{}, ErrInvalidAlignment
	}

	var guard sync.IRQGuard
	guardAcquireFn(&guard)
	defer guardReleaseFn(&guard)

	for i := 0; i < a.holeCount; i++ {
		if alloc, ok := a.carveHole(i, size, align); ok {
			a.inUse += size
			a.allocCount++
			return alloc, nil
		}
	}

	start, ok := mem.AlignUp(a.next, align)
	if !ok || start > a.end || uintptr(size) > a.end-start {
		return Allocation{}, ErrOutOfMemory
	}

	// The padding skipped for alignment is kept as a hole when possible so
	// that later byte-aligned requests can use it.
	if start != a.next && a.holeCount < maxHoles {
		a.insertHole(Allocation{Addr: a.next, Size: mem.Size(start - a.next)})
	}

	a.next = start + uintptr(size)
	a.inUse += size
	a.allocCount++
	return Allocation{Addr: start, Size: size}, nil
}

// AllocZeroed behaves like Alloc but clears the returned memory.
func (a *Arena) AllocZeroed(size mem.Size, align mem.Size) (Allocation, *kernel.Error) {
	alloc, err := a.Alloc(size, align)
	if err != nil {
		return alloc, err
	}

	kernel.Memset(alloc.Addr, 0, uintptr(alloc.Size))
	return alloc, nil
}

// Free returns a live allocation to the arena. Bootstrap code never frees;
// this exists for short-lived buffers such as interrupt diagnostics.
func (a *Arena) Free(alloc Allocation) *kernel.Error {
	if alloc.Size == 0 || alloc.Addr < a.base || alloc.End() > a.next || alloc.End() < alloc.Addr {
		return ErrNotAllocated
	}

	var guard sync.IRQGuard
	guardAcquireFn(&guard)
	defer guardReleaseFn(&guard)

	for i := 0; i < a.holeCount; i++ {
		if a.holes[i].Overlaps(alloc) {
			return ErrNotAllocated
		}
	}

	if alloc.End() == a.next {
		a.next = alloc.Addr
		// Swallow a hole that now touches the bump pointer. Holes are
		// merged, so at most one can.
		if a.holeCount != 0 && a.holes[a.holeCount-1].End() == a.next {
			a.next = a.holes[a.holeCount-1].Addr
			a.holeCount--
		}
	} else if !a.insertHole(alloc) {
		return ErrFreeListFull
	}

	a.inUse -= alloc.Size
	return nil
}

// Stats returns a snapshot of the arena's bookkeeping.
func (a *Arena) Stats() Stats {
	stats := Stats{
		Base:        a.base,
		Size:        mem.Size(a.end - a.base),
		InUse:       a.inUse,
		Available:   mem.Size(a.end - a.next),
		Holes:       a.holeCount,
		Allocations: a.allocCount,
	}

	for i := 0; i < a.holeCount; i++ {
		stats.Available += a.holes[i].Size
	}

	return stats
}

// carveHole tries to satisfy a request from hole i. The parts of the hole
// left over before and after the carved range stay in the list.
func (a *Arena) carveHole(i int, size, align mem.Size) (Allocation, bool) {
	h := a.holes[i]

	start, ok := mem.AlignUp(h.Addr, align)
	if !ok || start >= h.End() || uintptr(size) > h.End()-start {
		return Allocation{}, false
	}

	alloc := Allocation{Addr: start, Size: size}
	head := Allocation{Addr: h.Addr, Size: mem.Size(start - h.Addr)}
	tail := Allocation{Addr: alloc.End(), Size: mem.Size(h.End() - alloc.End())}

	switch {
	case head.Size != 0 && tail.Size != 0:
		if a.holeCount == maxHoles {
			return Allocation{}, false
		}
		a.holes[i] = head
		a.insertHole(tail)
	case head.Size != 0:
		a.holes[i] = head
	case tail.Size != 0:
		a.holes[i] = tail
	default:
		a.removeHole(i)
	}

	return alloc, true
}

// insertHole adds r to the sorted hole list merging it with its neighbours.
// It returns false if r could not be merged and the list is full.
func (a *Arena) insertHole(r Allocation) bool {
	pos := 0
	for pos < a.holeCount && a.holes[pos].Addr < r.Addr {
		pos++
	}

	mergePrev := pos > 0 && a.holes[pos-1].End() == r.Addr
	mergeNext := pos < a.holeCount && r.End() == a.holes[pos].Addr

	switch {
	case mergePrev && mergeNext:
		a.holes[pos-1].Size += r.Size + a.holes[pos].Size
		a.removeHole(pos)
	case mergePrev:
		a.holes[pos-1].Size += r.Size
	case mergeNext:
		a.holes[pos].Addr = r.Addr
		a.holes[pos].Size += r.Size
	default:
		if a.holeCount == maxHoles {
			return false
		}
		copy(a.holes[pos+1:a.holeCount+1], a.holes[pos:a.holeCount])
		a.holes[pos] = r
		a.holeCount++
	}

	return true
}

func (a *Arena) removeHole(i int) {
	copy(a.holes[i:a.holeCount-1], a.holes[i+1:a.holeCount])
	a.holeCount--
}
