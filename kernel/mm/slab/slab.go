// Package slab implements the kernel's global heap (spec.md §4.3): a
// fixed size-class freelist allocator over the first half of a single
// contiguous region handed to it at boot, plus a bump allocator over the
// second half for larger requests. It is grounded on the teacher's
// kernel/mem/pmm/allocator bump/bootmem allocator (Init from a single
// region, a monotonically advancing cursor, no reclaim for the overflow
// path) generalized into the fixed-class freelist array spec.md requires.
package slab

import (
	"unsafe"

	"duskos/kernel"
	"duskos/kernel/cpu"
)

var (
	errAlreadyInitialized = &kernel.Error{Module: "slab", Message: "slab heap already initialized"}
	errNotInitialized     = &kernel.Error{Module: "slab", Message: "slab heap not initialized"}
	errRegionTooSmall     = &kernel.Error{Module: "slab", Message: "backing region too small for any size class"}
	errOutOfMemory        = &kernel.Error{Module: "slab", Message: "slab heap exhausted"}
	errBumpExhausted      = &kernel.Error{Module: "slab", Message: "bump region exhausted"}
)

// classSizes enumerates the fixed size classes spec.md §4.3 names, smallest
// first. freeNode.next is an intrusive pointer stored in the first 8 bytes
// of the block itself, so 8 is the smallest class the scheme supports.
var classSizes = [...]uintptr{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// freeNode is the intrusive LIFO freelist node overlaid onto a free block's
// own storage; a block only ever holds a freeNode while it is on the
// freelist, never while allocated.
type freeNode struct {
	next *freeNode
}

// class holds one size class's freelist head.
type class struct {
	size uintptr
	head *freeNode
}

var (
	initialized bool

	classes [len(classSizes)]class

	bumpStart, bumpEnd, bumpCursor uintptr

	// stats mirror the scheduler/heap statistics exposed by spec.md §7's
	// diagnostics surface.
	allocCount, freeCount, bumpAllocCount uint64
)

// Init carves [start, start+size) into the fixed size-class freelists
// (first half) and the bump region (second half), per spec.md §4.3. It must
// be called exactly once, after paging.Build has established the direct
// physical map that backs start (Init operates purely on virtual addresses
// supplied by the caller).
func Init(start, size uintptr) *kernel.Error {
	if initialized {
		return errAlreadyInitialized
	}

	half := size / 2
	if half < classSizes[0] {
		return errRegionTooSmall
	}

	cursor := start
	classHalfEnd := start + half
	// Partition the first half evenly across size classes; a class that
	// cannot fit even one block is left empty rather than failing Init,
	// since larger classes will still be usable.
	perClass := half / uintptr(len(classSizes))

	for i, sz := range classSizes {
		classes[i] = class{size: sz}
		regionEnd := cursor + perClass
		if regionEnd > classHalfEnd {
			regionEnd = classHalfEnd
		}

		for p := cursor; p+sz <= regionEnd; p += sz {
			node := (*freeNode)(unsafe.Pointer(p))
			node.next = classes[i].head
			classes[i].head = node
		}
		cursor = regionEnd
	}

	bumpStart = start + half
	bumpEnd = start + size
	bumpCursor = bumpStart

	initialized = true
	return nil
}

// classFor returns the index of the smallest class size that satisfies
// size, or -1 if size exceeds the largest class (4096 bytes).
func classFor(size uintptr) int {
	for i, sz := range classSizes {
		if size <= sz {
			return i
		}
	}
	return -1
}

// Alloc returns a pointer to a zero-initialized block of at least size
// bytes. Requests over 4096 bytes are served from the bump region and can
// never be freed (spec.md §4.3's documented limitation).
func Alloc(size uintptr) (unsafe.Pointer, *kernel.Error) {
	if !initialized {
		return nil, errNotInitialized
	}
	if size == 0 {
		size = 1
	}

	idx := classFor(size)
	if idx < 0 {
		return bumpAlloc(size)
	}

	var ptr unsafe.Pointer
	cpu.WithoutInterrupts(func() {
		c := &classes[idx]
		if c.head == nil {
			ptr = nil
			return
		}
		node := c.head
		c.head = node.next
		allocCount++
		ptr = unsafe.Pointer(node)
	})

	if ptr == nil {
		// The requested class is exhausted; fall through to the next
		// larger class rather than failing outright.
		for i := idx + 1; i < len(classes); i++ {
			cpu.WithoutInterrupts(func() {
				c := &classes[i]
				if c.head == nil {
					return
				}
				node := c.head
				c.head = node.next
				allocCount++
				ptr = unsafe.Pointer(node)
			})
			if ptr != nil {
				break
			}
		}
	}

	if ptr == nil {
		return nil, errOutOfMemory
	}

	zero(ptr, classes[idx].size)
	return ptr, nil
}

// Free returns a previously allocated block to its size class's freelist.
// Free is a no-op (not an error) for bump-region pointers, matching
// spec.md §4.3's "cannot be freed" limitation for large allocations.
func Free(ptr unsafe.Pointer, size uintptr) {
	addr := uintptr(ptr)
	if addr >= bumpStart && addr < bumpEnd {
		return
	}

	idx := classFor(size)
	if idx < 0 {
		return
	}

	cpu.WithoutInterrupts(func() {
		node := (*freeNode)(ptr)
		node.next = classes[idx].head
		classes[idx].head = node
		freeCount++
	})
}

// bumpAlloc advances the bump cursor by size, aligned to 16 bytes, per
// spec.md §4.3's "cannot be freed" overflow path.
func bumpAlloc(size uintptr) (unsafe.Pointer, *kernel.Error) {
	var ptr unsafe.Pointer
	var failed bool

	cpu.WithoutInterrupts(func() {
		aligned := (bumpCursor + 15) &^ 15
		if aligned+size > bumpEnd {
			failed = true
			return
		}
		bumpCursor = aligned + size
		bumpAllocCount++
		ptr = unsafe.Pointer(aligned)
	})

	if failed {
		return nil, errBumpExhausted
	}
	zero(ptr, size)
	return ptr, nil
}

func zero(ptr unsafe.Pointer, size uintptr) {
	kernel.Memset(uintptr(ptr), 0, size)
}

// Stats reports cumulative allocator activity for the diagnostics surface
// spec.md §7 calls for.
type Stats struct {
	Allocs     uint64
	Frees      uint64
	BumpAllocs uint64
}

// Snapshot returns the current allocator statistics.
func Snapshot() Stats {
	return Stats{Allocs: allocCount, Frees: freeCount, BumpAllocs: bumpAllocCount}
}
