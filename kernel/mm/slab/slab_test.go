package slab

import (
	"testing"
	"unsafe"
)

// resetForTest clears package-level allocator state between test cases.
// Tests are white-box (same package) since Init is designed to run exactly
// once for the kernel's entire uptime.
func resetForTest() {
	initialized = false
	for i := range classes {
		classes[i] = class{}
	}
	bumpStart, bumpEnd, bumpCursor = 0, 0, 0
	allocCount, freeCount, bumpAllocCount = 0, 0, 0
}

func backingRegion(t *testing.T, size uintptr) uintptr {
	t.Helper()
	buf := make([]byte, size+16)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	// Keep the slice alive for the duration of the test by never letting it
	// go out of scope until t is done.
	t.Cleanup(func() { _ = buf[0] })
	return (addr + 15) &^ 15
}

func TestInitRejectsDoubleInit(t *testing.T) {
	resetForTest()
	region := backingRegion(t, 1<<16)

	if err := Init(region, 1<<16); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Init(region, 1<<16); err != errAlreadyInitialized {
		t.Fatalf("expected errAlreadyInitialized; got %v", err)
	}
}

func TestAllocBeforeInitFails(t *testing.T) {
	resetForTest()
	if _, err := Alloc(8); err != errNotInitialized {
		t.Fatalf("expected errNotInitialized; got %v", err)
	}
}

func TestAllocReturnsDistinctPointersWithinClass(t *testing.T) {
	resetForTest()
	region := backingRegion(t, 1<<16)
	if err := Init(region, 1<<16); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[uintptr]bool{}
	for i := 0; i < 32; i++ {
		ptr, err := Alloc(8)
		if err != nil {
			t.Fatalf("alloc %d failed: %v", i, err)
		}
		addr := uintptr(ptr)
		if seen[addr] {
			t.Fatalf("alloc %d returned a pointer already handed out: %#x", i, addr)
		}
		seen[addr] = true
	}
}

func TestFreeThenAllocReusesBlock(t *testing.T) {
	resetForTest()
	region := backingRegion(t, 1<<16)
	if err := Init(region, 1<<16); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := Alloc(16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Free(first, 16)

	second, err := Alloc(16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Fatalf("expected the freed block to be reused: first=%p second=%p", first, second)
	}
}

func TestAllocRoundsUpToNextClass(t *testing.T) {
	resetForTest()
	region := backingRegion(t, 1<<16)
	if err := Init(region, 1<<16); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ptr, err := Alloc(20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ptr == nil {
		t.Fatal("expected a non-nil pointer")
	}
}

func TestAllocAboveLargestClassUsesBumpRegion(t *testing.T) {
	resetForTest()
	region := backingRegion(t, 1<<20)
	if err := Init(region, 1<<20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ptr, err := Alloc(8192)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uintptr(ptr) < bumpStart || uintptr(ptr) >= bumpEnd {
		t.Fatalf("expected bump-region pointer; got %#x (bump=[%#x,%#x))", ptr, bumpStart, bumpEnd)
	}

	// Bump allocations cannot be freed; Free must be a harmless no-op.
	Free(ptr, 8192)
	snap := Snapshot()
	if snap.BumpAllocs != 1 {
		t.Fatalf("expected 1 bump allocation recorded; got %d", snap.BumpAllocs)
	}
}

func TestBumpRegionExhaustion(t *testing.T) {
	resetForTest()
	region := backingRegion(t, 1<<14)
	if err := Init(region, 1<<14); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := Alloc(1 << 20); err != errBumpExhausted {
		t.Fatalf("expected errBumpExhausted; got %v", err)
	}
}

func TestRegionTooSmallForAnyClass(t *testing.T) {
	resetForTest()
	region := backingRegion(t, 4)
	if err := Init(region, 4); err != errRegionTooSmall {
		t.Fatalf("expected errRegionTooSmall; got %v", err)
	}
}

func TestSnapshotTracksAllocsAndFrees(t *testing.T) {
	resetForTest()
	region := backingRegion(t, 1<<16)
	if err := Init(region, 1<<16); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ptr, _ := Alloc(8)
	Free(ptr, 8)

	snap := Snapshot()
	if snap.Allocs != 1 || snap.Frees != 1 {
		t.Fatalf("expected 1 alloc and 1 free; got %+v", snap)
	}
}
