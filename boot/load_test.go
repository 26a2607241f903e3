package boot

import (
	"testing"
	"unsafe"

	"duskos/boot/uefi"
	"duskos/kernel"
	"duskos/kernel/bootinfo"
	"duskos/kernel/mm/paging"
)

var errTest = &kernel.Error{Module: "test", Message: "injected failure"}

type fakeGOP struct {
	mode uefi.FramebufferInfo
	fail bool
}

func (f *fakeGOP) CurrentMode() (uefi.FramebufferInfo, *kernel.Error) {
	if f.fail {
		return uefi.FramebufferInfo{}, errTest
	}
	return f.mode, nil
}

type fakeFileHandle struct{}

func (fakeFileHandle) Read(buf []byte) (int, *kernel.Error) { return 0, nil }
func (fakeFileHandle) Close()                                {}

type fakeFS struct {
	fail bool
}

func (f *fakeFS) OpenFile(path string) (uefi.FileHandle, *kernel.Error) {
	if f.fail {
		return nil, errTest
	}
	return fakeFileHandle{}, nil
}

type fakeBootServices struct {
	descriptors []uefi.MemoryDescriptor
	mapKeyCalls int
	rsdpAddr    uintptr
	failRSDP    bool
	failExit    bool
}

func (b *fakeBootServices) GetMemoryMap() (uefi.MemoryMap, *kernel.Error) {
	b.mapKeyCalls++
	return uefi.MemoryMap{Descriptors: b.descriptors, MapKey: uintptr(b.mapKeyCalls)}, nil
}

func (b *fakeBootServices) LocateRSDP() (uintptr, *kernel.Error) {
	if b.failRSDP {
		return 0, errTest
	}
	return b.rsdpAddr, nil
}

func (b *fakeBootServices) ExitBootServices(mapKey uintptr) *kernel.Error {
	if b.failExit {
		return errTest
	}
	if mapKey != uintptr(b.mapKeyCalls) {
		return errTest
	}
	return nil
}

// identityTableAddr stands in for resolving a static Go variable's
// address to a "physical" address during tests: the test process's own
// memory plays the role of physical memory.
func identityTableAddr(t *paging.Table) uintptr {
	return uintptr(unsafe.Pointer(t))
}

func noopZeroRange(physAddr uintptr, n uint64)                          {}
func noopCopyRange(physAddr uintptr, file []byte, off uint64, n uint64) {}

func defaultLoadArgs() (*fakeGOP, *fakeFS, *fakeBootServices) {
	gop := &fakeGOP{mode: uefi.FramebufferInfo{Base: 0xE0000000, Size: 0x400000, Width: 1024, Height: 768, PixelsPerScanLine: 1024}}
	fs := &fakeFS{}
	bs := &fakeBootServices{
		rsdpAddr: 0x7FE10000,
		descriptors: []uefi.MemoryDescriptor{
			{PhysicalStart: 0, NumberOfPages: 256, Kind: bootinfo.RegionConventional},
			{PhysicalStart: 0x100000000, NumberOfPages: 16, Kind: bootinfo.RegionMmio},
		},
	}
	return gop, fs, bs
}

func readFixedELF(elfBytes []byte) func(uefi.FileHandle) ([]byte, *kernel.Error) {
	return func(uefi.FileHandle) ([]byte, *kernel.Error) {
		return elfBytes, nil
	}
}

func TestLoadFailsWhenGraphicsOutputProtocolUnavailable(t *testing.T) {
	gop, fs, bs := defaultLoadArgs()
	gop.fail = true

	_, err := Load(gop, fs, bs, "kernel.elf", readFixedELF(nil), noopZeroRange, noopCopyRange, identityTableAddr, func(uintptr) {})
	if err != errFramebufferUnavailable {
		t.Fatalf("expected errFramebufferUnavailable; got %v", err)
	}
}

func TestLoadFailsWhenKernelFileCannotBeOpened(t *testing.T) {
	gop, fs, bs := defaultLoadArgs()
	fs.fail = true

	_, err := Load(gop, fs, bs, "kernel.elf", readFixedELF(nil), noopZeroRange, noopCopyRange, identityTableAddr, func(uintptr) {})
	if err != errTest {
		t.Fatalf("expected the filesystem's own error to propagate; got %v", err)
	}
}

func TestLoadFailsOnInvalidELF(t *testing.T) {
	gop, fs, bs := defaultLoadArgs()

	_, err := Load(gop, fs, bs, "kernel.elf", readFixedELF([]byte("not an elf")), noopZeroRange, noopCopyRange, identityTableAddr, func(uintptr) {})
	if err == nil {
		t.Fatal("expected an error for invalid ELF content")
	}
}

func TestLoadPopulatesBootInfoAndCopiesSegments(t *testing.T) {
	gop, fs, bs := defaultLoadArgs()

	payload := []byte{1, 2, 3, 4}
	elfBytes := buildMinimalELFForBootTest(0x500000, 0x1000, 0x500000, payload)

	var copied []byte
	var zeroedAt uintptr
	var zeroedLen uint64
	copyRange := func(physAddr uintptr, file []byte, off, n uint64) {
		copied = append(copied, file[off:off+n]...)
	}
	zeroRange := func(physAddr uintptr, n uint64) {
		zeroedAt = physAddr
		zeroedLen = n
	}

	loaded, err := Load(gop, fs, bs, "kernel.elf", readFixedELF(elfBytes), zeroRange, copyRange, identityTableAddr, func(uintptr) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if loaded.Info.Framebuffer.Width != 1024 || loaded.Info.Framebuffer.Height != 768 {
		t.Fatalf("unexpected framebuffer dims: %+v", loaded.Info.Framebuffer)
	}
	if loaded.Info.RSDPPhysAddr != 0x7FE10000 {
		t.Fatalf("expected RSDP 0x7FE10000; got %#x", loaded.Info.RSDPPhysAddr)
	}
	if loaded.Info.MemoryMapCount != 2 {
		t.Fatalf("expected 2 memory regions; got %d", loaded.Info.MemoryMapCount)
	}
	if loaded.Info.MaxPhysicalAddress != 256*4096 {
		t.Fatalf("expected max phys addr from the Conventional region only; got %#x", loaded.Info.MaxPhysicalAddress)
	}
	if string(copied) != string(payload) {
		t.Fatalf("expected segment payload to be copied; got %v", copied)
	}
	if zeroedLen != 16 {
		t.Fatalf("expected 16 bytes of BSS zeroed; got %d", zeroedLen)
	}
	if zeroedAt != 0x500000+uintptr(len(payload)) {
		t.Fatalf("unexpected BSS zero start: %#x", zeroedAt)
	}
	vaddr, paddr := uint64(0x1000), uint64(0x500000)
	if loaded.LoadDelta != vaddr-paddr {
		t.Fatalf("unexpected load delta: %#x", loaded.LoadDelta)
	}
	if bs.mapKeyCalls != 2 {
		t.Fatalf("expected the memory map to be fetched twice; got %d", bs.mapKeyCalls)
	}
}

func TestLoadFailsWhenExitBootServicesRejectsMapKey(t *testing.T) {
	gop, fs, bs := defaultLoadArgs()
	bs.failExit = true

	elfBytes := buildMinimalELFForBootTest(0x1000, 0x1000, 0x1000, []byte{1, 2})
	_, err := Load(gop, fs, bs, "kernel.elf", readFixedELF(elfBytes), noopZeroRange, noopCopyRange, identityTableAddr, func(uintptr) {})
	if err != errExitBootServicesFailed {
		t.Fatalf("expected errExitBootServicesFailed; got %v", err)
	}
}

func TestLoadFailsWhenMemoryMapExceedsCapacity(t *testing.T) {
	gop, fs, bs := defaultLoadArgs()
	bs.descriptors = make([]uefi.MemoryDescriptor, bootinfo.MaxMemoryRegions+1)

	elfBytes := buildMinimalELFForBootTest(0x1000, 0x1000, 0x1000, []byte{1, 2})
	_, err := Load(gop, fs, bs, "kernel.elf", readFixedELF(elfBytes), noopZeroRange, noopCopyRange, identityTableAddr, func(uintptr) {})
	if err != errMemoryMapOverflow {
		t.Fatalf("expected errMemoryMapOverflow; got %v", err)
	}
}

// buildMinimalELFForBootTest mirrors boot/elf's own test fixture builder;
// duplicated here (rather than imported, since it is unexported) to keep
// this package's tests independent of boot/elf's internal test helpers.
func buildMinimalELFForBootTest(entry, vaddr, paddr uint64, payload []byte) []byte {
	const ehSize, phSize = 64, 56
	buf := make([]byte, ehSize+phSize+len(payload))

	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64

	putU16 := func(off int, v uint16) { buf[off] = byte(v); buf[off+1] = byte(v >> 8) }
	putU64 := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}

	putU16(16, 2)    // ET_EXEC
	putU16(18, 0x3E) // EM_X86_64
	putU64(24, entry)
	putU64(32, ehSize)
	putU16(54, phSize) // e_phentsize
	putU16(56, 1)      // e_phnum

	ph := buf[ehSize : ehSize+phSize]
	phPutU32 := func(off int, v uint32) {
		for i := 0; i < 4; i++ {
			ph[off+i] = byte(v >> (8 * i))
		}
	}
	phPutU64 := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			ph[off+i] = byte(v >> (8 * i))
		}
	}
	phPutU32(0, 1) // PT_LOAD
	phPutU64(8, ehSize+phSize)
	phPutU64(16, vaddr)
	phPutU64(24, paddr)
	phPutU64(32, uint64(len(payload)))
	phPutU64(40, uint64(len(payload))+16)

	copy(buf[ehSize+phSize:], payload)
	return buf
}
