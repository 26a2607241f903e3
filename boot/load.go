package boot

import (
	"duskos/boot/elf"
	"duskos/boot/uefi"
	"duskos/kernel"
	"duskos/kernel/bootinfo"
	"duskos/kernel/mm/paging"
)

var (
	errFramebufferUnavailable = &kernel.Error{Module: "boot", Message: "graphics output protocol has no active mode"}
	errKernelFileRead         = &kernel.Error{Module: "boot", Message: "failed to read kernel.elf"}
	errMemoryMapOverflow      = &kernel.Error{Module: "boot", Message: "memory map exceeds BootInfo.MemoryMap capacity"}
	errExitBootServicesFailed = &kernel.Error{Module: "boot", Message: "ExitBootServices rejected the recorded map key"}
	errNoLoadSegments         = &kernel.Error{Module: "boot", Message: "kernel.elf has no PT_LOAD segments"}
)

// zeroRangeFunc zeroes a physical address range, used to clear a PT_LOAD
// segment's BSS tail (memsz - filesz) per spec.md §4.1 step (3).
// Injected so tests can run against an ordinary Go byte slice instead of
// real physical memory.
type zeroRangeFunc func(physAddr uintptr, n uint64)

// copyRangeFunc copies n bytes from file[off:off+n] to the physical
// address physAddr, used to place a PT_LOAD segment's file-backed bytes.
type copyRangeFunc func(physAddr uintptr, file []byte, off uint64, n uint64)

// Loaded is everything Load hands off to the higher-half jump: the
// populated bootinfo.Info, the kernel's physical entry point, and the
// vaddr-paddr delta needed to translate it (spec.md §4.1 step (4)).
type Loaded struct {
	Info          *bootinfo.Info
	EntryPhysAddr uint64
	LoadDelta     uint64
	PageTableRoot uintptr
}

// Load runs the full firmware-to-kernel handoff of spec.md §4.1: it
// performs steps (1)-(8) and returns everything the caller needs to
// perform step (9), the actual jump to the higher-half entry point
// (which Go cannot express portably and is left to the asm trampoline
// in cmd/kernel).
//
// readKernelELF reads kernel.elf from the opened file handle (the caller
// owns the ≥2 MiB bounded buffer of step (2); Load only validates and
// copies from the bytes it returns). zeroRange and copyRange perform the physical-memory writes
// of step (3); tableAddr resolves a bootloader page-table's physical
// address for step (7).
func Load(
	gop uefi.GraphicsOutputProtocol,
	fs uefi.SimpleFileSystemProtocol,
	bs uefi.BootServices,
	kernelPath string,
	readKernelELF func(uefi.FileHandle) ([]byte, *kernel.Error),
	zeroRange zeroRangeFunc,
	copyRange copyRangeFunc,
	tableAddr func(*paging.Table) uintptr,
	writeCR3 func(uintptr),
) (*Loaded, *kernel.Error) {
	// (1) graphics output protocol.
	fbMode, err := gop.CurrentMode()
	if err != nil {
		return nil, errFramebufferUnavailable
	}

	// (2) filesystem protocol; read kernel.elf into a bounded buffer.
	file, err := fs.OpenFile(kernelPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	kernelELF, err := readKernelELF(file)
	if err != nil {
		return nil, errKernelFileRead
	}

	// (3)+(4) validate the ELF64 header, copy PT_LOAD segments, zero BSS.
	img, err := elf.Parse(kernelELF)
	if err != nil {
		return nil, err
	}
	if len(img.Segments) == 0 {
		return nil, errNoLoadSegments
	}
	for _, seg := range img.Segments {
		if seg.FileSize > 0 {
			copyRange(uintptr(seg.PhysAddr), kernelELF, seg.FileOffset, seg.FileSize)
		}
		if seg.MemSize > seg.FileSize {
			zeroRange(uintptr(seg.PhysAddr)+uintptr(seg.FileSize), seg.MemSize-seg.FileSize)
		}
	}
	loadDelta := img.LoadDelta()
	entryPhysAddr := img.EntryPhysAddr()

	// (5) locate the RSDP (ACPI 2.0 preferred, falls back to 1.0 inside
	// the firmware's own configuration-table lookup).
	rsdpAddr, err := bs.LocateRSDP()
	if err != nil {
		return nil, err
	}

	// (6) snapshot the memory map before exiting boot services, bound
	// it to BootInfo's fixed-size array, and track the highest usable
	// physical address.
	memMap, err := bs.GetMemoryMap()
	if err != nil {
		return nil, err
	}

	info := &bootinfo.Info{
		Framebuffer: bootinfo.FramebufferInfo{
			Base:   uint64(fbMode.Base),
			Size:   uint64(fbMode.Size),
			Width:  fbMode.Width,
			Height: fbMode.Height,
			Stride: fbMode.PixelsPerScanLine,
		},
		RSDPPhysAddr: uint64(rsdpAddr),
	}

	for _, d := range memMap.Descriptors {
		ok := info.AddRegion(bootinfo.MemoryRegion{
			StartPhys: uint64(d.PhysicalStart),
			SizeBytes: d.NumberOfPages * 4096,
			Kind:      d.Kind,
		})
		if !ok {
			return nil, errMemoryMapOverflow
		}
	}

	// (7) build the bootloader's own identity+higher-half page tables
	// and load CR3. Memory allocated while loading the kernel.elf file
	// (step 2) can change the map, so step (6) intentionally reads it a
	// second time right before ExitBootServices below, using the key
	// that call returns.
	pml4Phys := buildBootPageTables(tableAddr)
	writeCR3(pml4Phys)

	// (6, continued) + (8): re-fetch the memory map for its fresh map
	// key (allocations above may have changed it) and exit boot
	// services using that key.
	finalMap, err := bs.GetMemoryMap()
	if err != nil {
		return nil, err
	}
	if err := bs.ExitBootServices(finalMap.MapKey); err != nil {
		return nil, errExitBootServicesFailed
	}

	return &Loaded{
		Info:          info,
		EntryPhysAddr: entryPhysAddr,
		LoadDelta:     loadDelta,
		PageTableRoot: pml4Phys,
	}, nil
}
