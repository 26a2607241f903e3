// Package bootinfo defines the fixed-layout structure the bootloader writes
// before calling ExitBootServices and the kernel reads for the rest of its
// uptime. It plays the role the teacher's hal/multiboot package plays for a
// multiboot2 tag list, except the layout here is a single fixed-address
// struct rather than a self-describing tag stream, per spec.
package bootinfo

import "unsafe"

// MaxMemoryRegions bounds the memory map copied into BootInfo. The
// bootloader fails with an overflow error, rather than truncating, when
// the firmware-reported map has more entries than this; a real UEFI map
// rarely exceeds a few dozen entries, so 256 leaves generous headroom.
const MaxMemoryRegions = 256

// RegionKind classifies a MemoryRegion the way the UEFI memory map does.
type RegionKind uint32

// RegionKind values, in UEFI's own enumeration order.
const (
	RegionReserved RegionKind = iota
	RegionLoaderCode
	RegionLoaderData
	RegionBootSvcCode
	RegionBootSvcData
	RegionRuntimeSvcCode
	RegionRuntimeSvcData
	RegionConventional
	RegionUnusable
	RegionAcpiReclaim
	RegionAcpiNvs
	RegionMmio
	RegionMmioPort
	RegionPalCode
)

// String renders a RegionKind for diagnostics.
func (k RegionKind) String() string {
	switch k {
	case RegionReserved:
		return "Reserved"
	case RegionLoaderCode:
		return "LoaderCode"
	case RegionLoaderData:
		return "LoaderData"
	case RegionBootSvcCode:
		return "BootSvcCode"
	case RegionBootSvcData:
		return "BootSvcData"
	case RegionRuntimeSvcCode:
		return "RuntimeSvcCode"
	case RegionRuntimeSvcData:
		return "RuntimeSvcData"
	case RegionConventional:
		return "Conventional"
	case RegionUnusable:
		return "Unusable"
	case RegionAcpiReclaim:
		return "AcpiReclaim"
	case RegionAcpiNvs:
		return "AcpiNvs"
	case RegionMmio:
		return "Mmio"
	case RegionMmioPort:
		return "MmioPort"
	case RegionPalCode:
		return "PalCode"
	default:
		return "Unknown"
	}
}

// Usable reports whether memory of this kind is safe for the kernel's frame
// allocator to hand out. Only Conventional memory qualifies; everything
// else is either firmware-owned, reclaimable-but-not-yet-reclaimed, or MMIO.
func (k RegionKind) Usable() bool {
	return k == RegionConventional
}

// MemoryRegion describes one contiguous span of physical memory. Regions
// are not required to be sorted but must not overlap (spec.md §3).
type MemoryRegion struct {
	StartPhys uint64
	SizeBytes uint64
	Kind      RegionKind
	_         uint32 // padding to keep the struct 8-byte aligned for array indexing
}

// End returns the exclusive end address of the region.
func (r MemoryRegion) End() uint64 { return r.StartPhys + r.SizeBytes }

// FramebufferInfo describes the linear framebuffer the bootloader obtained
// from the Graphics Output Protocol.
type FramebufferInfo struct {
	Base   uint64
	Size   uint64
	Width  uint32
	Height uint32
	Stride uint32
	_      uint32
}

// cmdLineMax bounds the boot command-line string embedded in BootInfo.
const cmdLineMax = 256

// Info is the fixed physical-address structure the bootloader populates and
// the kernel reads for its entire uptime (read-only to the kernel). Field
// offsets are stable and the struct is 16-byte aligned per spec.md §3.
type Info struct {
	Framebuffer FramebufferInfo

	MemoryMap      [MaxMemoryRegions]MemoryRegion
	MemoryMapCount uint32
	_              uint32

	// RSDPPhysAddr is 0 if no RSDP could be located.
	RSDPPhysAddr uint64

	// MaxPhysicalAddress is the highest physical address observed in any
	// usable (Conventional) region, used to size the kernel's direct
	// physical map (spec.md §4.2).
	MaxPhysicalAddress uint64

	// CmdLineLen is the number of valid bytes in CmdLine.
	CmdLineLen uint32
	_          uint32
	CmdLine    [cmdLineMax]byte
}

// SetCmdLine copies at most cmdLineMax bytes of line into the fixed CmdLine
// array, truncating silently if it overflows (the bootloader has no
// allocator to fall back on).
func (i *Info) SetCmdLine(line string) {
	n := copy(i.CmdLine[:], line)
	i.CmdLineLen = uint32(n)
}

// CmdLineString returns the boot command line as a Go string.
func (i *Info) CmdLineString() string {
	return string(i.CmdLine[:i.CmdLineLen])
}

// AddRegion appends a memory region to the map, returning false (without
// modifying the struct) once MaxMemoryRegions has been reached. It also
// maintains MaxPhysicalAddress for Usable regions as regions are added,
// matching the bootloader's single-pass memory-map copy (spec.md §4.1 step 6).
func (i *Info) AddRegion(r MemoryRegion) bool {
	if i.MemoryMapCount >= MaxMemoryRegions {
		return false
	}

	i.MemoryMap[i.MemoryMapCount] = r
	i.MemoryMapCount++

	if r.Kind.Usable() && r.End() > i.MaxPhysicalAddress {
		i.MaxPhysicalAddress = r.End()
	}

	return true
}

// Regions returns the populated prefix of the memory map.
func (i *Info) Regions() []MemoryRegion {
	return i.MemoryMap[:i.MemoryMapCount]
}

// LargestConventionalRegion returns the biggest Conventional region in the
// map, used by the slab heap (spec.md §4.3) to seed its backing region. It
// returns false if no Conventional region exists.
func (i *Info) LargestConventionalRegion() (MemoryRegion, bool) {
	var (
		best  MemoryRegion
		found bool
	)
	for _, r := range i.Regions() {
		if r.Kind != RegionConventional {
			continue
		}
		if !found || r.SizeBytes > best.SizeBytes {
			best = r
			found = true
		}
	}
	return best, found
}

// FromPhysAddr overlays an *Info on top of the fixed physical address the
// bootloader wrote it at. addr must already be translated to the
// kernel's virtual address space by the caller (the kernel only ever
// dereferences BootInfo through its higher-half mapping).
func FromPhysAddr(addr uintptr) *Info {
	return (*Info)(unsafe.Pointer(addr))
}
