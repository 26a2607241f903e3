// Package uefi models the firmware protocols boot.Load consumes as Go
// interfaces. No real UEFI protocol binding exists anywhere in the
// example pack, so these interfaces are the one justified stdlib-only
// surface in the boot path (see DESIGN.md): they exist purely to give
// boot.Load a typed, mockable seam over firmware services whose real
// implementation is a cgo-free syscall-style ABI call outside Go's
// standard library reach.
package uefi

import (
	"duskos/kernel"
	"duskos/kernel/bootinfo"
)

// PixelFormat mirrors EFI_GRAPHICS_PIXEL_FORMAT's two RGB-family cases
// the compositor cares about; bit-mask formats are out of scope.
type PixelFormat int

const (
	PixelFormatRGBX8 PixelFormat = iota
	PixelFormatBGRX8
)

// FramebufferInfo is what boot.Load needs from the Graphics Output
// Protocol: base address, byte size, pixel geometry and row pitch.
type FramebufferInfo struct {
	Base          uintptr
	Size          uintptr
	Width, Height uint32
	PixelsPerScanLine uint32
	Format        PixelFormat
}

// GraphicsOutputProtocol models EFI_GRAPHICS_OUTPUT_PROTOCOL's subset
// boot.Load calls: query the currently active mode's framebuffer.
type GraphicsOutputProtocol interface {
	CurrentMode() (FramebufferInfo, *kernel.Error)
}

// FileHandle models EFI_FILE_PROTOCOL's subset needed to read
// kernel.elf into a bounded buffer.
type FileHandle interface {
	Read(buf []byte) (int, *kernel.Error)
	Close()
}

// SimpleFileSystemProtocol models EFI_SIMPLE_FILE_SYSTEM_PROTOCOL: open
// the boot volume's root directory and locate a named file within it.
type SimpleFileSystemProtocol interface {
	OpenFile(path string) (FileHandle, *kernel.Error)
}

// MemoryDescriptor is one EFI_MEMORY_DESCRIPTOR entry. Kind reuses
// bootinfo.RegionKind directly rather than a parallel enum, since the
// two sets of values are the same EFI_MEMORY_TYPE classification by
// construction: this descriptor only exists to be folded into a
// bootinfo.MemoryRegion.
type MemoryDescriptor struct {
	PhysicalStart uintptr
	NumberOfPages uint64
	Kind          bootinfo.RegionKind
}

// MemoryMap is the result of a GetMemoryMap call: the descriptor slice
// plus the opaque MapKey ExitBootServices requires.
type MemoryMap struct {
	Descriptors []MemoryDescriptor
	MapKey      uintptr
}

// BootServices models the EFI Boot Services table entries boot.Load
// uses: enumerate memory, look up the RSDP in the firmware
// configuration table, and hand control to the OS.
type BootServices interface {
	GetMemoryMap() (MemoryMap, *kernel.Error)
	LocateRSDP() (uintptr, *kernel.Error)
	ExitBootServices(mapKey uintptr) *kernel.Error
}
