// Package elf validates an ELF64 executable header and loads its
// PT_LOAD segments, the one piece of ELF parsing spec.md §1 keeps in
// scope ("ELF parsing details beyond PT_LOAD" is explicitly out). It is
// grounded on the teacher's gopheros/kernel/hal/multiboot package's
// style of overlaying fixed-size header structs onto a raw byte buffer
// via unsafe.Pointer and walking a table that follows the header.
package elf

import (
	"unsafe"

	"duskos/kernel"
)

var (
	errNotELF          = &kernel.Error{Module: "elf", Message: "not an ELF64 file"}
	errNot64Bit        = &kernel.Error{Module: "elf", Message: "not a 64-bit ELF file"}
	errNotExecutable   = &kernel.Error{Module: "elf", Message: "ELF file is not an executable"}
	errNotAMD64        = &kernel.Error{Module: "elf", Message: "ELF file is not built for x86-64"}
	errTruncated       = &kernel.Error{Module: "elf", Message: "ELF file is truncated"}
)

const (
	magic0, magic1, magic2, magic3 = 0x7F, 'E', 'L', 'F'

	class64 = 2
	typeExec = 2
	typeDyn  = 3 // PIE executables report ET_DYN; still loadable via PT_LOAD

	machineAMD64 = 0x3E

	ptLoad = 1
)

// header64 is the ELF64 file header (e_ident through e_shstrndx), laid
// out exactly as the on-disk format: every field here is already
// naturally aligned, so no byte-offset arithmetic is needed beyond the
// struct itself (the same assumption the teacher's multiboot structs
// make).
type header64 struct {
	ident     [16]byte
	elfType   uint16
	machine   uint16
	version   uint32
	entry     uint64
	phoff     uint64
	shoff     uint64
	flags     uint32
	ehsize    uint16
	phentsize uint16
	phnum     uint16
	shentsize uint16
	shnum     uint16
	shstrndx  uint16
}

// programHeader64 is one ELF64 program header table entry.
type programHeader64 struct {
	segType  uint32
	flags    uint32
	offset   uint64
	vaddr    uint64
	paddr    uint64
	filesz   uint64
	memsz    uint64
	align    uint64
}

// Segment is one validated PT_LOAD segment, ready to be copied into
// physical memory by the caller (boot.Load owns the actual frame
// allocation and copy; this package only describes what to copy).
type Segment struct {
	FileOffset uint64
	FileSize   uint64
	MemSize    uint64
	VirtAddr   uint64
	PhysAddr   uint64
}

// Image is a parsed ELF64 executable: its entry point and PT_LOAD
// segments.
type Image struct {
	Entry    uint64
	Segments []Segment
}

// Parse validates file's ELF64 header and returns its PT_LOAD segments.
// file must stay alive and unmodified for the lifetime of the returned
// Image, since Segment.FileOffset indexes back into it.
func Parse(file []byte) (*Image, *kernel.Error) {
	if len(file) < int(unsafe.Sizeof(header64{})) {
		return nil, errTruncated
	}

	h := (*header64)(unsafe.Pointer(&file[0]))
	if h.ident[0] != magic0 || h.ident[1] != magic1 || h.ident[2] != magic2 || h.ident[3] != magic3 {
		return nil, errNotELF
	}
	if h.ident[4] != class64 {
		return nil, errNot64Bit
	}
	if h.elfType != typeExec && h.elfType != typeDyn {
		return nil, errNotExecutable
	}
	if h.machine != machineAMD64 {
		return nil, errNotAMD64
	}

	img := &Image{Entry: h.entry}

	phEnd := h.phoff + uint64(h.phnum)*uint64(h.phentsize)
	if phEnd > uint64(len(file)) {
		return nil, errTruncated
	}

	for i := uint16(0); i < h.phnum; i++ {
		phAddr := uintptr(unsafe.Pointer(&file[0])) + uintptr(h.phoff) + uintptr(i)*uintptr(h.phentsize)
		ph := (*programHeader64)(unsafe.Pointer(phAddr))
		if ph.segType != ptLoad {
			continue
		}
		if ph.offset+ph.filesz > uint64(len(file)) {
			return nil, errTruncated
		}
		img.Segments = append(img.Segments, Segment{
			FileOffset: ph.offset,
			FileSize:   ph.filesz,
			MemSize:    ph.memsz,
			VirtAddr:   ph.vaddr,
			PhysAddr:   ph.paddr,
		})
	}

	return img, nil
}

// LoadDelta returns the first segment's vaddr-paddr delta, per spec.md
// §4.1 step (4): "remember the first segment's p_vaddr − p_paddr delta
// so the entry point can be translated to a physical address". Returns
// 0 if the image has no PT_LOAD segments.
func (img *Image) LoadDelta() uint64 {
	if len(img.Segments) == 0 {
		return 0
	}
	return img.Segments[0].VirtAddr - img.Segments[0].PhysAddr
}

// EntryPhysAddr translates Entry to a physical address using LoadDelta.
func (img *Image) EntryPhysAddr() uint64 {
	return img.Entry - img.LoadDelta()
}
