package gate

import "unsafe"

// gdtEntry is one 8-byte Global Descriptor Table descriptor. Segmentation
// is mostly vestigial on amd64, but long mode still requires a GDT to
// select Ring 0 code/data and to point LTR at the TSS that carries the
// double-fault IST (spec.md §4.5/§4.10 assume an IST exists without saying
// who builds it; this file is that builder).
type gdtEntry struct {
	limitLow   uint16
	baseLow    uint16
	baseMiddle uint8
	access     uint8
	granularity uint8
	baseHigh   uint8
}

// tssDescriptor is a GDT system-segment descriptor; on amd64 it spans two
// 8-byte slots because the TSS base address is 64 bits wide.
type tssDescriptor struct {
	limitLow    uint16
	baseLow     uint16
	baseMiddle  uint8
	access      uint8
	granularity uint8
	baseHigh    uint8
	baseUpper   uint32
	reserved    uint32
}

const (
	accessPresent = 1 << 7
	// accessCode sets the descriptor type (bit4), executable (bit3) and
	// readable (bit1) bits; accessData sets type + writable (bit1).
	accessCode = 0b11010
	accessData = 0b10010

	granularityLongMode = 1 << 5

	tssAccessAvailable = 0x9 // 64-bit TSS (Available)
)

// Selector values for the segments this kernel actually uses. User-mode
// segments are carried for completeness of the descriptor table layout but
// are never loaded into a selector register (user-mode tasks are a
// non-goal).
const (
	SelectorNull       = uint16(0x00)
	SelectorKernelCode = uint16(0x08)
	SelectorKernelData = uint16(0x10)
	SelectorUserCode   = uint16(0x18 | 3)
	SelectorUserData   = uint16(0x20 | 3)
	SelectorTSS        = uint16(0x28)
)

// tss is the 64-bit Task State Segment. Only the interrupt stack table
// matters to this kernel: IST1 backs the double-fault gate so a handler
// can run even if the faulting task's own stack is the guard page itself
// (spec.md §4.10).
type tss struct {
	reserved0 uint32
	rsp       [3]uint64
	reserved1 uint64
	ist       [7]uint64
	reserved2 uint64
	reserved3 uint16
	ioMapBase uint16
}

// DoubleFaultStackSize is the size of the dedicated stack IST1 points at.
const DoubleFaultStackSize = 4096

var (
	gdt [7]uint64 // null, kcode, kdata, ucode, udata, tss-low, tss-high
	kernelTSS tss

	doubleFaultStack [DoubleFaultStackSize]byte
)

func codeSegmentEntry(dpl uint8) gdtEntry {
	return gdtEntry{
		access:      accessPresent | (dpl&0b11)<<5 | accessCode,
		granularity: granularityLongMode,
	}
}

func dataSegmentEntry(dpl uint8) gdtEntry {
	return gdtEntry{
		access: accessPresent | (dpl&0b11)<<5 | accessData,
	}
}

func encodeEntry(e gdtEntry) uint64 {
	return uint64(e.limitLow) |
		uint64(e.baseLow)<<16 |
		uint64(e.baseMiddle)<<32 |
		uint64(e.access)<<40 |
		uint64(e.granularity)<<48 |
		uint64(e.baseHigh)<<56
}

func encodeTSSDescriptor(base uintptr, limit uint32) (uint64, uint64) {
	d := tssDescriptor{
		limitLow:    uint16(limit),
		baseLow:     uint16(base),
		baseMiddle:  uint8(base >> 16),
		access:      accessPresent | tssAccessAvailable,
		granularity: 0,
		baseHigh:    uint8(base >> 24),
		baseUpper:   uint32(base >> 32),
	}

	low := uint64(d.limitLow) |
		uint64(d.baseLow)<<16 |
		uint64(d.baseMiddle)<<32 |
		uint64(d.access)<<40 |
		uint64(d.granularity)<<48 |
		uint64(d.baseHigh)<<56
	high := uint64(d.baseUpper)

	return low, high
}

// InitGDT builds the kernel's GDT and TSS, loads GDTR, reloads the segment
// registers, and loads the task register with the TSS selector. It must
// run before Init installs the IDT, since the double-fault gate's IST
// index is meaningless without a TSS to source it from.
func InitGDT() {
	stackTop := uintptr(unsafe.Pointer(&doubleFaultStack[0])) + DoubleFaultStackSize
	kernelTSS.ist[0] = uint64(stackTop &^ 0xF) // the ABI requires a 16-byte aligned stack

	gdt[0] = 0
	gdt[1] = encodeEntry(codeSegmentEntry(0))
	gdt[2] = encodeEntry(dataSegmentEntry(0))
	gdt[3] = encodeEntry(codeSegmentEntry(3))
	gdt[4] = encodeEntry(dataSegmentEntry(3))

	tssBase := uintptr(unsafe.Pointer(&kernelTSS))
	gdt[5], gdt[6] = encodeTSSDescriptor(tssBase, uint32(unsafe.Sizeof(kernelTSS))-1)

	loadGDT(uintptr(unsafe.Pointer(&gdt[0])), uint16(len(gdt)*8-1))
	loadTSS(SelectorTSS)
}

// DoubleFaultISTIndex is the 1-based IST slot (IDT gates encode IST+1, with
// 0 meaning "don't use IST") reserved for the double-fault handler.
const DoubleFaultISTIndex = 1

// loadGDT issues LGDT with the given base/limit and performs the far
// return + segment register reload needed to actually start using the new
// code segment. It is declared without a Go body; its amd64 assembly
// implementation is not part of this tree.
func loadGDT(base uintptr, limit uint16)

// loadTSS issues LTR with the given selector.
func loadTSS(selector uint16)
