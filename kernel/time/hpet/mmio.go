package hpet

import "unsafe"

// mmioRegs reads and writes 64-bit HPET registers through a raw volatile
// pointer over the mapped register block.
type mmioRegs struct {
	base uintptr
}

func newMMIORegs(baseVirtAddr uintptr) regs {
	return &mmioRegs{base: baseVirtAddr}
}

func (r *mmioRegs) read64(offset uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(r.base + offset))
}

func (r *mmioRegs) write64(offset uintptr, value uint64) {
	*(*uint64)(unsafe.Pointer(r.base + offset)) = value
}
