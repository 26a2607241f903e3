// Package gate owns the kernel's GDT/TSS and IDT: the interrupt/exception
// entry points, their Go-side dispatch table, and the register snapshot
// handlers receive. It is grounded directly on the teacher's
// kernel/gate/gate_amd64.go (Registers, InterruptNumber, HandleInterrupt,
// installIDT/dispatchInterrupt as asm-declared functions), extended with
// the exception vectors and the APIC timer vector spec.md §4.5/§4.10 name
// and with the GDT/TSS build step described in gdt_amd64.go.
package gate

import (
	"duskos/kernel/kfmt"
	"io"
)

// Registers contains a snapshot of all register values when an exception,
// interrupt or timer tick occurs.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Info carries the exception's error code for exceptions that push
	// one, or the IRQ/vector number otherwise.
	Info uint64

	// The return frame used by IRETQ.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo renders the register contents, used by kernel/trap's panic path.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
	kfmt.Fprintf(w, "Info= %16x\n", r.Info)
}

// InterruptNumber describes an x86 interrupt/exception/IRQ slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// Debug (#DB) fires on single-step traps and data/IO breakpoints.
	Debug = InterruptNumber(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = InterruptNumber(2)

	// Breakpoint (#BP) fires on an INT3 instruction.
	Breakpoint = InterruptNumber(3)

	// Overflow occurs when an overflow occurs (e.g. result of division
	// cannot fit into the registers used).
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode (#UD) occurs when the CPU attempts to execute an
	// invalid or undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an
	// FPU/MMX/SSE instruction while no FPU is available.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault (#DF) occurs when an unhandled exception occurs within
	// a running exception handler; routed through IST1 so it can run even
	// when the faulting task's own stack is unusable (e.g. the guard page
	// itself, spec.md §4.10).
	DoubleFault = InterruptNumber(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when the CPU attempts to invoke a present
	// gate with an invalid stack segment selector.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs when attempting to push/pop from a
	// non-canonical stack address or when the stack base/limit checks
	// fail.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException (#PF) occurs when a page table entry is not
	// present or a privilege/RW protection check fails; CR2 holds the
	// faulting linear address.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs while invoking an FP instruction with
	// an unmasked pending FP exception.
	FloatingPointException = InterruptNumber(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = InterruptNumber(17)

	// MachineCheck occurs when the CPU detects internal errors.
	MachineCheck = InterruptNumber(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set.
	SIMDFloatingPointException = InterruptNumber(19)

	// APICTimerVector is the vector the Local APIC's periodic timer is
	// programmed to raise (spec.md §4.5).
	APICTimerVector = InterruptNumber(32)
)

// Init runs the CPU-specific initialization for interrupt handling. It
// must run after InitGDT, since the double-fault gate's IST index refers
// to the TSS InitGDT builds.
func Init() {
	installIDT()
}

// HandleInterrupt ensures that handler will be invoked when intNumber
// occurs. istOffset is the 1-based interrupt-stack-table slot to switch to
// before handler runs (0 means "don't use IST"); only DoubleFault uses a
// nonzero value (gate.DoubleFaultISTIndex), per spec.md §4.10.
func HandleInterrupt(intNumber InterruptNumber, istOffset uint8, handler func(*Registers))

// installIDT populates the IDT descriptor and loads it via LIDT. All gate
// entries start out not-present; HandleInterrupt activates them.
func installIDT()

// dispatchInterrupt is invoked by the interrupt gate entrypoints to route
// an incoming interrupt to the registered handler.
func dispatchInterrupt()
