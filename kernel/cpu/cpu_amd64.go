// Package cpu declares the arch-specific primitives that cannot be expressed
// in Go: interrupt enable/disable, port I/O, MSR access and TLB/CR3
// management. Each function below is declared without a Go body; the amd64
// assembly implementations are not part of this tree, so the package does
// not compile on its own. The Go declarations give the rest of the kernel a
// typed, testable call surface (mirroring the teacher's cpu_amd64.go).
package cpu

// EnableInterrupts sets RFLAGS.IF, allowing maskable interrupts to fire.
func EnableInterrupts()

// DisableInterrupts clears RFLAGS.IF.
func DisableInterrupts()

// InterruptsEnabled reports whether RFLAGS.IF is currently set. Used by
// is_interrupt_context() checks: RFLAGS.IF == 0 means the CPU is inside an
// interrupt/exception handler (or interrupts were explicitly disabled for a
// critical section).
func InterruptsEnabled() bool

// Halt stops instruction execution until the next interrupt (HLT).
func Halt()

// Pause emits a PAUSE instruction, used in spin-wait loops to reduce power
// draw and memory-order contention.
func Pause()

// FlushTLBEntry invalidates the TLB entry covering virtAddr (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// WriteCR3 loads the given physical address into CR3, switching the active
// page table and flushing the non-global TLB entries.
func WriteCR3(pdtPhysAddr uintptr)

// ReadCR3 returns the physical address of the currently active top-level
// page table.
func ReadCR3() uintptr

// ReadCR2 returns the faulting linear address recorded by the last page
// fault (or, for a double fault caused by a guard-page hit, the address
// recorded by the primary exception that triggered it).
func ReadCR2() uintptr

// Rdmsr reads the model-specific register at the given index.
func Rdmsr(msr uint32) uint64

// Wrmsr writes value to the model-specific register at the given index.
func Wrmsr(msr uint32, value uint64)

// Inb reads a single byte from the given I/O port.
func Inb(port uint16) uint8

// Outb writes a single byte to the given I/O port.
func Outb(port uint16, value uint8)

// Inw reads a 16-bit word from the given I/O port.
func Inw(port uint16) uint16

// Outw writes a 16-bit word to the given I/O port.
func Outw(port uint16, value uint16)

// Inl reads a 32-bit dword from the given I/O port.
func Inl(port uint16) uint32

// Outl writes a 32-bit dword to the given I/O port.
func Outl(port uint16, value uint32)

// Rdtsc returns the CPU's time-stamp counter value.
func Rdtsc() uint64
