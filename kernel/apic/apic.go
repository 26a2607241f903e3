// Package apic drives the Local APIC: disabling the legacy 8259 PIC,
// enabling the LAPIC via IA32_APIC_BASE, calibrating its timer against
// HPET or PIT, and programming the periodic preemption tick (spec.md
// §4.5). MSR/port access goes through kernel/cpu the same way the rest of
// the kernel does. Calibration measures a single interval; this package
// does not use kernel/time/pit's CalibrationSamples/Median helpers.
package apic

import (
	"unsafe"

	"duskos/kernel"
	"duskos/kernel/cpu"
)

const (
	ia32ApicBaseMSR = 0x1B
	apicBaseEnable  = 1 << 11

	// Register byte offsets within the LAPIC's memory-mapped register
	// page (relative to the base address from IA32_APIC_BASE).
	regSpuriousVector  = 0x0F0
	regEOI             = 0x0B0
	regTimerLVT        = 0x320
	regTimerInitCount  = 0x380
	regTimerCurrCount  = 0x390
	regTimerDivide     = 0x3E0

	spuriousVector   = 0xFF
	spuriousEnable   = 1 << 8
	timerVector      = 32
	timerPeriodic    = 1 << 17
	timerMasked      = 1 << 16
	divideBy16       = 0x3

	legacyPIC1Command = 0x20
	legacyPIC1Data    = 0x21
	legacyPIC2Command = 0xA0
	legacyPIC2Data    = 0xA1
	picMaskAll        = 0xFF
)

var errCalibrationFailed = &kernel.Error{Module: "apic", Message: "apic timer calibration produced a zero frequency"}

// regs abstracts the LAPIC's memory-mapped register block so tests can
// substitute an in-memory fake instead of real MMIO.
type regs interface {
	read32(offset uintptr) uint32
	write32(offset uintptr, value uint32)
}

var activeRegs regs

// calibratedFreqHz is the LAPIC timer's effective frequency, set by
// Calibrate and consumed by ProgramPeriodic.
var calibratedFreqHz uint32

// Hardware-access indirection: package-level function variables so tests
// can substitute fakes for the raw CPU primitives, the same redirection
// idiom used throughout the kernel's hardware-facing packages.
var (
	outbFn = cpu.Outb
	rdmsrFn = cpu.Rdmsr
	wrmsrFn = cpu.Wrmsr
)

// DisableLegacyPIC masks every line on both 8259 PICs, per spec.md §4.5.
func DisableLegacyPIC() {
	outbFn(legacyPIC1Data, picMaskAll)
	outbFn(legacyPIC2Data, picMaskAll)
}

// Enable sets bit 11 of IA32_APIC_BASE and arms the spurious-interrupt
// vector register with its enable bit, per spec.md §4.5. baseVirtAddr must
// already be translated through kernel/mm/paging's direct map.
func Enable(baseVirtAddr uintptr) {
	EnableWithRegs(newMMIORegs(baseVirtAddr))
}

// EnableWithRegs is the testable entry point.
func EnableWithRegs(r regs) {
	activeRegs = r

	base := rdmsrFn(ia32ApicBaseMSR)
	wrmsrFn(ia32ApicBaseMSR, base|apicBaseEnable)

	activeRegs.write32(regSpuriousVector, spuriousVector|spuriousEnable)
}

// Calibrate programs the timer with divider 16, masked, initial count
// 0xFFFFFFFF, waits for one known interval using waitFn, then reads how
// many ticks were consumed and derives the effective frequency. cmd/kernel
// passes a closure over kernel/time/hpet.DelayMs, or over
// kernel/time/pit.SleepMs when there is no HPET; either way one 50ms
// sample is taken, with no repeated samples and no median.
func Calibrate(intervalMs uint32, waitFn func()) *kernel.Error {
	activeRegs.write32(regTimerDivide, divideBy16)
	activeRegs.write32(regTimerLVT, timerVector|timerMasked)
	activeRegs.write32(regTimerInitCount, 0xFFFFFFFF)

	waitFn()

	remaining := activeRegs.read32(regTimerCurrCount)
	consumed := uint32(0xFFFFFFFF) - remaining

	freq := uint32(uint64(consumed) * 1000 / uint64(intervalMs))
	if freq == 0 {
		return errCalibrationFailed
	}

	calibratedFreqHz = freq
	return nil
}

// CalibratedFrequencyHz returns the frequency Calibrate derived.
func CalibratedFrequencyHz() uint32 { return calibratedFreqHz }

// ProgramPeriodic arms the timer in periodic mode at desiredHz, vector 32,
// divider 16, using the frequency Calibrate previously derived, per
// spec.md §4.5.
func ProgramPeriodic(desiredHz uint32) *kernel.Error {
	if calibratedFreqHz == 0 {
		return errCalibrationFailed
	}

	initialCount := calibratedFreqHz / desiredHz

	activeRegs.write32(regTimerDivide, divideBy16)
	activeRegs.write32(regTimerLVT, timerVector|timerPeriodic)
	activeRegs.write32(regTimerInitCount, initialCount)

	return nil
}

// SendEOI signals end-of-interrupt by writing zero to the EOI register.
func SendEOI() {
	activeRegs.write32(regEOI, 0)
}

// mmioRegs is the production regs implementation: a raw volatile pointer
// over the LAPIC's mapped register page.
type mmioRegs struct {
	base uintptr
}

func newMMIORegs(baseVirtAddr uintptr) regs {
	return &mmioRegs{base: baseVirtAddr}
}

func (r *mmioRegs) read32(offset uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(r.base + offset))
}

func (r *mmioRegs) write32(offset uintptr, value uint32) {
	*(*uint32)(unsafe.Pointer(r.base + offset)) = value
}
