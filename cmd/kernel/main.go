// Command kernel is the higher-half entry point the boot loader jumps to
// (spec.md §4.1 step 9). It plays the role the teacher's kernel/kmain
// package plays for the Multiboot2 handoff: the one place that sequences
// every subsystem's Init call in dependency order and never returns.
package main

import (
	"unsafe"

	"duskos/kernel"
	"duskos/kernel/acpi"
	"duskos/kernel/apic"
	"duskos/kernel/bootinfo"
	"duskos/kernel/cmdline"
	"duskos/kernel/cpu"
	"duskos/kernel/gate"
	"duskos/kernel/gfx"
	"duskos/kernel/gfx/overlay"
	"duskos/kernel/kfmt"
	"duskos/kernel/klog"
	"duskos/kernel/mm"
	"duskos/kernel/mm/paging"
	"duskos/kernel/mm/slab"
	"duskos/kernel/sched"
	"duskos/kernel/time/hpet"
	"duskos/kernel/time/pit"
	"duskos/kernel/timer"
	"duskos/kernel/trap"
)

const (
	defaultSchedHz      = 1000
	defaultCompositorHz = 60

	// heapFraction is the portion of the largest Conventional region
	// handed to slab.Init, per spec.md §4.3: the rest stays available
	// for anything built later without an allocator of its own.
	heapFraction = 2

	calibrationIntervalMs = 50
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// stackFrames carries the physical frames backing the kernel's own
// static boot stack, recorded by the assembly trampoline before Go code
// runs (mirrors the teacher's rt0 handing Kmain the kernel's
// start/end physical addresses).
var stackFrames [paging.KernelStackPages]mm.Frame

// guardFrame is the physical frame reserved for the guard page below the
// stack, also recorded by the trampoline.
var guardFrame mm.Frame

// Kmain is the only Go symbol the asm entry trampoline calls, after it has
// built the bootloader's own identity-plus-higher-half tables (boot.Load)
// and switched to long mode. bootInfoPhysAddr is BootInfo's fixed physical
// address, passed by register per the target calling convention.
//
//go:noinline
func Kmain(bootInfoPhysAddr uintptr) {
	info := bootinfo.FromPhysAddr(bootInfoPhysAddr + mm.KernelVirtualBase)
	opts := cmdline.Parse(info.CmdLineString())

	if opts.Quiet {
		klog.SetLevel(klog.Warn)
	} else if opts.Verbose {
		klog.SetLevel(klog.Debug)
	}

	// Rebuild the kernel's own static page tables (direct physical map
	// plus guard page) now that the kernel owns its own address space,
	// per spec.md §4.2.
	pagingResult, err := paging.Build(paging.Config{
		MaxPhysicalAddress: uintptr(info.MaxPhysicalAddress),
		GuardFrame:         guardFrame,
		StackFrames:        stackFrames,
	}, writeCR3, pml4PhysAddr)
	if err != nil {
		kfmt.Panic(err)
	}
	klog.Infof("mm", "direct map covers %d MiB, guard page at %#x", pagingResult.ActualMax>>20, pagingResult.GuardPageVirtAddr)

	// Seed the slab heap from the largest Conventional region reported
	// in BootInfo, per spec.md §4.3.
	region, ok := info.LargestConventionalRegion()
	if !ok {
		kfmt.Panic(&kernel.Error{Module: "kmain", Message: "no conventional memory region in BootInfo"})
	}
	heapStartPhys := region.StartPhys
	heapSize := region.SizeBytes / heapFraction
	heapStartVirt, err := paging.PhysToVirt(uintptr(heapStartPhys))
	if err != nil {
		kfmt.Panic(err)
	}
	if err := slab.Init(heapStartVirt, uintptr(heapSize)); err != nil {
		kfmt.Panic(err)
	}
	klog.Infof("mm", "slab heap initialized: %d MiB", heapSize>>20)

	// Exceptions and interrupts before anything that can fault.
	gate.InitGDT()
	gate.Init()
	trap.Init(onTimerTick)

	// ACPI: locate the MADT (Local APIC base) and HPET descriptor.
	acpiInfo, err := acpi.Init(uintptr(info.RSDPPhysAddr), paging.PhysToVirt)
	if err != nil {
		kfmt.Panic(err)
	}
	if acpiInfo.MADT == nil {
		kfmt.Panic(&kernel.Error{Module: "kmain", Message: "no MADT found; cannot locate Local APIC"})
	}

	lapicVirt, err := paging.PhysToVirt(uintptr(acpiInfo.MADT.LocalAPICAddress))
	if err != nil {
		kfmt.Panic(err)
	}
	apic.DisableLegacyPIC()
	apic.Enable(lapicVirt)

	if acpiInfo.HPETBaseAddr != 0 {
		hpetVirt, err := paging.PhysToVirt(acpiInfo.HPETBaseAddr)
		if err != nil {
			kfmt.Panic(err)
		}
		hpet.Init(hpetVirt)
		if err := apic.Calibrate(calibrationIntervalMs, func() { hpet.DelayMs(calibrationIntervalMs) }); err != nil {
			kfmt.Panic(err)
		}
	} else {
		// No HPET descriptor; calibrate against the legacy 8254 PIT
		// instead, per spec.md §4.4's fallback chain.
		klog.Warnf("apic", "no HPET found; calibrating against the PIT")
		if err := apic.Calibrate(calibrationIntervalMs, func() { pit.SleepMs(calibrationIntervalMs) }); err != nil {
			kfmt.Panic(err)
		}
	}

	schedHz := defaultSchedHz
	if opts.SchedHz > 0 {
		schedHz = opts.SchedHz
	}
	if err := apic.ProgramPeriodic(uint32(schedHz)); err != nil {
		kfmt.Panic(err)
	}
	sched.SetTicksPerMs(uint64(schedHz) / 1000)
	sched.SetRegisterTimerFn(timer.RegisterTimer)

	// The compositor and its writers run as ordinary scheduled tasks,
	// per spec.md §4.9: interrupt-driven only in the sense that the
	// periodic timer tick is what gives them CPU time back after they
	// sleep.
	fb := gfx.NewHardwareFramebuffer(
		mustPhysToVirt(uintptr(info.Framebuffer.Base)),
		int(info.Framebuffer.Width), int(info.Framebuffer.Height), int(info.Framebuffer.Stride),
	)
	compositor := gfx.NewCompositor(fb, nil)

	compositorHz := defaultCompositorHz
	if opts.CompositorHz > 0 {
		compositorHz = opts.CompositorHz
	}
	_ = compositorHz // compositor.Run uses the spec-fixed 16ms period; see kernel/gfx.

	// idle becomes the current task directly: the entry trampoline's own
	// flow of execution *is* the idle task's first run, per spec.md §2's
	// "create tasks then call schedule()".
	idleTask, err := sched.NewTask("idle", sched.Idle, 0, 0, idleLoop)
	if err != nil {
		kfmt.Panic(err)
	}
	sched.Init(idleTask)

	compositorTask, err := sched.NewTask("compositor", sched.Realtime, 0, 10, compositor.Run)
	if err != nil {
		kfmt.Panic(err)
	}
	sched.Spawn(compositorTask)

	if opts.DebugOverlay {
		ov := overlay.New(compositor, int(info.Framebuffer.Width), int(info.Framebuffer.Height), compositor, func() uint64 {
			ns, _ := hpet.ElapsedNs(0)
			return ns / 1_000_000
		})
		overlayTask, err := sched.NewTask("debug-overlay", sched.Realtime, 0, 5, ov.Run)
		if err != nil {
			kfmt.Panic(err)
		}
		sched.Spawn(overlayTask)
	}

	klog.Infof("kmain", "boot complete, entering scheduler")
	idleLoop()

	kfmt.Panic(errKmainReturned)
}

// idleLoop is the Idle-class task's entry function: it calls
// sched.YieldNow in a loop forever, handing the CPU to any other Ready
// task, per spec.md §4.7's "the Idle class always has exactly one
// runnable task".
func idleLoop() {
	for {
		sched.YieldNow()
	}
}

// onTimerTick is trap.Init's APIC timer handler: it advances the timer
// wheel, accounts runtime for the outgoing task, and reschedules if
// needed, per spec.md §4.6/§4.7.
func onTimerTick(regs *gate.Registers) {
	timer.Tick()
	sched.AccumulateRuntime(1)
	sched.RequestResched()
	sched.CheckReschedOnInterruptExit(timer.DoSoftirq)
}

// pml4PhysAddr and writeCR3 are the two hardware touchpoints
// paging.Build needs; declared here (rather than in kernel/mm/paging
// itself) since only the entry trampoline knows how to resolve a static
// Go variable to its physical address before the direct map exists. By
// the time Kmain runs, the bootloader has already mapped the kernel at
// mm.KernelVirtualBase+phys (boot/pagetables.go), so a static variable's
// address converts back to physical by simple subtraction.
func pml4PhysAddr(t *paging.Table) uintptr {
	return uintptr(unsafe.Pointer(t)) - mm.KernelVirtualBase
}

func writeCR3(addr uintptr) {
	cpu.WriteCR3(addr)
}

func mustPhysToVirt(p uintptr) uintptr {
	v, err := paging.PhysToVirt(p)
	if err != nil {
		kfmt.Panic(err)
	}
	return v
}
