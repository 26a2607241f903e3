// Package paging builds the kernel-owned 4-level page tables described in
// spec.md §4.2: a direct physical map of all of RAM into the higher half,
// plus a single guard page immediately below the kernel's initial boot
// stack. It is grounded on the teacher's kernel/mm/vmm package (the
// pageTableEntry flag-bit encoding and walk-style table construction) but
// trades vmm's demand-paged, recursively-mapped design for a single
// up-front direct map, since spec.md has no notion of per-process address
// spaces or copy-on-write.
package paging

import (
	"duskos/kernel"
	"duskos/kernel/mm"
)

var (
	errNullAddress         = &kernel.Error{Module: "paging", Message: "null physical address"}
	errUnalignedAddress    = &kernel.Error{Module: "paging", Message: "unaligned virtual address"}
	errAddressOutOfRange   = &kernel.Error{Module: "paging", Message: "address out of range"}
	errConversionFailed    = &kernel.Error{Module: "paging", Message: "address conversion failed"}
	errGuardPageSetupFailed = &kernel.Error{Module: "paging", Message: "guard page setup failed"}
	errPageTableInitFailed  = &kernel.Error{Module: "paging", Message: "page table init failed"}
)

// KernelStackPages is the number of 4 KiB pages backing the kernel's initial
// boot stack (16 KiB, per spec.md §3's Task.stack size).
const KernelStackPages = 4

// numPDs is how many 1 GiB regions the static PD array can cover: four of
// them span mm.MaxSupportedMemory (4 GiB), and one more holds the guard
// block when the direct map ends exactly at that limit.
const numPDs = int(mm.MaxSupportedMemory>>30) + 1

// pml4Index is the PML4 slot for mm.KernelVirtualBase, computed once from
// the architecture's 9-bits-per-level, 4-level address split.
const pml4Index = (mm.KernelVirtualBase >> 39) & 0x1FF

// Statically allocated table levels. The kernel owns exactly one of each
// top-level structure; there is no per-address-space PML4 because this
// kernel never runs user-mode tasks (non-goal).
var (
	pml4        Table
	pdpHighHalf Table
	pds         [numPDs]Table
	guardPT     Table
)

// actualMax is the upper bound of the direct physical map, set by Build to
// min(mm.MaxSupportedMemory, cfg.MaxPhysicalAddress) rounded up to
// mm.HugePageSize.
var actualMax uintptr

// guardPageVirtAddr and stackTopVirtAddr are fixed once Build succeeds;
// they sit in the 2 MiB-aligned block immediately following the direct map.
var (
	guardPageVirtAddr uintptr
	stackTopVirtAddr  uintptr
	guardFrame        mm.Frame
)

// Config supplies the physical inputs Build needs: the highest physical
// address BootInfo observed, and physical frames to back the guard page
// (never actually dereferenced) and the kernel's initial boot stack.
type Config struct {
	MaxPhysicalAddress uintptr
	GuardFrame         mm.Frame
	StackFrames        [KernelStackPages]mm.Frame
}

// Result reports the virtual layout Build established.
type Result struct {
	// ActualMax is the exclusive upper bound of the direct physical map.
	ActualMax uintptr

	// GuardPageVirtAddr is the virtual address of the unmapped guard page.
	GuardPageVirtAddr uintptr

	// StackTopVirtAddr is the initial RSP value for the kernel's boot
	// stack (the stack grows down from here into the guarded region).
	StackTopVirtAddr uintptr
}

// Build constructs the direct physical map plus guard page and loads CR3.
// It is a fatal-on-failure initialization path per spec.md §7: callers
// should panic through kfmt.Panic rather than attempt to recover.
func Build(cfg Config, writeCR3 func(uintptr), pml4PhysAddr func(*Table) uintptr) (*Result, *kernel.Error) {
	actualMax = mm.MaxSupportedMemory
	if cfg.MaxPhysicalAddress < actualMax {
		actualMax = cfg.MaxPhysicalAddress
	}
	actualMax = mm.AlignUp(actualMax, mm.HugePageSize)

	if actualMax == 0 || actualMax > mm.MaxSupportedMemory {
		return nil, errPageTableInitFailed
	}

	for i := range pml4 {
		pml4[i] = 0
	}
	for i := range pdpHighHalf {
		pdpHighHalf[i] = 0
	}
	for p := range pds {
		for i := range pds[p] {
			pds[p][i] = 0
		}
	}
	for i := range guardPT {
		guardPT[i] = 0
	}

	pml4[pml4Index].SetFrame(mm.FrameFromAddress(pml4PhysAddr(&pdpHighHalf)))
	pml4[pml4Index].SetFlags(FlagPresent | FlagWritable)

	numPDsUsed := int(mm.AlignUp(actualMax, 1<<30) >> 30)
	if numPDsUsed > numPDs {
		return nil, errPageTableInitFailed
	}

	for pdIdx := 0; pdIdx < numPDsUsed; pdIdx++ {
		pdpHighHalf[pdIdx].SetFrame(mm.FrameFromAddress(pml4PhysAddr(&pds[pdIdx])))
		pdpHighHalf[pdIdx].SetFlags(FlagPresent | FlagWritable)

		for peIdx := 0; peIdx < 512; peIdx++ {
			physAddr := uintptr(pdIdx)<<30 + uintptr(peIdx)<<21
			if physAddr >= actualMax {
				break
			}

			pds[pdIdx][peIdx].SetFrame(mm.FrameFromAddress(physAddr))
			pds[pdIdx][peIdx].SetFlags(FlagPresent | FlagWritable | FlagHuge)
		}
	}

	if err := installGuardPage(cfg, pml4PhysAddr); err != nil {
		return nil, err
	}

	writeCR3(pml4PhysAddr(&pml4))

	return &Result{
		ActualMax:         actualMax,
		GuardPageVirtAddr: guardPageVirtAddr,
		StackTopVirtAddr:  stackTopVirtAddr,
	}, nil
}

// installGuardPage replaces the huge-page mapping for the 2 MiB block
// immediately following the direct map with a 4 KiB-granular table so a
// single page in it can be marked Present=0 (spec.md §4.2's guard page).
func installGuardPage(cfg Config, pml4PhysAddr func(*Table) uintptr) *kernel.Error {
	guardBlockPhys := actualMax // the 2 MiB block right after the direct map
	pdIdx := int(guardBlockPhys >> 30)
	peIdx := int((guardBlockPhys >> 21) & 0x1FF)

	if pdIdx >= numPDs {
		return errGuardPageSetupFailed
	}

	// The guard block may open a PD the direct-map loop did not link.
	pdpHighHalf[pdIdx].SetFrame(mm.FrameFromAddress(pml4PhysAddr(&pds[pdIdx])))
	pdpHighHalf[pdIdx].SetFlags(FlagPresent | FlagWritable)

	pds[pdIdx][peIdx].SetFrame(mm.FrameFromAddress(pml4PhysAddr(&guardPT)))
	pds[pdIdx][peIdx].SetFlags(FlagPresent | FlagWritable)
	pds[pdIdx][peIdx].ClearFlags(FlagHuge)

	guardPageVirtAddr = guardBlockPhys + mm.KernelVirtualBase
	guardFrame = cfg.GuardFrame

	// Entry 0 of guardPT is the guard page itself: Present=0, but the
	// frame is still recorded so CR2 can be correlated to it later.
	guardPT[0].SetFrame(cfg.GuardFrame)
	guardPT[0].ClearFlags(FlagPresent)

	for i, frame := range cfg.StackFrames {
		guardPT[i+1].SetFrame(frame)
		guardPT[i+1].SetFlags(FlagPresent | FlagWritable | FlagNoExecute)
	}

	stackTopVirtAddr = guardPageVirtAddr + mm.PageSize + uintptr(KernelStackPages)*mm.PageSize

	return nil
}

// PhysToVirt converts a physical address to its direct-map virtual address.
// Physical address 0 is treated as a null sentinel and always fails, per
// spec.md §8's testable property.
func PhysToVirt(p uintptr) (uintptr, *kernel.Error) {
	if p == 0 {
		return 0, errNullAddress
	}
	if p >= actualMax {
		return 0, errAddressOutOfRange
	}
	return p + mm.KernelVirtualBase, nil
}

// VirtToPhys is the inverse of PhysToVirt. It is only defined for virtual
// addresses at or above mm.KernelVirtualBase.
func VirtToPhys(v uintptr) (uintptr, *kernel.Error) {
	if v < mm.KernelVirtualBase {
		return 0, errConversionFailed
	}

	p := v - mm.KernelVirtualBase
	if p == 0 || p >= actualMax {
		return 0, errAddressOutOfRange
	}
	return p, nil
}

// IsGuardPage reports whether addr falls within the guard page established
// by Build. Used by the double-fault handler (spec.md §4.10) to recognize a
// kernel stack overflow.
func IsGuardPage(addr uintptr) bool {
	return guardPageVirtAddr != 0 && addr >= guardPageVirtAddr && addr < guardPageVirtAddr+mm.PageSize
}

// WalkEntry reports the flags of the page-table entry mapping addr, or
// false if no entry structure exists for it at the finest granularity
// Build installed there (huge-page region vs 4 KiB guard block).
func WalkEntry(addr uintptr) (Entry, bool) {
	if addr < mm.KernelVirtualBase {
		return 0, false
	}
	phys := addr - mm.KernelVirtualBase

	pdIdx := int(phys >> 30)
	peIdx := int((phys >> 21) & 0x1FF)
	if pdIdx < 0 || pdIdx >= numPDs {
		return 0, false
	}

	pde := pds[pdIdx][peIdx]
	if !pde.HasFlags(FlagPresent) {
		return 0, false
	}
	if pde.HasFlags(FlagHuge) {
		return pde, true
	}

	// Only the guard block currently uses a non-huge PD entry.
	ptIdx := int((phys >> 12) & 0x1FF)
	return guardPT[ptIdx], true
}
