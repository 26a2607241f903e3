package boot

import (
	"duskos/kernel/mm"
	"duskos/kernel/mm/paging"
)

// minIdentityMapBytes is spec.md §4.1 step (7)'s "covering at least
// 8 GiB" floor for the bootloader's own identity-plus-higher-half page
// tables (distinct from the kernel's own static direct map built later
// by kernel/mm/paging.Build once the kernel is running in the higher
// half).
const minIdentityMapBytes = uintptr(8) << 30

// numBootPDs covers minIdentityMapBytes with 2 MiB huge pages: each PD
// maps 1 GiB, so 8 GiB needs 8 of them.
const numBootPDs = int(minIdentityMapBytes >> 30)

// Statically allocated bootloader page tables. The low half identity
// maps physical memory 1:1; the high half maps the same physical
// range starting at mm.KernelVirtualBase. They are separate table
// trees (not shared, mirroring the teacher's bootloader convention of
// duplicating rather than aliasing) since the low half is torn down
// the moment the kernel rebuilds its own tables in kernel/mm/paging.
var (
	bootPML4    paging.Table
	bootPDPLow  paging.Table
	bootPDPHigh paging.Table
	bootPDLow   [numBootPDs]paging.Table
	bootPDHigh  [numBootPDs]paging.Table
)

// bootPML4HighIndex is the PML4 slot for mm.KernelVirtualBase.
const bootPML4HighIndex = (mm.KernelVirtualBase >> 39) & 0x1FF

// buildBootPageTables fills in the static bootloader page tables
// identity-mapping and higher-half-mapping the first minIdentityMapBytes
// of physical memory with 2 MiB huge pages, per spec.md §4.1 step (7).
// tableAddr resolves one of this function's own static tables to its
// physical address (identity, since the bootloader runs with the
// firmware's 1:1 mapping still active).
func buildBootPageTables(tableAddr func(*paging.Table) uintptr) uintptr {
	const flags = paging.FlagPresent | paging.FlagWritable
	const hugeFlags = flags | paging.FlagHuge

	bootPML4[0].SetFrame(mm.FrameFromAddress(tableAddr(&bootPDPLow)))
	bootPML4[0].SetFlags(flags)
	bootPML4[bootPML4HighIndex].SetFrame(mm.FrameFromAddress(tableAddr(&bootPDPHigh)))
	bootPML4[bootPML4HighIndex].SetFlags(flags)

	for i := 0; i < numBootPDs; i++ {
		bootPDPLow[i].SetFrame(mm.FrameFromAddress(tableAddr(&bootPDLow[i])))
		bootPDPLow[i].SetFlags(flags)
		bootPDPHigh[i].SetFrame(mm.FrameFromAddress(tableAddr(&bootPDHigh[i])))
		bootPDPHigh[i].SetFlags(flags)

		for j := 0; j < 512; j++ {
			physAddr := uintptr(i)<<30 + uintptr(j)<<21
			bootPDLow[i][j].SetFrame(mm.FrameFromAddress(physAddr))
			bootPDLow[i][j].SetFlags(hugeFlags)
			bootPDHigh[i][j].SetFrame(mm.FrameFromAddress(physAddr))
			bootPDHigh[i][j].SetFlags(hugeFlags)
		}
	}

	return tableAddr(&bootPML4)
}
