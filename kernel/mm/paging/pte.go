package paging

import "duskos/kernel/mm"

// Flag is a single page-table-entry flag bit (spec.md §3 data model).
type Flag uintptr

const (
	// FlagPresent marks the entry as mapped. An entry with Present=0 is
	// "not mapped"; touching its virtual range faults.
	FlagPresent Flag = 1 << iota

	// FlagWritable allows writes through this mapping.
	FlagWritable

	// FlagUser allows ring-3 access. Unused until user-mode tasks exist
	// (non-goal), carried for completeness of the flag set spec.md names.
	FlagUser

	// FlagWriteThrough selects write-through caching.
	FlagWriteThrough

	// FlagCacheDisable disables caching for this mapping.
	FlagCacheDisable

	// FlagAccessed is set by the CPU on first access.
	FlagAccessed

	// FlagDirty is set by the CPU on first write.
	FlagDirty

	// FlagHuge marks a PD/PDP entry as mapping a 2 MiB/1 GiB page directly
	// rather than pointing at a next-level table.
	FlagHuge

	// FlagGlobal keeps the TLB entry live across a CR3 reload.
	FlagGlobal
)

// FlagNoExecute is bit 63; kept out of the iota run since it does not fit a
// uintptr shift sequence alongside the low flag bits on 32-bit hosts, and to
// mirror how the architecture manual itself singles it out.
const FlagNoExecute = Flag(1) << 63

// physAddrMask extracts bits 12-51, the 4 KiB-aligned physical frame address
// encoded in every entry regardless of level.
const physAddrMask = uintptr(0x000f_ffff_ffff_f000)

// Entry is a single 64-bit page-table slot.
type Entry uint64

// HasFlags returns true if every bit in flags is set.
func (e Entry) HasFlags(flags Flag) bool {
	return uintptr(e)&uintptr(flags) == uintptr(flags)
}

// SetFlags ORs flags into the entry.
func (e *Entry) SetFlags(flags Flag) {
	*e = Entry(uintptr(*e) | uintptr(flags))
}

// ClearFlags clears flags from the entry.
func (e *Entry) ClearFlags(flags Flag) {
	*e = Entry(uintptr(*e) &^ uintptr(flags))
}

// Frame returns the physical frame this entry points to.
func (e Entry) Frame() mm.Frame {
	return mm.Frame((uintptr(e) & physAddrMask) >> mm.PageShift)
}

// SetFrame updates the entry's physical frame, preserving flag bits.
func (e *Entry) SetFrame(f mm.Frame) {
	*e = Entry((uintptr(*e) &^ physAddrMask) | f.Address())
}

// Table is one level of the 4-level paging structure: 512 eight-byte
// entries, naturally 4 KiB aligned when declared as a static array (spec.md
// §3).
type Table [512]Entry
