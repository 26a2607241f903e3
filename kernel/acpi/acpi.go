// Package acpi locates the RSDP the firmware hands off and walks the
// RSDT/XSDT far enough to find the MADT (Local APIC base address) and the
// HPET descriptor (MMIO base address), per spec.md §1's non-goal scoping
// ("ACPI table walking beyond locating the RSDP/MADT/HPET descriptors").
// Grounded on original_source/kernel/src/acpi.rs's Rsdp/RsdpExtended/
// AcpiTableHeader/Madt layout and its checksum-then-signature validation
// sequence, re-expressed with unsafe-pointer struct overlays in the
// teacher's multiboot-parsing idiom (gopheros/kernel/hal/multiboot) rather
// than Rust's #[repr(C, packed)].
package acpi

import (
	"unsafe"

	"duskos/kernel"
)

var (
	errNoRSDP           = &kernel.Error{Module: "acpi", Message: "RSDP not provided by bootloader"}
	errBadRSDPSignature = &kernel.Error{Module: "acpi", Message: "invalid RSDP signature"}
	errBadRSDPChecksum  = &kernel.Error{Module: "acpi", Message: "RSDP checksum verification failed"}
	errBadTableChecksum = &kernel.Error{Module: "acpi", Message: "ACPI table checksum verification failed"}
)

const rsdpSignature = "RSD PTR "

// rsdp is the ACPI 1.0 Root System Description Pointer, byte-for-byte:
// 8s signature, 1 checksum, 6s oem id, 1 revision, 4 rsdt address.
type rsdp struct {
	signature    [8]byte
	checksum     byte
	oemID        [6]byte
	revision     byte
	rsdtAddress  uint32
}

// rsdpExtended appends the ACPI 2.0+ fields onto rsdp.
type rsdpExtended struct {
	v1                rsdp
	length            uint32
	xsdtAddress       uint64
	extendedChecksum  byte
	_                 [3]byte
}

// tableHeader is the common ACPI System Description Table Header.
type tableHeader struct {
	signature       [4]byte
	length          uint32
	revision        byte
	checksum        byte
	oemID           [6]byte
	oemTableID      [8]byte
	oemRevision     uint32
	creatorID       uint32
	creatorRevision uint32
}

func (h *tableHeader) signatureStr() string {
	return string(h.signature[:])
}

func checksumOK(addr uintptr, length uint32) bool {
	var sum byte
	for i := uint32(0); i < length; i++ {
		sum += *(*byte)(unsafe.Pointer(addr + uintptr(i)))
	}
	return sum == 0
}

// MADTInfo is the subset of the Multiple APIC Description Table spec.md
// §1 scopes in: the Local APIC base address and the list of I/O APIC ids
// (informational only; I/O APIC interrupt routing is a non-goal).
type MADTInfo struct {
	LocalAPICAddress uint32
	Flags            uint32
	IOAPICIDs        []uint8
}

// Info is everything acpi.Init discovers: whether ACPI is present at all,
// and the MADT/HPET descriptors if found.
type Info struct {
	Present    bool
	Revision   byte
	MADT       *MADTInfo
	HPETBaseAddr uintptr
}

// madtEntryHeader is the common 2-byte header preceding each MADT entry.
type madtEntryHeader struct {
	entryType byte
	length    byte
}

const (
	madtEntryProcessorLocalAPIC = 0
	madtEntryIOAPIC             = 1
)

// Init resolves rsdpPhysAddr (as handed off in BootInfo) through
// phys-to-virt translation, validates the RSDP, and walks its RSDT/XSDT
// to locate the MADT and HPET tables.
func Init(rsdpPhysAddr uintptr, physToVirt func(uintptr) (uintptr, *kernel.Error)) (*Info, *kernel.Error) {
	if rsdpPhysAddr == 0 {
		return nil, errNoRSDP
	}

	rsdpVirt, err := physToVirt(rsdpPhysAddr)
	if err != nil {
		return nil, err
	}

	r := (*rsdp)(unsafe.Pointer(rsdpVirt))
	if string(r.signature[:]) != rsdpSignature {
		return nil, errBadRSDPSignature
	}
	if !checksumOK(rsdpVirt, uint32(unsafe.Sizeof(rsdp{}))) {
		return nil, errBadRSDPChecksum
	}

	info := &Info{Present: true, Revision: r.revision}

	if r.revision >= 2 {
		ext := (*rsdpExtended)(unsafe.Pointer(rsdpVirt))
		walkTables(ext.xsdtAddress, 8, physToVirt, info)
	} else {
		walkTables(uint64(r.rsdtAddress), 4, physToVirt, info)
	}

	return info, nil
}

// walkTables parses the RSDT (entrySize=4) or XSDT (entrySize=8) at
// sdtPhysAddr and dispatches any MADT/HPET table it finds.
func walkTables(sdtPhysAddr uint64, entrySize int, physToVirt func(uintptr) (uintptr, *kernel.Error), info *Info) {
	if sdtPhysAddr == 0 {
		return
	}
	sdtVirt, err := physToVirt(uintptr(sdtPhysAddr))
	if err != nil {
		return
	}

	header := (*tableHeader)(unsafe.Pointer(sdtVirt))
	wantSig := "RSDT"
	if entrySize == 8 {
		wantSig = "XSDT"
	}
	if header.signatureStr() != wantSig || !checksumOK(sdtVirt, header.length) {
		return
	}

	headerSize := uintptr(unsafe.Sizeof(tableHeader{}))
	entryCount := (int(header.length) - int(headerSize)) / entrySize
	entriesBase := sdtVirt + headerSize

	for i := 0; i < entryCount; i++ {
		var tablePhysAddr uint64
		if entrySize == 8 {
			tablePhysAddr = *(*uint64)(unsafe.Pointer(entriesBase + uintptr(i*8)))
		} else {
			tablePhysAddr = uint64(*(*uint32)(unsafe.Pointer(entriesBase + uintptr(i*4))))
		}

		tableVirt, err := physToVirt(uintptr(tablePhysAddr))
		if err != nil {
			continue
		}
		th := (*tableHeader)(unsafe.Pointer(tableVirt))

		switch th.signatureStr() {
		case "APIC":
			info.MADT = parseMADT(tableVirt, th.length)
		case "HPET":
			info.HPETBaseAddr = parseHPET(tableVirt, th.length)
		}
	}
}

// parseMADT reads the Local APIC base address and Flags following the
// table header, then walks the variable-length entry list for I/O APIC
// ids (informational).
func parseMADT(tableVirt uintptr, length uint32) *MADTInfo {
	if !checksumOK(tableVirt, length) {
		return nil
	}
	headerSize := uintptr(unsafe.Sizeof(tableHeader{}))
	localAPICAddr := *(*uint32)(unsafe.Pointer(tableVirt + headerSize))
	flags := *(*uint32)(unsafe.Pointer(tableVirt + headerSize + 4))

	m := &MADTInfo{LocalAPICAddress: localAPICAddr, Flags: flags}

	entriesStart := tableVirt + headerSize + 8
	entriesEnd := tableVirt + uintptr(length)
	for p := entriesStart; p+2 <= entriesEnd; {
		eh := (*madtEntryHeader)(unsafe.Pointer(p))
		if eh.length == 0 {
			break
		}
		if eh.entryType == madtEntryIOAPIC {
			ioAPICID := *(*byte)(unsafe.Pointer(p + 2))
			m.IOAPICIDs = append(m.IOAPICIDs, ioAPICID)
		}
		p += uintptr(eh.length)
	}
	return m
}

// parseHPET reads the HPET descriptor's Generic Address Structure to
// recover the MMIO base address (ACPI spec §20.2.1: header(36) + a 4-byte
// id field (hardware_rev_id, comparator/counter info, pci_vendor_id) at
// offset 36, followed by a 12-byte Generic Address Structure whose 8-byte
// Address field starts at offset 40+4=44).
func parseHPET(tableVirt uintptr, length uint32) uintptr {
	if !checksumOK(tableVirt, length) {
		return 0
	}
	const addressFieldOffset = 44
	if uintptr(length) < addressFieldOffset+8 {
		return 0
	}
	return uintptr(*(*uint64)(unsafe.Pointer(tableVirt + addressFieldOffset)))
}
