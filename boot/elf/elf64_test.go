package elf

import "testing"

const (
	ehSize = 64
	phSize = 56
)

func putU16(buf []byte, off int, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}

func putU32(buf []byte, off int, v uint32) {
	for i := 0; i < 4; i++ {
		buf[off+i] = byte(v >> (8 * i))
	}
}

func putU64(buf []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		buf[off+i] = byte(v >> (8 * i))
	}
}

// buildMinimalELF constructs a header + one PT_LOAD program header
// (matching header64/programHeader64's field layout) with no section
// headers, for use as test fixtures.
func buildMinimalELF(entry, vaddr, paddr uint64, payload []byte) []byte {
	buf := make([]byte, ehSize+phSize+len(payload))

	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = 2 // EI_CLASS = ELFCLASS64

	putU16(buf, 16, 2) // e_type = ET_EXEC
	putU16(buf, 18, 0x3E) // e_machine = EM_X86_64
	putU64(buf, 24, entry)
	putU64(buf, 32, ehSize) // e_phoff
	putU16(buf, 54, phSize) // e_phentsize
	putU16(buf, 56, 1)      // e_phnum

	ph := buf[ehSize : ehSize+phSize]
	putU32(ph, 0, 1) // p_type = PT_LOAD
	putU64(ph, 8, ehSize+phSize) // p_offset
	putU64(ph, 16, vaddr)
	putU64(ph, 24, paddr)
	putU64(ph, 32, uint64(len(payload))) // p_filesz
	putU64(ph, 40, uint64(len(payload))+16) // p_memsz (includes BSS)

	copy(buf[ehSize+phSize:], payload)
	return buf
}

func TestParseRejectsGarbageInput(t *testing.T) {
	_, err := Parse([]byte("not an elf file at all"))
	if err != errTruncated && err != errNotELF {
		t.Fatalf("expected a rejection error for garbage input; got %v", err)
	}
}

func TestParseRejectsWrongMachine(t *testing.T) {
	file := buildMinimalELF(0x1000, 0x1000, 0x1000, []byte{1, 2, 3, 4})
	putU16(file, 18, 0x03) // EM_386, not EM_X86_64

	_, err := Parse(file)
	if err != errNotAMD64 {
		t.Fatalf("expected errNotAMD64; got %v", err)
	}
}

func TestParseExtractsEntryAndSegments(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	file := buildMinimalELF(0x2000, 0x1000, 0x500000, payload)

	img, err := Parse(file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Entry != 0x2000 {
		t.Fatalf("expected entry 0x2000; got %#x", img.Entry)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("expected one PT_LOAD segment; got %d", len(img.Segments))
	}
	seg := img.Segments[0]
	if seg.VirtAddr != 0x1000 || seg.PhysAddr != 0x500000 {
		t.Fatalf("unexpected segment addresses: %+v", seg)
	}
	if seg.FileSize != uint64(len(payload)) {
		t.Fatalf("expected filesz %d; got %d", len(payload), seg.FileSize)
	}
	if seg.MemSize != uint64(len(payload))+16 {
		t.Fatalf("expected memsz %d; got %d", len(payload)+16, seg.MemSize)
	}
}

func TestLoadDeltaAndEntryPhysAddr(t *testing.T) {
	file := buildMinimalELF(0x1008, 0x1000, 0x500000, []byte{1, 2, 3, 4})
	img, err := Parse(file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vaddr, paddr := uint64(0x1000), uint64(0x500000)
	wantDelta := vaddr - paddr
	if img.LoadDelta() != wantDelta {
		t.Fatalf("expected delta %#x; got %#x", wantDelta, img.LoadDelta())
	}
	if img.EntryPhysAddr() != 0x500008 {
		t.Fatalf("expected entry phys addr 0x500008; got %#x", img.EntryPhysAddr())
	}
}

func TestParseFailsOnTruncatedProgramHeaderTable(t *testing.T) {
	file := buildMinimalELF(0x1000, 0x1000, 0x1000, []byte{1, 2, 3, 4})
	truncated := file[:ehSize+10] // cuts the program header table short

	_, err := Parse(truncated)
	if err != errTruncated {
		t.Fatalf("expected errTruncated; got %v", err)
	}
}
