package gfx

import (
	"testing"
	"unsafe"
)

func testFramebuffer(t *testing.T, width, height int) (*HardwareFramebuffer, []uint32) {
	t.Helper()
	backing := make([]uint32, width*height)
	base := uintptr(unsafe.Pointer(&backing[0]))
	return NewHardwareFramebuffer(base, width, height, width), backing
}

func TestRunPassReplaysDirtyWriterAndBlits(t *testing.T) {
	fb, backing := testFramebuffer(t, 8, 8)
	c := NewCompositor(fb, nil)

	w := c.RegisterWriter(Region{X: 0, Y: 0, W: 8, H: 8})
	w.FillRect(Region{W: 4, H: 4}, RGB(1, 2, 3))
	w.Flush()

	c.RunPass()

	if backing[0] != uint32(RGB(1, 2, 3)) {
		t.Fatalf("expected pixel (0,0) to be blitted to hardware; got %#x", backing[0])
	}
	if backing[5*8+5] != 0 {
		t.Fatal("expected pixels outside the fill rect to remain untouched")
	}
}

func TestRunPassSkipsNonDirtyWriters(t *testing.T) {
	fb, backing := testFramebuffer(t, 8, 8)
	c := NewCompositor(fb, nil)

	c.RegisterWriter(Region{X: 0, Y: 0, W: 8, H: 8})
	c.RunPass()

	for _, px := range backing {
		if px != 0 {
			t.Fatal("expected no pixels written when no writer is dirty")
		}
	}
}

func TestRunPassOnlyBlitsDirtyRectangle(t *testing.T) {
	fb, backing := testFramebuffer(t, 8, 8)
	c := NewCompositor(fb, nil)

	w := c.RegisterWriter(Region{X: 0, Y: 0, W: 8, H: 8})
	w.FillRect(Region{X: 6, Y: 6, W: 2, H: 2}, RGB(9, 9, 9))
	w.Flush()
	c.RunPass()

	if backing[6*8+6] != uint32(RGB(9, 9, 9)) {
		t.Fatal("expected the fill rect's pixel to be blitted")
	}
	if backing[0] != 0 {
		t.Fatal("expected untouched pixels to stay zero")
	}
}

func TestRegisterWriterIsCopyOnWrite(t *testing.T) {
	fb, _ := testFramebuffer(t, 4, 4)
	c := NewCompositor(fb, nil)

	first := c.snapshotWriters()
	c.RegisterWriter(Region{W: 4, H: 4})
	second := c.snapshotWriters()

	if len(first) != 0 {
		t.Fatalf("expected the first snapshot to be unaffected by a later registration; got %d writers", len(first))
	}
	if len(second) != 1 {
		t.Fatalf("expected the second snapshot to see the newly registered writer; got %d", len(second))
	}
}
