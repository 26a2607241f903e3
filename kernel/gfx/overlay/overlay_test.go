package overlay

import (
	"testing"

	"duskos/kernel/gfx"
)

type fakeFrameCounter uint64

func (f fakeFrameCounter) FrameCount() uint64 { return uint64(f) }

func newTestOverlay(screenWidth, screenHeight int) *Overlay {
	c := gfx.NewCompositor(gfx.NewHardwareFramebuffer(0, screenWidth, screenHeight, screenWidth), nil)
	return New(c, screenWidth, screenHeight, fakeFrameCounter(42), func() uint64 { return 1000 })
}

func TestNewRegistersWriterInTopRightCorner(t *testing.T) {
	o := newTestOverlay(1920, 1080)

	want := gfx.Region{X: 1920 - width - margin, Y: margin, W: width, H: height}
	if o.buf.Region != want {
		t.Fatalf("expected overlay region %+v; got %+v", want, o.buf.Region)
	}
}

func TestRenderFrameDoesNotPanic(t *testing.T) {
	o := newTestOverlay(320, 200)
	o.renderFrame(5, 60)
	o.renderFrame(6, 0)
}

func TestLineBufferResetsBetweenWrites(t *testing.T) {
	var l lineBuffer
	l.Write([]byte("first"))
	if l.String() != "first" {
		t.Fatalf("expected %q; got %q", "first", l.String())
	}
	l.Reset()
	l.Write([]byte("second"))
	if l.String() != "second" {
		t.Fatalf("expected reset to clear prior contents; got %q", l.String())
	}
}
