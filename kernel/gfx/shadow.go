package gfx

import "duskos/kernel/gfx/font"

// ShadowBuffer is the task-local scratch framebuffer the compositor
// replays commands into before blitting only the touched region to
// hardware (spec.md §4.9 step ii/iii).
type ShadowBuffer struct {
	Width, Height int
	pixels        []Color

	// dirty is the single bounding-box dirty rectangle accumulated
	// across every replayed command this pass.
	dirty Region

	glyphs *font.Font
}

// NewShadowBuffer allocates a shadow buffer sized to the hardware
// framebuffer and bound to the given glyph table.
func NewShadowBuffer(width, height int, glyphs *font.Font) *ShadowBuffer {
	return &ShadowBuffer{
		Width:  width,
		Height: height,
		pixels: make([]Color, width*height),
		glyphs: glyphs,
	}
}

// DirtyRegion returns the accumulated dirty rectangle for this pass.
func (s *ShadowBuffer) DirtyRegion() Region {
	return s.dirty
}

// ResetDirty clears the dirty rectangle after the compositor has blitted
// it to hardware.
func (s *ShadowBuffer) ResetDirty() {
	s.dirty = Region{}
}

func (s *ShadowBuffer) markDirty(r Region) {
	s.dirty = s.dirty.Union(r.ClipTo(Region{W: s.Width, H: s.Height}))
}

// Replay applies cmds, submitted relative to origin, onto the shadow
// buffer, marking each touched region on the single dirty rectangle
// (spec.md §4.9 step ii).
func (s *ShadowBuffer) Replay(origin Region, cmds []DrawCommand) {
	for _, c := range cmds {
		switch c.Kind {
		case CmdClear:
			s.fillRect(origin, c.Color)
			s.markDirty(origin)
		case CmdFillRect:
			rect := Region{X: origin.X + c.Rect.X, Y: origin.Y + c.Rect.Y, W: c.Rect.W, H: c.Rect.H}
			s.fillRect(rect, c.Color)
			s.markDirty(rect)
		case CmdDrawChar:
			rect := s.drawGlyph(origin, c.Row, c.Col, c.Ch, c.Color)
			s.markDirty(rect)
		case CmdDrawString:
			rect := Region{}
			for i := 0; i < len(c.Text); i++ {
				rect = rect.Union(s.drawGlyph(origin, c.Row, c.Col+i, c.Text[i], c.Color))
			}
			s.markDirty(rect)
		}
	}
}

// fillRect writes fill across a clipped rectangle using a row-major loop;
// in production this compiles down to the same rep-stosd pattern the
// teacher's fill8/fill16/fill24 helpers use for framebuffer fills.
func (s *ShadowBuffer) fillRect(rect Region, fill Color) {
	rect = rect.ClipTo(Region{W: s.Width, H: s.Height})
	if rect.Empty() {
		return
	}
	for y := rect.Y; y < rect.Y+rect.H; y++ {
		rowStart := y * s.Width
		for x := rect.X; x < rect.X+rect.W; x++ {
			s.pixels[rowStart+x] = fill
		}
	}
}

// drawGlyph blits an 8x8 bitmap glyph at the given cell and returns the
// pixel region it touched (empty if clipped away entirely).
func (s *ShadowBuffer) drawGlyph(origin Region, row, col int, ch byte, fg Color) Region {
	if s.glyphs == nil {
		return Region{}
	}
	gw, gh := s.glyphs.GlyphWidth, s.glyphs.GlyphHeight
	px, py := origin.X+col*gw, origin.Y+row*gh
	rect := Region{X: px, Y: py, W: gw, H: gh}.ClipTo(Region{W: s.Width, H: s.Height})
	if rect.Empty() {
		return Region{}
	}

	bitmap := s.glyphs.Glyph(ch)
	for y := 0; y < gh; y++ {
		py := py + y
		if py < 0 || py >= s.Height {
			continue
		}
		rowBits := bitmap[y]
		for x := 0; x < gw; x++ {
			px := px + x
			if px < 0 || px >= s.Width {
				continue
			}
			if rowBits&(1<<(7-uint(x))) != 0 {
				s.pixels[py*s.Width+px] = fg
			}
		}
	}
	return rect
}

// Row returns the pixel row at y for blitting to hardware.
func (s *ShadowBuffer) Row(y int) []Color {
	return s.pixels[y*s.Width : (y+1)*s.Width]
}
