// Package font holds the compositor's 8x8 bitmap glyph table. The table
// itself (Table8x8) is normally produced by tools/makefont rasterizing a
// TTF; this file supplies a fallback built from golang.org/x/image/font's
// stock basicfont.Face7x13 so kernel/gfx never ships without a usable
// font even when the codegen output hasn't been regenerated, per
// SPEC_FULL.md's domain-stack wiring of x/image.
package font

import (
	"image"

	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Font describes a monospace bitmap font, grounded on the teacher's
// device/video/console/font.Font shape.
type Font struct {
	Name                    string
	GlyphWidth, GlyphHeight int
	Table                   [256][8]byte
}

// Glyph returns the 8-row bitmap for ch, each byte's bit 7 the leftmost
// pixel, per spec.md §4.9 ("8x8 bitmap blits for glyphs").
func (f *Font) Glyph(ch byte) [8]byte {
	return f.Table[ch]
}

// Default is the fallback 8x8 font, rasterized once at package init time
// from x/image/font/basicfont's 7x13 face by sampling it down onto an 8x8
// grid. tools/makefont's generated table (Table8x8 in font_generated.go,
// when present) takes precedence by overwriting Default.Table in an
// init() that runs after this one.
var Default = buildFallback()

func buildFallback() *Font {
	f := &Font{Name: "fallback8x8", GlyphWidth: 8, GlyphHeight: 8}
	face := basicfont.Face7x13

	for ch := 32; ch < 127; ch++ {
		dr, mask, maskp, _, ok := face.Glyph(fixed.P(0, 13), rune(ch))
		if !ok {
			continue
		}
		f.Table[ch] = sampleGlyph(dr, mask, maskp)
	}
	return f
}

// sampleGlyph down-samples an arbitrary glyph mask image onto an 8x8 grid
// by nearest-neighbor point sampling, so any face x/image can rasterize
// can back this compositor's fixed 8x8 cell.
func sampleGlyph(dr image.Rectangle, mask image.Image, maskp image.Point) [8]byte {
	var out [8]byte
	if dr.Empty() {
		return out
	}
	w, h := dr.Dx(), dr.Dy()
	for gy := 0; gy < 8; gy++ {
		srcY := dr.Min.Y + gy*h/8
		var row byte
		for gx := 0; gx < 8; gx++ {
			srcX := dr.Min.X + gx*w/8
			_, _, _, a := mask.At(maskp.X+(srcX-dr.Min.X), maskp.Y+(srcY-dr.Min.Y)).RGBA()
			if a > 0x7fff {
				row |= 1 << (7 - uint(gx))
			}
		}
		out[gy] = row
	}
	return out
}
