package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"go/parser"
	"go/printer"
	"go/token"
	"image"
	"image/draw"
	"os"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
)

// cellSize is the compositor's fixed glyph cell, per spec.md §4.9's
// "8x8 bitmap blits for glyphs".
const cellSize = 8

// firstGlyph and lastGlyph bound the printable ASCII range rasterized
// into the table; everything else stays zeroed (blank).
const (
	firstGlyph = 32
	lastGlyph  = 126
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[makefont] error: %s\n", err.Error())
	os.Exit(1)
}

// rasterizeGlyph renders ch at a point size chosen so its em square fills
// the cellSize x cellSize cell, then samples coverage at each of the 64
// pixel centers to produce one [8]byte bitmap row set.
func rasterizeGlyph(f *truetype.Font, ch rune, pointSize float64) [cellSize]byte {
	const oversample = 4
	dim := cellSize * oversample

	dst := image.NewGray(image.Rect(0, 0, dim, dim))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(f)
	ctx.SetFontSize(pointSize)
	ctx.SetClip(dst.Bounds())
	ctx.SetDst(dst)
	ctx.SetSrc(image.White)

	pt := freetype.Pt(0, dim-dim/4)
	ctx.DrawString(string(ch), pt)

	var out [cellSize]byte
	for gy := 0; gy < cellSize; gy++ {
		var row byte
		for gx := 0; gx < cellSize; gx++ {
			var sum uint32
			for sy := 0; sy < oversample; sy++ {
				for sx := 0; sx < oversample; sx++ {
					sum += uint32(dst.GrayAt(gx*oversample+sx, gy*oversample+sy).Y)
				}
			}
			if avg := sum / (oversample * oversample); avg > 0x7f {
				row |= 1 << (7 - uint(gx))
			}
		}
		out[gy] = row
	}
	return out
}

func genFontFile(f *truetype.Font, pointSize float64, pkgName string) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "package %s\n\n", pkgName)
	fmt.Fprint(&buf, "// Table8x8 is the rasterized glyph table produced by tools/makefont;\n")
	fmt.Fprint(&buf, "// font.go's init() copies it into Default.Table, overriding the\n")
	fmt.Fprint(&buf, "// basicfont fallback.\n")
	fmt.Fprint(&buf, "var Table8x8 = [256][8]byte{\n")

	for ch := 0; ch < 256; ch++ {
		var bitmap [cellSize]byte
		if ch >= firstGlyph && ch <= lastGlyph {
			bitmap = rasterizeGlyph(f, rune(ch), pointSize)
		}
		fmt.Fprintf(&buf, "\t%d: {", ch)
		for _, row := range bitmap {
			fmt.Fprintf(&buf, "0x%02x, ", row)
		}
		fmt.Fprint(&buf, "},\n")
	}
	fmt.Fprint(&buf, "}\n\n")
	fmt.Fprint(&buf, "func init() { Default.Table = Table8x8 }\n")

	return buf.String()
}

func runTool() error {
	pointSize := flag.Float64("point-size", 8, "the TTF point size to rasterize at before downsampling to the 8x8 cell")
	pkgName := flag.String("pkg", "font", "the package name for the generated file")
	output := flag.String("out", "-", "a file to write the generated table or - to output to STDOUT")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "makefont: rasterize a TTF's printable ASCII range into an 8x8 glyph table\n\n")
		fmt.Fprint(os.Stderr, "Usage: makefont [options] font.ttf\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		exit(errors.New("missing font file argument"))
	}

	raw, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		return err
	}

	f, err := freetype.ParseFont(raw)
	if err != nil {
		return err
	}

	fontData := genFontFile(f, *pointSize, *pkgName)

	fSet := token.NewFileSet()
	astFile, err := parser.ParseFile(fSet, "", fontData, parser.ParseComments)
	if err != nil {
		return err
	}

	switch *output {
	case "-":
		return printer.Fprint(os.Stdout, fSet, astFile)
	default:
		fOut, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer fOut.Close()
		return printer.Fprint(fOut, fSet, astFile)
	}
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
