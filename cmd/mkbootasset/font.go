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
	"os"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

// firstGlyph/lastGlyph bound the printable ASCII range the console glyph
// sheet covers; device/video/console/font.Font has no notion of a sparse
// glyph set, so every codepoint in range gets a (possibly blank) cell.
const (
	firstGlyph = 0x20
	lastGlyph  = 0x7e
)

// renderGlyph draws a single character into a glyphWidth x glyphHeight
// 1bpp-packed row buffer (font.Font.Data's layout: one bit per pixel, MSB
// first, BytesPerRow bytes per scanline) using a freetype.Context sized to
// the cell.
func renderGlyph(f *truetype.Font, ch rune, glyphWidth, glyphHeight int, fontSize float64) ([]byte, error) {
	bytesPerRow := (glyphWidth + 7) / 8
	dst := image.NewAlpha(image.Rect(0, 0, glyphWidth, glyphHeight))

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(f)
	ctx.SetFontSize(fontSize)
	ctx.SetClip(dst.Bounds())
	ctx.SetDst(dst)
	ctx.SetSrc(image.Opaque)
	ctx.SetHinting(font.HintingFull)

	baseline := freetype.Pt(0, int(fontSize*72/72))
	if _, err := ctx.DrawString(string(ch), baseline); err != nil {
		return nil, err
	}

	row := make([]byte, bytesPerRow*glyphHeight)
	for y := 0; y < glyphHeight; y++ {
		for x := 0; x < glyphWidth; x++ {
			if dst.AlphaAt(x, y).A > 0x7f {
				row[y*bytesPerRow+x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return row, nil
}

func genFontFile(f *truetype.Font, name string, glyphWidth, glyphHeight int, fontSize float64, priority uint32) (string, error) {
	bytesPerRow := (glyphWidth + 7) / 8
	varName := fmt.Sprintf("font%dx%d", glyphWidth, glyphHeight)

	var data []byte
	for ch := rune(firstGlyph); ch <= lastGlyph; ch++ {
		g, err := renderGlyph(f, ch, glyphWidth, glyphHeight, fontSize)
		if err != nil {
			return "", fmt.Errorf("render glyph %q: %w", ch, err)
		}
		data = append(data, g...)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `
package font

func init() {
	availableFonts = append(availableFonts, &%s)
}

var %s = Font{
	Name: %q,
	GlyphWidth: %d,
	GlyphHeight: %d,
	RecommendedWidth: %d,
	RecommendedHeight: %d,
	Priority: %d,
	BytesPerRow: %d,
	Data: []byte{
`, varName, varName, name, glyphWidth, glyphHeight, glyphWidth*80, glyphHeight*25, priority, bytesPerRow)

	for i, b := range data {
		if i != 0 && i%16 == 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "0x%02x, ", b)
	}
	fmt.Fprint(&buf, "\n},\n}\n")

	return buf.String(), nil
}

func runFont(args []string) error {
	fs := flag.NewFlagSet("font", flag.ExitOnError)
	name := fs.String("name", "generated", "the font's registered name")
	width := fs.Int("glyph-width", 8, "glyph cell width in pixels")
	height := fs.Int("glyph-height", 16, "glyph cell height in pixels")
	size := fs.Float64("size", 12, "font size in points passed to freetype")
	priority := fs.Uint("priority", 100, "font.BestFit selection priority (lower wins ties)")
	output := fs.String("out", "-", "a file to write the generated font or - for STDOUT")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return errors.New("missing ttf file argument")
	}

	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	parsed, err := freetype.ParseFont(raw)
	if err != nil {
		return err
	}

	fontData, err := genFontFile(parsed, *name, *width, *height, *size, uint32(*priority))
	if err != nil {
		return err
	}

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
