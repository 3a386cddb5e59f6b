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
	"image/color"
	"os"

	"github.com/fogleman/gg"
)

// maxColors mirrors tools/makelogo's console-palette cap: the framebuffer
// console remaps a logo's palette entries onto the end of its own, and
// only has room for this many.
const maxColors = 16

// loadAndFit loads the source image through a gg canvas sized exactly to
// the requested console dimensions, so a logo authored at any resolution
// lands pixel-for-pixel on the target console without the caller having to
// pre-scale it by hand. gg.DrawImageAnchored centers the source on the
// canvas; callers that want the unscaled source just pass its own size.
func loadAndFit(path string, width, height int) (image.Image, error) {
	src, err := gg.LoadImage(path)
	if err != nil {
		return nil, err
	}

	if width <= 0 || height <= 0 {
		b := src.Bounds()
		width, height = b.Dx(), b.Dy()
	}

	ctx := gg.NewContext(width, height)
	ctx.DrawImageAnchored(src, width/2, height/2, 0.5, 0.5)
	return ctx.Image(), nil
}

func buildPalette(img image.Image, transColor color.RGBA) ([]color.RGBA, map[color.RGBA]int, error) {
	var (
		palette         []color.RGBA
		colorToPalIndex = make(map[color.RGBA]int)
	)

	palette = append(palette, transColor)
	colorToPalIndex[palette[0]] = 0

	bounds := img.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			c := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
			if _, exists := colorToPalIndex[c]; exists {
				continue
			}
			colorToPalIndex[c] = len(colorToPalIndex)
			palette = append(palette, c)
		}
	}

	if got := len(palette); got > maxColors {
		return nil, nil, fmt.Errorf("logo should not contain more than %d colors; got %d", maxColors, got)
	}
	return palette, colorToPalIndex, nil
}

func genLogoFile(img image.Image, transColor color.RGBA, logoVar, align string) (string, error) {
	var (
		buf         bytes.Buffer
		bounds      = img.Bounds()
		logoVarName = fmt.Sprintf("%s%dx%d", logoVar, bounds.Dx(), bounds.Dy())
	)

	palette, colorToPalIndex, err := buildPalette(img, transColor)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(&buf, `
package logo

import "image/color"

var (
%s = Image{
Width: %d,
Height: %d,
Align: %s,
TransparentIndex: 0,
`, logoVarName, bounds.Dx(), bounds.Dy(), align)

	fmt.Fprint(&buf, "Palette: []color.RGBA{\n")
	for _, c := range palette {
		fmt.Fprintf(&buf, "\t{R:%d, G:%d, B:%d},\n", c.R, c.G, c.B)
	}
	fmt.Fprint(&buf, "},\n")

	fmt.Fprint(&buf, "Data: []uint8{\n")
	pixelIndex := 0
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x, pixelIndex = x+1, pixelIndex+1 {
			if pixelIndex != 0 && pixelIndex%16 == 0 {
				buf.WriteByte('\n')
			}
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			colorIndex := colorToPalIndex[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}]
			fmt.Fprintf(&buf, "0x%x, ", colorIndex)
		}
	}
	fmt.Fprint(&buf, "\n},\n")

	fmt.Fprint(&buf, "}\n)\n")
	fmt.Fprintf(&buf, "func init(){\navailableLogos = append(availableLogos, &%s)\n}\n", logoVarName)

	return buf.String(), nil
}

func runLogo(args []string) error {
	fs := flag.NewFlagSet("logo", flag.ExitOnError)
	transR := fs.Uint("trans-r", 255, "the red component value for the transparent color")
	transG := fs.Uint("trans-g", 0, "the green component value for the transparent color")
	transB := fs.Uint("trans-b", 255, "the blue component value for the transparent color")
	logoVar := fs.String("var-name", "logo", "the name of the variable containing the logo data")
	align := fs.String("align", "center", "horizontal alignment (left, center or right)")
	width := fs.Int("width", 0, "canvas width to fit the source image into (0 = source size)")
	height := fs.Int("height", 0, "canvas height to fit the source image into (0 = source size)")
	output := fs.String("out", "-", "a file to write the generated logo or - for STDOUT")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return errors.New("missing image file argument")
	}

	switch *align {
	case "left":
		*align = "AlignLeft"
	case "center":
		*align = "AlignCenter"
	case "right":
		*align = "AlignRight"
	default:
		return errors.New("invalid alignment specification; supported values are: left, center or right")
	}

	img, err := loadAndFit(fs.Arg(0), *width, *height)
	if err != nil {
		return err
	}

	logoData, err := genLogoFile(
		img,
		color.RGBA{R: uint8(*transR), G: uint8(*transG), B: uint8(*transB)},
		*logoVar,
		*align,
	)
	if err != nil {
		return err
	}

	fSet := token.NewFileSet()
	astFile, err := parser.ParseFile(fSet, "", logoData, parser.ParseComments)
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
