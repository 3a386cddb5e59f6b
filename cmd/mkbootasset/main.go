// Command mkbootasset generates the two build-time assets
// device/video/console/logo and device/video/console/font consume: an
// 8bpp console logo and a bitmap font glyph sheet. It plays the same role
// tools/makelogo fills for gopher-os, but rasterizes through
// github.com/fogleman/gg (a 2D canvas, for the logo's resize/compose step)
// and github.com/golang/freetype plus golang.org/x/image/font (for the
// font's glyph rendering) instead of hand-decoding a pre-made bitmap,
// matching SPEC_FULL.md's domain-stack wiring.
//
// Like tools/makelogo and tools/redirects, mkbootasset is a hosted Go
// program run by a developer workstation; its output is checked-in
// generated source, never linked into the freestanding kernel image
// itself.
package main

import (
	"flag"
	"fmt"
	"os"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkbootasset] error: %s\n", err.Error())
	os.Exit(1)
}

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "mkbootasset: generate console boot assets\n\n")
		fmt.Fprint(os.Stderr, "Usage: mkbootasset logo [options] image\n")
		fmt.Fprint(os.Stderr, "       mkbootasset font [options] ttf\n")
	}
	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "logo":
		err = runLogo(os.Args[2:])
	case "font":
		err = runFont(os.Args[2:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		exit(err)
	}
}
