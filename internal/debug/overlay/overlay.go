// Package overlay renders a settlement map as a false-color image, one hue
// per pass, so it is easy to see which threshold filled which region.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// maxHue keeps the last pass short of wrapping back to red
const maxHue = 300.0

var unsettled = color.RGBA{A: 255}

// Palette returns one fully saturated color per pass, evenly spread
// from red for pass 0 towards magenta for the last pass
func Palette(passes int) []color.RGBA {
	if passes < 1 {
		return nil
	}
	out := make([]color.RGBA, passes)
	for i := range out {
		hue := 0.0
		if passes > 1 {
			hue = maxHue * float64(i) / float64(passes-1)
		}
		r, g, b := colorful.Hsv(hue, 1, 1).Clamped().RGB255()
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

// Render draws settlement, one entry per pixel in row-major order. Pixels
// that never settled (-1) are black.
func Render(settlement []int32, width, height, passes int) (*image.RGBA, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid overlay size %dx%d", width, height)
	}
	if len(settlement) != width*height {
		return nil, fmt.Errorf("settlement map has %d entries for %dx%d", len(settlement), width, height)
	}

	palette := Palette(passes)
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for i, pass := range settlement {
		c := unsettled
		if pass >= 0 {
			if int(pass) >= len(palette) {
				return nil, fmt.Errorf("pixel %d settled in pass %d of %d", i, pass, passes)
			}
			c = palette[pass]
		}
		o := i * 4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = c.R, c.G, c.B, c.A
	}

	return img, nil
}
