package convergence

import (
	"image"
	"image/color"
	"sync"

	"extract-background/internal/models"
)

// Canvas is an RGBA surface that accumulates background layers back to front.
// Pixels start fully transparent.
type Canvas struct {
	mu  sync.RWMutex
	img *image.RGBA
}

func NewCanvas(width, height int) *Canvas {
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// PaintBehind composites img under the current content wherever mask marks
// background, using Porter-Duff destination-over on premultiplied values:
//
//	out = dst + src * (1 - dst.alpha)
//
// Fully opaque destination pixels are never changed.
func (c *Canvas) PaintBehind(img image.Image, mask models.PixelMask) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bounds := c.img.Bounds()
	width := bounds.Dx()
	srcMin := img.Bounds().Min

	for i, v := range mask {
		if v != models.Background {
			continue
		}
		x, y := i%width, i/width
		off := c.img.PixOffset(x, y)
		pix := c.img.Pix[off : off+4 : off+4]

		da := uint32(pix[3]) * 0x101
		if da == 0xffff {
			continue
		}

		sr, sg, sb, sa := img.At(srcMin.X+x, srcMin.Y+y).RGBA()
		a := 0xffff - da

		pix[0] = uint8((uint32(pix[0])*0x101 + sr*a/0xffff) >> 8)
		pix[1] = uint8((uint32(pix[1])*0x101 + sg*a/0xffff) >> 8)
		pix[2] = uint8((uint32(pix[2])*0x101 + sb*a/0xffff) >> 8)
		pix[3] = uint8((da + sa*a/0xffff) >> 8)
	}
}

// At returns the current color of one pixel
func (c *Canvas) At(x, y int) color.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.img.RGBAAt(x, y)
}

// Snapshot returns a copy of the composited image
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}
