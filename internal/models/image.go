package models

import (
	"image"
	"time"
)

// Frame is one sampled video frame and the playback position it was taken at
type Frame struct {
	Image    image.Image
	Position time.Duration
}

// Width returns the frame width in pixels
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Mask values
const (
	Background uint8 = 0
	Foreground uint8 = 1
)

// PixelMask holds one value per pixel in row-major order.
// Foreground is 1, background is 0. A mask is never modified after a
// classifier returns it.
type PixelMask []uint8

// NewPixelMask returns a mask of the given size with every pixel set to value
func NewPixelMask(size int, value uint8) PixelMask {
	mask := make(PixelMask, size)
	if value != 0 {
		for i := range mask {
			mask[i] = value
		}
	}
	return mask
}

// CountBackground returns the number of background pixels
func (m PixelMask) CountBackground() int {
	count := 0
	for _, v := range m {
		if v == Background {
			count++
		}
	}
	return count
}

// IsBackground reports whether pixel i is background
func (m PixelMask) IsBackground(i int) bool {
	return m[i] == Background
}

// Clone returns an independent copy of the mask
func (m PixelMask) Clone() PixelMask {
	out := make(PixelMask, len(m))
	copy(out, m)
	return out
}
