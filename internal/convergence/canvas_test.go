package convergence

import (
	"image"
	"image/color"
	"testing"

	"extract-background/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPaintBehindFillsTransparentOnly(t *testing.T) {
	c := NewCanvas(2, 1)
	c.PaintBehind(solidFrame(2, 1, red).Image, models.PixelMask{0, 1})
	c.PaintBehind(solidFrame(2, 1, blue).Image, models.PixelMask{0, 0})

	assert.Equal(t, red, c.At(0, 0))
	assert.Equal(t, blue, c.At(1, 0))
}

func TestPaintBehindSemiTransparentDestination(t *testing.T) {
	c := NewCanvas(1, 1)
	// premultiplied half-transparent red
	half := image.NewRGBA(image.Rect(0, 0, 1, 1))
	half.SetRGBA(0, 0, color.RGBA{R: 128, A: 128})
	c.PaintBehind(half, models.PixelMask{0})

	c.PaintBehind(solidFrame(1, 1, blue).Image, models.PixelMask{0})

	got := c.At(0, 0)
	assert.Equal(t, uint8(128), got.R)
	assert.InDelta(t, 127, int(got.B), 1)
	assert.Equal(t, uint8(255), got.A)
}

func TestPaintBehindHonorsSourceOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 12, 11))
	src.SetRGBA(10, 10, green)
	src.SetRGBA(11, 10, red)

	c := NewCanvas(2, 1)
	c.PaintBehind(src, models.PixelMask{0, 0})

	assert.Equal(t, green, c.At(0, 0))
	assert.Equal(t, red, c.At(1, 0))
}

func TestSnapshotIsIndependent(t *testing.T) {
	c := NewCanvas(1, 1)
	snap := c.Snapshot()
	c.PaintBehind(solidFrame(1, 1, red).Image, models.PixelMask{0})

	assert.Equal(t, color.RGBA{}, snap.RGBAAt(0, 0))
	assert.Equal(t, red, c.At(0, 0))
}
