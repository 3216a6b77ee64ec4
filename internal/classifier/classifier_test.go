package classifier

import (
	"context"
	"image"
	"image/color"
	"testing"

	"extract-background/internal/config"
	"extract-background/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestNewFactoryValidation(t *testing.T) {
	_, err := NewFactory(config.ClassifierConfig{Kind: "segmentation"}, 4, 4, nil)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = NewFactory(config.ClassifierConfig{Kind: "difference"}, 4, 4, nil)
	assert.ErrorAs(t, err, &verr)

	_, err = NewFactory(config.ClassifierConfig{Kind: "magic"}, 4, 4, nil)
	assert.ErrorContains(t, err, "unknown classifier kind")
}

func TestNewFactoryBuildsPerWorker(t *testing.T) {
	factory, err := NewFactory(config.ClassifierConfig{Kind: "difference", Reference: "empty.png"}, 4, 4, nil)
	require.NoError(t, err)

	a, err := factory(0)
	require.NoError(t, err)
	b, err := factory(1)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.IsType(t, &Difference{}, a)
}

func TestDifferenceMarksChangedPixels(t *testing.T) {
	gray := color.RGBA{R: 100, G: 100, B: 100, A: 255}
	ref := filled(4, 4, gray)
	frame := filled(4, 4, gray)
	frame.SetRGBA(1, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	d := NewDifference(DifferenceConfig{Reference: ref, Width: 4, Height: 4})
	require.NoError(t, d.Init(context.Background()))
	defer d.Close()

	mask, err := d.Classify(context.Background(), frame, 0.1)
	require.NoError(t, err)
	require.Len(t, mask, 16)
	assert.Equal(t, models.Foreground, mask[2*4+1])
	assert.Equal(t, 15, mask.CountBackground())

	mask, err = d.Classify(context.Background(), frame, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 16, mask.CountBackground())
}

func TestDifferenceLifecycle(t *testing.T) {
	d := NewDifference(DifferenceConfig{Reference: filled(2, 2, color.RGBA{A: 255}), Width: 2, Height: 2})

	_, err := d.Classify(context.Background(), filled(2, 2, color.RGBA{A: 255}), 0.5)
	assert.ErrorIs(t, err, models.ErrClassifierClosed)

	require.NoError(t, d.Init(context.Background()))
	_, err = d.Classify(context.Background(), filled(3, 2, color.RGBA{A: 255}), 0.5)
	assert.ErrorIs(t, err, models.ErrFrameSize)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

func TestDifferenceMissingReference(t *testing.T) {
	d := NewDifference(DifferenceConfig{ReferencePath: "does-not-exist.png", Width: 2, Height: 2})
	assert.Error(t, d.Init(context.Background()))
}
