package classifier

import (
	"context"
	"fmt"
	"image"
	"sync"

	"extract-background/internal/models"
	"extract-background/internal/opencv/conversion"
	"extract-background/internal/opencv/safe"

	"gocv.io/x/gocv"
)

type DifferenceConfig struct {
	// ReferencePath is read at Init unless Reference is set
	ReferencePath string
	Reference     image.Image
	// BlurSize is the Gaussian kernel edge, 0 disables blurring
	BlurSize int
	Width    int
	Height   int
}

// Difference marks pixels that differ from an empty reference shot.
// The score is the grayscale absolute difference scaled to [0, 1].
type Difference struct {
	cfg       DifferenceConfig
	mu        sync.Mutex
	reference *safe.Mat
}

func NewDifference(cfg DifferenceConfig) *Difference {
	if cfg.BlurSize > 0 && cfg.BlurSize%2 == 0 {
		cfg.BlurSize++
	}
	return &Difference{cfg: cfg}
}

func (d *Difference) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reference != nil {
		return nil
	}

	var (
		ref *safe.Mat
		err error
	)
	if d.cfg.Reference != nil {
		ref, err = conversion.ImageToBGR(d.cfg.Reference)
	} else {
		ref, err = safe.Wrap(gocv.IMRead(d.cfg.ReferencePath, gocv.IMReadColor), "reference")
	}
	if err != nil {
		return fmt.Errorf("failed to load reference image: %w", err)
	}
	defer ref.Close()

	resized, err := conversion.ResizeMat(ref, d.cfg.Width, d.cfg.Height, gocv.InterpolationLinear)
	if err != nil {
		return fmt.Errorf("reference resize: %w", err)
	}
	defer resized.Close()

	prepared, err := d.prepare(resized)
	if err != nil {
		return err
	}
	d.reference = prepared
	return nil
}

// prepare converts to grayscale and applies the configured blur
func (d *Difference) prepare(src *safe.Mat) (*safe.Mat, error) {
	gray, err := conversion.ConvertToGrayscale(src)
	if err != nil {
		return nil, err
	}
	if d.cfg.BlurSize <= 1 {
		return gray, nil
	}
	defer gray.Close()

	blurred, err := safe.NewMat(gray.Rows(), gray.Cols(), gray.Type(), "blurred")
	if err != nil {
		return nil, err
	}
	ksize := image.Pt(d.cfg.BlurSize, d.cfg.BlurSize)
	gocv.GaussianBlur(gray.GetMat(), blurred.Ptr(), ksize, 0, 0, gocv.BorderDefault)
	return blurred, nil
}

func (d *Difference) Classify(ctx context.Context, img image.Image, threshold float64) (models.PixelMask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reference == nil {
		return nil, models.ErrClassifierClosed
	}

	frame, err := conversion.ImageToBGR(img)
	if err != nil {
		return nil, fmt.Errorf("frame conversion: %w", err)
	}
	defer frame.Close()

	if frame.Cols() != d.reference.Cols() || frame.Rows() != d.reference.Rows() {
		return nil, fmt.Errorf("%w: frame %dx%d, reference %dx%d", models.ErrFrameSize,
			frame.Cols(), frame.Rows(), d.reference.Cols(), d.reference.Rows())
	}

	prepared, err := d.prepare(frame)
	if err != nil {
		return nil, err
	}
	defer prepared.Close()

	diff, err := safe.NewMat(prepared.Rows(), prepared.Cols(), gocv.MatTypeCV8UC1, "difference")
	if err != nil {
		return nil, err
	}
	defer diff.Close()
	gocv.AbsDiff(prepared.GetMat(), d.reference.GetMat(), diff.Ptr())

	scores, err := conversion.ConvertMatType(diff, gocv.MatTypeCV32FC1, 1.0/255.0)
	if err != nil {
		return nil, err
	}
	defer scores.Close()

	return conversion.ScoresToMask(scores, threshold)
}

func (d *Difference) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reference != nil {
		d.reference.Close()
		d.reference = nil
	}
	return nil
}
