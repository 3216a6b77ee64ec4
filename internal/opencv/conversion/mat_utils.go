package conversion

import (
	"fmt"
	"image"

	"extract-background/internal/models"
	"extract-background/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ConvertMatType converts Mat to a different data type, multiplying by scale
func ConvertMatType(src *safe.Mat, targetType gocv.MatType, scale float64) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "Mat type conversion"); err != nil {
		return nil, err
	}

	if src.Type() == targetType && scale == 1 {
		return src.Clone()
	}

	dst, err := safe.NewMat(src.Rows(), src.Cols(), targetType, "converted")
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	srcMat := src.GetMat()
	srcMat.ConvertToWithParams(dst.Ptr(), targetType, float32(scale), 0)

	return dst, nil
}

// ResizeMat resizes Mat to new dimensions using specified interpolation
func ResizeMat(src *safe.Mat, newWidth, newHeight int, interpolation gocv.InterpolationFlags) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "Mat resizing"); err != nil {
		return nil, err
	}

	if newWidth <= 0 || newHeight <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", newWidth, newHeight)
	}

	if src.Cols() == newWidth && src.Rows() == newHeight {
		return src.Clone()
	}

	dst, err := safe.NewMat(newHeight, newWidth, src.Type(), "resized")
	if err != nil {
		return nil, err
	}

	gocv.Resize(src.GetMat(), dst.Ptr(), image.Point{X: newWidth, Y: newHeight}, 0, 0, interpolation)

	return dst, nil
}

// ScoresToMask marks a pixel foreground where its CV_32FC1 score exceeds threshold
func ScoresToMask(scores *safe.Mat, threshold float64) (models.PixelMask, error) {
	if err := safe.ValidateMatType(scores, gocv.MatTypeCV32FC1, "score thresholding"); err != nil {
		return nil, err
	}

	values, err := scores.Float32s()
	if err != nil {
		return nil, err
	}
	if len(values) != scores.Rows()*scores.Cols() {
		return nil, fmt.Errorf("score data has %d values for %dx%d", len(values), scores.Cols(), scores.Rows())
	}

	mask := models.NewPixelMask(len(values), models.Background)
	for i, v := range values {
		if float64(v) > threshold {
			mask[i] = models.Foreground
		}
	}
	return mask, nil
}
