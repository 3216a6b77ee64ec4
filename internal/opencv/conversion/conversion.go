package conversion

import (
	"fmt"
	"image"
	"image/color"
	"runtime"

	"extract-background/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ConvertToGrayscale converts multi-channel images to single-channel grayscale
func ConvertToGrayscale(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "grayscale conversion"); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if src.Channels() == 1 {
		return src.Clone()
	}

	dst, err := safe.NewMat(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1, "grayscale")
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	switch src.Channels() {
	case 3:
		gocv.CvtColor(src.GetMat(), dst.Ptr(), gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src.GetMat(), dst.Ptr(), gocv.ColorBGRAToGray)
	default:
		dst.Close()
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	return dst, nil
}

// MatToRGBA converts a 1, 3 (BGR) or 4 (BGRA) channel 8-bit Mat to an RGBA image
func MatToRGBA(src *safe.Mat) (*image.RGBA, error) {
	if err := safe.ValidateChannels(src, "Mat to image conversion", 1, 3, 4); err != nil {
		return nil, err
	}

	rows := src.Rows()
	cols := src.Cols()
	channels := src.Channels()

	data, err := src.Bytes()
	if err != nil {
		return nil, err
	}
	if len(data) < rows*cols*channels {
		return nil, fmt.Errorf("Mat data too short: %d bytes for %dx%dx%d", len(data), cols, rows, channels)
	}

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	pix := img.Pix

	for i, o := 0, 0; i < rows*cols; i, o = i+1, o+4 {
		s := i * channels
		switch channels {
		case 1:
			v := data[s]
			pix[o], pix[o+1], pix[o+2], pix[o+3] = v, v, v, 255
		case 3:
			pix[o], pix[o+1], pix[o+2], pix[o+3] = data[s+2], data[s+1], data[s], 255
		case 4:
			pix[o], pix[o+1], pix[o+2], pix[o+3] = data[s+2], data[s+1], data[s], data[s+3]
		}
	}

	return img, nil
}

// ImageToBGR converts any image to a 3-channel BGR Mat
func ImageToBGR(img image.Image) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if err := safe.ValidateDimensions(width, height, "image to Mat conversion"); err != nil {
		return nil, err
	}

	data := make([]byte, width*height*3)

	switch typedImg := img.(type) {
	case *image.RGBA:
		for y := 0; y < height; y++ {
			row := typedImg.Pix[y*typedImg.Stride:]
			for x := 0; x < width; x++ {
				s := x * 4
				d := (y*width + x) * 3
				data[d], data[d+1], data[d+2] = row[s+2], row[s+1], row[s]
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := color.RGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)
				d := (y*width + x) * 3
				data[d], data[d+1], data[d+2] = c.B, c.G, c.R
			}
		}
	}

	view, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return nil, fmt.Errorf("Mat creation failed: %w", err)
	}
	defer view.Close()

	// view points into data, so copy it out before data can be collected
	mat, err := safe.NewMatFromMat(view, "bgr")
	runtime.KeepAlive(data)
	return mat, err
}
