package classifier

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"extract-background/internal/models"
	"extract-background/internal/opencv/conversion"
	"extract-background/internal/opencv/safe"

	"gocv.io/x/gocv"
)

const defaultInputSize = 256

type SegmenterConfig struct {
	// Model and Config are handed to gocv.ReadNet
	Model  string
	Config string
	// InputSize is the square network input edge in pixels
	InputSize int
	// ForegroundClass selects the person channel of a multi-class output
	ForegroundClass int
	Width           int
	Height          int
}

// Segmenter runs a person segmentation network. A pixel is foreground
// when its person probability is above the threshold.
type Segmenter struct {
	cfg SegmenterConfig
	mu  sync.Mutex
	net *gocv.Net
}

func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	if cfg.InputSize <= 0 {
		cfg.InputSize = defaultInputSize
	}
	return &Segmenter{cfg: cfg}
}

func (s *Segmenter) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.net != nil {
		return nil
	}

	net := gocv.ReadNet(s.cfg.Model, s.cfg.Config)
	if net.Empty() {
		net.Close()
		return fmt.Errorf("failed to load segmentation model %s", s.cfg.Model)
	}
	s.net = &net
	return nil
}

func (s *Segmenter) Classify(ctx context.Context, img image.Image, threshold float64) (models.PixelMask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.net == nil {
		return nil, models.ErrClassifierClosed
	}

	frame, err := conversion.ImageToBGR(img)
	if err != nil {
		return nil, fmt.Errorf("frame conversion: %w", err)
	}
	defer frame.Close()

	size := image.Pt(s.cfg.InputSize, s.cfg.InputSize)
	blob := gocv.BlobFromImage(frame.GetMat(), 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	scores, err := s.personScores(output)
	if err != nil {
		return nil, err
	}
	defer scores.Close()

	resized, err := conversion.ResizeMat(scores, s.cfg.Width, s.cfg.Height, gocv.InterpolationLinear)
	if err != nil {
		return nil, fmt.Errorf("score resize: %w", err)
	}
	defer resized.Close()

	return conversion.ScoresToMask(resized, threshold)
}

// personScores turns an NCHW network output into a CV_32FC1 probability map.
// A single channel output is taken as probabilities, more channels are
// softmaxed and the foreground channel is kept.
func (s *Segmenter) personScores(output gocv.Mat) (*safe.Mat, error) {
	dims := output.Size()
	if len(dims) != 4 || dims[0] < 1 {
		return nil, fmt.Errorf("unexpected segmentation output shape %v", dims)
	}
	channels, rows, cols := dims[1], dims[2], dims[3]
	if s.cfg.ForegroundClass < 0 || s.cfg.ForegroundClass >= channels {
		return nil, fmt.Errorf("foreground class %d outside %d output channels", s.cfg.ForegroundClass, channels)
	}

	planes := make([][]float32, channels)
	for c := 0; c < channels; c++ {
		plane, err := channelValues(output, c)
		if err != nil {
			return nil, err
		}
		if len(plane) != rows*cols {
			return nil, fmt.Errorf("channel %d has %d values, want %d", c, len(plane), rows*cols)
		}
		planes[c] = plane
	}

	probs := make([]float32, rows*cols)
	fg := planes[s.cfg.ForegroundClass]
	for i := range probs {
		if channels == 1 {
			probs[i] = float32(math.Min(1, math.Max(0, float64(fg[i]))))
			continue
		}
		maxLogit := planes[0][i]
		for c := 1; c < channels; c++ {
			maxLogit = max(maxLogit, planes[c][i])
		}
		var sum float64
		for c := 0; c < channels; c++ {
			sum += math.Exp(float64(planes[c][i] - maxLogit))
		}
		probs[i] = float32(math.Exp(float64(fg[i]-maxLogit)) / sum)
	}

	scores, err := safe.NewMat(rows, cols, gocv.MatTypeCV32FC1, "person_scores")
	if err != nil {
		return nil, err
	}
	for i, p := range probs {
		scores.Ptr().SetFloatAt(i/cols, i%cols, p)
	}
	return scores, nil
}

func channelValues(output gocv.Mat, channel int) ([]float32, error) {
	plane := gocv.GetBlobChannel(output, 0, channel)
	wrapped, err := safe.NewMatFromMat(plane, "blob_channel")
	plane.Close()
	if err != nil {
		return nil, fmt.Errorf("channel %d: %w", channel, err)
	}
	defer wrapped.Close()
	return wrapped.Float32s()
}

func (s *Segmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.net == nil {
		return nil
	}
	err := s.net.Close()
	s.net = nil
	return err
}
