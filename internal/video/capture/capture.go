// Package capture reads frames from a video file through OpenCV.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"extract-background/internal/logger"
	"extract-background/internal/models"
	"extract-background/internal/opencv/conversion"
	"extract-background/internal/opencv/safe"

	"gocv.io/x/gocv"
)

const component = "VideoCapture"

// Source is a models.FrameSource over a video file. Playback only moves on
// Seek and Tick, so the same position is read until the caller advances.
type Source struct {
	mu       sync.Mutex
	vc       *gocv.VideoCapture
	path     string
	step     time.Duration
	position time.Duration
	duration time.Duration
	width    int
	height   int
	outW     int
	outH     int
	log      logger.Logger
}

type Option func(*Source)

// WithStep sets the playback advance per Tick
func WithStep(step time.Duration) Option {
	return func(s *Source) {
		if step > 0 {
			s.step = step
		}
	}
}

// WithSize resizes every frame to width x height
func WithSize(width, height int) Option {
	return func(s *Source) {
		s.outW, s.outH = width, height
	}
}

func WithLogger(log logger.Logger) Option {
	return func(s *Source) {
		if log != nil {
			s.log = log
		}
	}
}

func Open(path string, opts ...Option) (*Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}

	s := &Source{
		vc:     vc,
		path:   path,
		step:   time.Second,
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		log:    logger.NoOp{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.outW <= 0 || s.outH <= 0 {
		s.outW, s.outH = s.width, s.height
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	frames := vc.Get(gocv.VideoCaptureFrameCount)
	if fps > 0 && frames > 0 {
		s.duration = time.Duration(frames / fps * float64(time.Second))
	}

	if err := safe.ValidateDimensions(s.outW, s.outH, "video capture"); err != nil {
		vc.Close()
		return nil, err
	}

	s.log.Info(component, "video opened", map[string]interface{}{
		"path":     path,
		"width":    s.width,
		"height":   s.height,
		"fps":      fps,
		"duration": s.duration.String(),
	})

	return s, nil
}

// Width returns the width of delivered frames
func (s *Source) Width() int { return s.outW }

// Height returns the height of delivered frames
func (s *Source) Height() int { return s.outH }

func (s *Source) Duration() time.Duration {
	return s.duration
}

func (s *Source) Next(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return models.Frame{}, models.ErrSourceExhausted
	}
	if s.duration > 0 && s.position >= s.duration {
		return models.Frame{}, models.ErrSourceExhausted
	}

	s.vc.Set(gocv.VideoCapturePosMsec, float64(s.position)/float64(time.Millisecond))

	raw := gocv.NewMat()
	if ok := s.vc.Read(&raw); !ok {
		raw.Close()
		return models.Frame{}, models.ErrSourceExhausted
	}

	img, err := s.decode(raw)
	if err != nil {
		if errors.Is(err, models.ErrSourceExhausted) {
			return models.Frame{}, err
		}
		return models.Frame{}, fmt.Errorf("decode frame at %s: %w", s.position, err)
	}
	return models.Frame{Image: img, Position: s.position}, nil
}

// decode takes ownership of raw. An empty Mat means playback ran out.
func (s *Source) decode(raw gocv.Mat) (image.Image, error) {
	if raw.Empty() {
		raw.Close()
		return nil, models.ErrSourceExhausted
	}
	mat, err := safe.Wrap(raw, "video_frame")
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	return s.toImage(mat)
}

func (s *Source) toImage(mat *safe.Mat) (image.Image, error) {
	if mat.Cols() == s.outW && mat.Rows() == s.outH {
		return conversion.MatToRGBA(mat)
	}
	resized, err := conversion.ResizeMat(mat, s.outW, s.outH, gocv.InterpolationArea)
	if err != nil {
		return nil, err
	}
	defer resized.Close()
	return conversion.MatToRGBA(resized)
}

func (s *Source) Seek(position time.Duration) error {
	if position < 0 {
		return models.NewValidationError("position", position, "must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	return nil
}

func (s *Source) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position += s.step
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return nil
	}
	err := s.vc.Close()
	s.vc = nil
	return err
}

// Shutdown closes the capture for a shutdown.Manager
func (s *Source) Shutdown() {
	if err := s.Close(); err != nil {
		s.log.Error(component, err, map[string]interface{}{"path": s.path})
	}
}
