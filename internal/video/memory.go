package video

import (
	"context"
	"image"
	"sync"
	"time"

	"extract-background/internal/models"
)

// MemorySource plays back a fixed list of images as if they were video
// frames spaced FrameInterval apart. Each Tick advances playback by Step.
type MemorySource struct {
	mu       sync.Mutex
	frames   []image.Image
	interval time.Duration
	step     time.Duration
	position time.Duration

	stallAfter int
	pulls      int
	seeks      int
	ticks      int
}

type MemoryOption func(*MemorySource)

// WithStep sets the playback advance per Tick. It defaults to the frame interval.
func WithStep(step time.Duration) MemoryOption {
	return func(s *MemorySource) {
		s.step = step
	}
}

// WithStallAfter makes Next report models.ErrFrameNotReady once n frames were
// returned since the last Seek
func WithStallAfter(n int) MemoryOption {
	return func(s *MemorySource) {
		s.stallAfter = n
	}
}

func NewMemorySource(frames []image.Image, interval time.Duration, opts ...MemoryOption) *MemorySource {
	if interval <= 0 {
		interval = time.Second
	}
	s := &MemorySource{
		frames:     frames,
		interval:   interval,
		step:       interval,
		stallAfter: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemorySource) Next(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stallAfter >= 0 && s.pulls >= s.stallAfter {
		return models.Frame{}, models.ErrFrameNotReady
	}

	idx := int(s.position / s.interval)
	if idx >= len(s.frames) {
		return models.Frame{}, models.ErrSourceExhausted
	}
	s.pulls++
	return models.Frame{Image: s.frames[idx], Position: s.position}, nil
}

func (s *MemorySource) Seek(position time.Duration) error {
	if position < 0 {
		return models.NewValidationError("position", position, "must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	s.pulls = 0
	s.seeks++
	return nil
}

func (s *MemorySource) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position += s.step
	s.ticks++
	return nil
}

func (s *MemorySource) Duration() time.Duration {
	return time.Duration(len(s.frames)) * s.interval
}

// Seeks returns how many times playback was rewound
func (s *MemorySource) Seeks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeks
}

func (s *MemorySource) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}
