package models

import (
	"context"
	"image"
	"time"
)

// FrameSource is the pull interface over the input video.
//
// Next returns ErrSourceExhausted once no further frame exists and
// ErrFrameNotReady when the source is temporarily stalled.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Seek(position time.Duration) error
	Tick() error
	// Duration returns the playback length, or 0 when unknown
	Duration() time.Duration
}

// Classifier produces a foreground/background mask for one image.
// Init is called once per instance before the first Classify.
type Classifier interface {
	Init(ctx context.Context) error
	Classify(ctx context.Context, img image.Image, threshold float64) (PixelMask, error)
	Close() error
}

// ClassifierFactory builds the classifier used by one worker
type ClassifierFactory func(worker int) (Classifier, error)

// ProgressSink receives run progress. OnProgress is called from the merge
// goroutine and OnPassStart from the scheduler, so implementations must be
// safe for concurrent use.
type ProgressSink interface {
	OnProgress(percent float64)
	OnPassStart(pass int, threshold float64)
}

// Surface is the compositing target for settled background pixels
type Surface interface {
	// PaintBehind draws img where mask is background, behind anything already painted
	PaintBehind(img image.Image, mask PixelMask)
}
