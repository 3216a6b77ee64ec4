package models

import (
	"fmt"
	"time"
)

// RunConfig holds everything one reconstruction run needs
type RunConfig struct {
	Width  int
	Height int

	// Duration is the playback length. 0 defers to the frame source, and a
	// source reporting 0 as well means no end limit.
	Duration    time.Duration
	StartOffset time.Duration
	EndOffset   time.Duration

	Concurrency int
	// Thresholds are visited in order, from the strictest to the most permissive
	Thresholds []float64
	Debug      bool

	// PollInterval and StallTimeout bound the wait on a stalled frame source
	PollInterval time.Duration
	StallTimeout time.Duration
}

// Validate checks the run parameters
func (c RunConfig) Validate() error {
	if c.Width < 1 || c.Height < 1 {
		return NewValidationError("size", fmt.Sprintf("%dx%d", c.Width, c.Height), "width and height must be positive")
	}
	if c.Concurrency < 1 {
		return NewValidationError("concurrency", c.Concurrency, "must be at least 1")
	}
	if len(c.Thresholds) == 0 {
		return NewValidationError("thresholds", c.Thresholds, "at least one threshold is required")
	}
	for i, th := range c.Thresholds {
		if th < 0 || th > 1 {
			return NewValidationError("thresholds", th, "must be within [0, 1]")
		}
		if i > 0 && th < c.Thresholds[i-1] {
			return NewValidationError("thresholds", c.Thresholds, "must be in ascending order")
		}
	}
	if c.Duration < 0 || c.StartOffset < 0 || c.EndOffset < 0 {
		return NewValidationError("offsets", fmt.Sprintf("duration=%s start=%s end=%s", c.Duration, c.StartOffset, c.EndOffset),
			"must not be negative")
	}
	if c.PollInterval < 0 || c.StallTimeout < 0 {
		return NewValidationError("poll_interval", c.PollInterval, "stall timings must not be negative")
	}
	return nil
}

// FinishPosition returns the playback position at which a pass ends, and
// false when there is no limit
func (c RunConfig) FinishPosition(sourceDuration time.Duration) (time.Duration, bool) {
	duration := c.Duration
	if duration == 0 {
		duration = sourceDuration
	}
	if duration <= 0 {
		return 0, false
	}
	return duration - c.EndOffset, true
}
