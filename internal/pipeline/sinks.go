package pipeline

import (
	"math"
	"sync"

	"extract-background/internal/logger"
)

type NopSink struct{}

func (NopSink) OnProgress(float64)       {}
func (NopSink) OnPassStart(int, float64) {}


// LogSink logs pass starts and every Step percent of progress
type LogSink struct {
	logger logger.Logger
	step   float64

	mu     sync.Mutex
	logged float64
}

func NewLogSink(log logger.Logger, step float64) *LogSink {
	if step <= 0 {
		step = 10
	}
	return &LogSink{logger: log, step: step, logged: -1}
}

func (s *LogSink) OnProgress(percent float64) {
	s.mu.Lock()
	bucket := math.Floor(percent/s.step) * s.step
	if bucket <= s.logged {
		s.mu.Unlock()
		return
	}
	s.logged = bucket
	s.mu.Unlock()

	s.logger.Info("Progress", "background reconstruction progress", map[string]interface{}{
		"percent": math.Round(percent*100) / 100,
	})
}

func (s *LogSink) OnPassStart(pass int, threshold float64) {
	s.logger.Info("Progress", "threshold pass started", map[string]interface{}{
		"pass":      pass,
		"threshold": threshold,
	})
}
