package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"extract-background/internal/debug/eventbus"
	"extract-background/internal/logger"
	"extract-background/internal/models"
)

// errStalled ends a pass whose source stopped producing frames
var errStalled = errors.New("frame source stalled")

// Scheduler sweeps the frame source once per threshold and dispatches every
// pulled frame to the pool. Seq numbers are assigned run-wide.
type Scheduler struct {
	cfg        models.RunConfig
	source     models.FrameSource
	dispatcher Dispatcher
	barrier    Barrier
	sink       models.ProgressSink
	logger     logger.Logger
	events     eventbus.Publisher

	nextSeq    uint64
	passes     atomic.Int64
	dispatched atomic.Uint64
	stalls     atomic.Uint64
}

// NewScheduler builds a scheduler. A non-nil barrier makes every pass wait
// until its tasks were merged before the next threshold starts, so a run
// that converges never begins another pass.
func NewScheduler(cfg models.RunConfig, source models.FrameSource, dispatcher Dispatcher, barrier Barrier,
	sink models.ProgressSink, log logger.Logger, events eventbus.Publisher) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		source:     source,
		dispatcher: dispatcher,
		barrier:    barrier,
		sink:       sink,
		logger:     log,
		events:     events,
	}
}

// Run performs every pass and returns the number of dispatched tasks.
// Cancelling ctx stops it before the next pull or dispatch.
func (s *Scheduler) Run(ctx context.Context) (uint64, error) {
	for pass, threshold := range s.cfg.Thresholds {
		if err := ctx.Err(); err != nil {
			return s.nextSeq, err
		}
		if err := s.runPass(ctx, pass, threshold); err != nil {
			return s.nextSeq, err
		}
		if s.barrier != nil {
			if err := s.barrier.WaitMerged(ctx, s.nextSeq); err != nil {
				return s.nextSeq, err
			}
		}
	}
	return s.nextSeq, nil
}

func (s *Scheduler) runPass(ctx context.Context, pass int, threshold float64) error {
	if err := s.source.Seek(s.cfg.StartOffset); err != nil {
		return fmt.Errorf("seek to %s for pass %d: %w", s.cfg.StartOffset, pass, err)
	}

	s.passes.Add(1)
	s.sink.OnPassStart(pass, threshold)
	s.publish(eventbus.EventPassStarted, map[string]interface{}{
		"pass":      pass,
		"threshold": threshold,
	})
	s.logger.Info(schedulerComponent, "pass started", map[string]interface{}{
		"pass":      pass,
		"threshold": threshold,
		"seq":       s.nextSeq,
	})

	finish, limited := s.cfg.FinishPosition(s.source.Duration())
	frames := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := s.pull(ctx)
		if err != nil {
			if errors.Is(err, models.ErrSourceExhausted) || errors.Is(err, errStalled) {
				break
			}
			return fmt.Errorf("pull frame in pass %d: %w", pass, err)
		}

		if frame.Width() != s.cfg.Width || frame.Height() != s.cfg.Height {
			return fmt.Errorf("%w: frame at %s is %dx%d, want %dx%d", models.ErrFrameSize,
				frame.Position, frame.Width(), frame.Height(), s.cfg.Width, s.cfg.Height)
		}

		idx, err := s.dispatcher.AcquireIdle(ctx)
		if err != nil {
			return err
		}

		seq := s.nextSeq
		task := models.FrameTask{Seq: seq, Pass: pass, Threshold: threshold, Frame: frame}
		if _, err := s.dispatcher.Submit(idx, task); err != nil {
			return fmt.Errorf("submit seq %d: %w", seq, err)
		}
		s.nextSeq++
		s.dispatched.Add(1)
		frames++

		if err := s.source.Tick(); err != nil {
			if errors.Is(err, models.ErrSourceExhausted) {
				break
			}
			return fmt.Errorf("advance playback after seq %d: %w", seq, err)
		}

		if limited && frame.Position >= finish {
			break
		}
	}

	s.logger.Debug(schedulerComponent, "pass finished", map[string]interface{}{
		"pass":   pass,
		"frames": frames,
	})
	return nil
}

// pull fetches the next frame, waiting out a stalled source for at most
// StallTimeout
func (s *Scheduler) pull(ctx context.Context) (models.Frame, error) {
	var waited time.Duration
	for {
		frame, err := s.source.Next(ctx)
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, models.ErrFrameNotReady) {
			return models.Frame{}, err
		}
		if waited >= s.cfg.StallTimeout || s.cfg.PollInterval <= 0 {
			s.stalls.Add(1)
			s.logger.Warning(schedulerComponent, "frame source stalled, ending pass", map[string]interface{}{
				"waited": waited.String(),
			})
			return models.Frame{}, errStalled
		}

		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.Frame{}, ctx.Err()
		case <-timer.C:
		}
		waited += s.cfg.PollInterval
	}
}

func (s *Scheduler) publish(eventType string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(eventbus.Event{Type: eventType, Data: data})
}

func (s *Scheduler) Passes() int        { return int(s.passes.Load()) }
func (s *Scheduler) Dispatched() uint64 { return s.dispatched.Load() }
func (s *Scheduler) Stalls() uint64     { return s.stalls.Load() }
