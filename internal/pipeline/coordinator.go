package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"extract-background/internal/convergence"
	"extract-background/internal/debug/eventbus"
	"extract-background/internal/debug/timing"
	"extract-background/internal/logger"
	"extract-background/internal/models"
	"extract-background/internal/workerpool"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var errRunInProgress = errors.New("a run is already in progress")

// Coordinator wires the frame source, worker pool, merge loop and
// convergence tracker together for one reconstruction run at a time.
type Coordinator struct {
	cfg     models.RunConfig
	factory models.ClassifierFactory
	logger  logger.Logger
	events  eventbus.Publisher
	surface models.Surface

	mu      sync.RWMutex
	running bool
	tracker *convergence.Tracker
	stats   models.RunStats
}

type Option func(*Coordinator)

// WithSurface composites into an external surface instead of the built-in canvas
func WithSurface(surface models.Surface) Option {
	return func(c *Coordinator) {
		c.surface = surface
	}
}

func NewCoordinator(cfg models.RunConfig, factory models.ClassifierFactory, log logger.Logger,
	events eventbus.Publisher, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, models.NewValidationError("factory", nil, "classifier factory is required")
	}
	if log == nil {
		log = logger.NoOp{}
	}

	c := &Coordinator{
		cfg:     cfg,
		factory: factory,
		logger:  log,
		events:  events,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run reconstructs the background from source. It returns StatusCompleted
// once every pixel settled and StatusExhausted when all passes ran out
// first. Cancelling ctx aborts the run with ctx.Err().
func (c *Coordinator) Run(ctx context.Context, source models.FrameSource, sink models.ProgressSink) (models.TerminalStatus, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return models.StatusExhausted, errRunInProgress
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if sink == nil {
		sink = NopSink{}
	}

	runID := uuid.NewString()
	log := logger.WithFields(c.logger, map[string]interface{}{"run_id": runID})
	var events eventbus.Publisher
	if c.events != nil {
		events = runPublisher{runID: runID, next: c.events}
	}
	started := time.Now()

	var trackerOpts []convergence.Option
	if c.surface != nil {
		trackerOpts = append(trackerOpts, convergence.WithSurface(c.surface))
	}
	tracker := convergence.NewTracker(c.cfg.Width, c.cfg.Height, trackerOpts...)
	timings := timing.NewTracker(events)

	c.mu.Lock()
	c.tracker = tracker
	c.stats = models.RunStats{RunID: runID, Total: tracker.Total()}
	c.mu.Unlock()

	log.Info(coordinatorComponent, "run started", map[string]interface{}{
		"width":       c.cfg.Width,
		"height":      c.cfg.Height,
		"concurrency": c.cfg.Concurrency,
		"thresholds":  c.cfg.Thresholds,
		"start":       c.cfg.StartOffset.String(),
		"end":         c.cfg.EndOffset.String(),
	})

	pool, err := workerpool.NewPool(workerpool.Config{
		Workers: c.cfg.Concurrency,
		Width:   c.cfg.Width,
		Height:  c.cfg.Height,
	}, c.factory, log, timings)
	if err != nil {
		return models.StatusExhausted, err
	}
	if err := pool.Start(ctx); err != nil {
		log.Error(coordinatorComponent, err, nil)
		return models.StatusExhausted, err
	}
	defer pool.Stop()

	merge := NewMergeLoop(pool.Completions(), tracker, sink, log, events)
	scheduler := NewScheduler(c.cfg, source, pool, merge, sink, log, events)

	g, gctx := errgroup.WithContext(ctx)
	schedCtx, stopScheduling := context.WithCancel(gctx)
	defer stopScheduling()

	g.Go(func() error {
		total, err := scheduler.Run(schedCtx)
		if err != nil {
			if merge.Done() {
				return nil
			}
			return err
		}
		merge.Close(total)
		return nil
	})
	g.Go(func() error {
		return merge.Run(gctx, stopScheduling)
	})

	err = g.Wait()

	status := models.StatusExhausted
	if err == nil && merge.Done() {
		status = models.StatusCompleted
	}

	stats := models.RunStats{
		RunID:           runID,
		Status:          status,
		PassesStarted:   scheduler.Passes(),
		Dispatched:      scheduler.Dispatched(),
		Merged:          merge.Merged(),
		Failed:          merge.Failed(),
		Completed:       tracker.Completed(),
		Total:           tracker.Total(),
		AverageClassify: timings.GetAverageTime(workerpool.ClassifyOperation),
		Elapsed:         time.Since(started),
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Warning(coordinatorComponent, "run cancelled", map[string]interface{}{
				"percent": stats.Percent(),
			})
			return models.StatusExhausted, ctxErr
		}
		log.Error(coordinatorComponent, err, map[string]interface{}{
			"merged": stats.Merged,
		})
		return models.StatusExhausted, err
	}

	fields := map[string]interface{}{
		"status":     status.String(),
		"passes":     stats.PassesStarted,
		"dispatched": stats.Dispatched,
		"merged":     stats.Merged,
		"failed":     stats.Failed,
		"percent":    stats.Percent(),
		"elapsed":    stats.Elapsed.String(),
	}
	log.Info(coordinatorComponent, "run finished", fields)
	if events != nil {
		events.Publish(eventbus.Event{Type: eventbus.EventRunFinished, Data: fields})
	}

	return status, nil
}

// Output returns a copy of the last run's composited background, or nil
// before the first run and when an external surface is used
func (c *Coordinator) Output() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tracker == nil {
		return nil
	}
	return c.tracker.Output()
}

// SettlementMap returns the pass at which each pixel settled in the last run
func (c *Coordinator) SettlementMap() []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tracker == nil {
		return nil
	}
	return c.tracker.SettlementMap()
}

func (c *Coordinator) Stats() models.RunStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Coordinator) Config() models.RunConfig {
	return c.cfg
}

// runPublisher tags every event with the run id
type runPublisher struct {
	runID string
	next  eventbus.Publisher
}

func (p runPublisher) Publish(event eventbus.Event) {
	if event.Data == nil {
		event.Data = make(map[string]interface{}, 1)
	}
	event.Data["run_id"] = p.runID
	p.next.Publish(event)
}
