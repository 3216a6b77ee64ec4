package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"extract-background/internal/debug/timing"
	"extract-background/internal/logger"
	"extract-background/internal/models"

	"golang.org/x/sync/errgroup"
)

const component = "WorkerPool"

type Config struct {
	Workers int
	Width   int
	Height  int
}

type job struct {
	task   models.FrameTask
	handle *Handle
}

// Pool runs a fixed set of classification workers. Callers reserve an idle
// worker with AcquireIdle and then hand it exactly one task with Submit.
type Pool struct {
	cfg     Config
	factory models.ClassifierFactory
	logger  logger.Logger
	timing  *timing.Tracker

	clients     []*Client
	tasks       []chan job
	idle        chan int
	completions chan *Handle

	mu       sync.Mutex
	reserved []bool
	started  bool
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

func NewPool(cfg Config, factory models.ClassifierFactory, log logger.Logger, tracker *timing.Tracker) (*Pool, error) {
	if cfg.Workers < 1 {
		return nil, models.NewValidationError("workers", cfg.Workers, "must be at least 1")
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, models.NewValidationError("size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "must be positive")
	}
	if factory == nil {
		return nil, models.NewValidationError("factory", nil, "classifier factory is required")
	}
	if log == nil {
		log = logger.NoOp{}
	}

	p := &Pool{
		cfg:         cfg,
		factory:     factory,
		logger:      log,
		timing:      tracker,
		clients:     make([]*Client, cfg.Workers),
		tasks:       make([]chan job, cfg.Workers),
		idle:        make(chan int, cfg.Workers),
		completions: make(chan *Handle, cfg.Workers),
		reserved:    make([]bool, cfg.Workers),
	}
	for i := range p.clients {
		p.clients[i] = NewClient(i, factory, cfg.Width, cfg.Height, tracker)
		p.tasks[i] = make(chan job, 1)
	}
	return p, nil
}

// Start initializes every client concurrently and launches the workers.
// No task is accepted unless all clients came up.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("worker pool already started")
	}
	p.started = true
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, client := range p.clients {
		client := client
		g.Go(func() error {
			return client.Init(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		p.closeClients()
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		return fmt.Errorf("%w: %w", models.ErrWorkerInit, err)
	}

	p.mu.Lock()
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()
	for i := range p.clients {
		p.wg.Add(1)
		go p.worker(i)
		p.idle <- i
	}

	p.logger.Info(component, "worker pool started", map[string]interface{}{
		"workers": p.cfg.Workers,
		"width":   p.cfg.Width,
		"height":  p.cfg.Height,
	})
	return nil
}

// AcquireIdle blocks until a worker is idle and reserves it. Workers are
// handed out in the order they became idle.
func (p *Pool) AcquireIdle(ctx context.Context) (int, error) {
	if !p.running() {
		return -1, models.ErrPoolStopped
	}

	select {
	case idx := <-p.idle:
		p.mu.Lock()
		p.reserved[idx] = true
		p.mu.Unlock()
		return idx, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.ctx.Done():
		return -1, models.ErrPoolStopped
	}
}

// Submit hands task to the reserved worker idx
func (p *Pool) Submit(idx int, task models.FrameTask) (*Handle, error) {
	if idx < 0 || idx >= len(p.clients) {
		return nil, fmt.Errorf("%w: index %d out of range", models.ErrSlotNotReserved, idx)
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, models.ErrPoolStopped
	}
	if !p.reserved[idx] {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: worker %d", models.ErrSlotNotReserved, idx)
	}
	p.reserved[idx] = false

	// the reserved worker is idle, so its task buffer is empty
	handle := newHandle(task)
	p.tasks[idx] <- job{task: task, handle: handle}
	p.mu.Unlock()
	return handle, nil
}

func (p *Pool) worker(idx int) {
	defer p.wg.Done()
	client := p.clients[idx]

	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.tasks[idx]:
			result := client.Classify(p.ctx, j.task)
			if p.ctx.Err() != nil {
				j.handle.resolve(models.Result{Worker: idx, Task: j.task, Err: context.Canceled})
				return
			}
			j.handle.resolve(result)

			select {
			case p.completions <- j.handle:
			case <-p.ctx.Done():
				return
			}
			p.idle <- idx
		}
	}
}

// Completions delivers resolved handles in completion order. It is closed by Stop.
func (p *Pool) Completions() <-chan *Handle {
	return p.completions
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return len(p.clients)
}

// IdleCount returns how many workers are currently idle and unreserved
func (p *Pool) IdleCount() int {
	return len(p.idle)
}

func (p *Pool) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.stopped && p.ctx != nil
}

// Stop cancels the workers and waits for them. Queued tasks resolve with
// context.Canceled and are not published to Completions.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		cancel := p.cancel
		p.mu.Unlock()

		if cancel == nil {
			return
		}
		cancel()
		p.wg.Wait()

		for i, tasks := range p.tasks {
			select {
			case j := <-tasks:
				j.handle.resolve(models.Result{Worker: i, Task: j.task, Err: context.Canceled})
			default:
			}
		}

		if err := p.closeClients(); err != nil {
			p.logger.Error(component, err, nil)
		}
		close(p.completions)

		p.logger.Debug(component, "worker pool stopped", nil)
	})
}

func (p *Pool) closeClients() error {
	var errs []error
	for _, client := range p.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close worker %d: %w", client.ID(), err))
		}
	}
	return errors.Join(errs...)
}
