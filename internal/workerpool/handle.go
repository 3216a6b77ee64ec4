package workerpool

import (
	"context"

	"extract-background/internal/models"
)

// Handle is the future returned by Submit. It resolves exactly once.
type Handle struct {
	task   models.FrameTask
	done   chan struct{}
	result models.Result
}

func newHandle(task models.FrameTask) *Handle {
	return &Handle{task: task, done: make(chan struct{})}
}

func (h *Handle) resolve(result models.Result) {
	h.result = result
	close(h.done)
}

// Task returns the task the handle was created for
func (h *Handle) Task() models.FrameTask {
	return h.task
}

// Done is closed once the result is available
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle resolves or ctx is cancelled
func (h *Handle) Wait(ctx context.Context) (models.Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return models.Result{}, ctx.Err()
	}
}

// Result returns the resolved value without blocking
func (h *Handle) Result() (models.Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return models.Result{}, false
	}
}
