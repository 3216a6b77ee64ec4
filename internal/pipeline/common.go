package pipeline

import (
	"context"

	"extract-background/internal/models"
	"extract-background/internal/workerpool"
)

const (
	coordinatorComponent = "Coordinator"
	schedulerComponent   = "PassScheduler"
	mergeComponent       = "MergePipeline"
)

// Dispatcher is the part of the worker pool the scheduler needs
type Dispatcher interface {
	AcquireIdle(ctx context.Context) (int, error)
	Submit(idx int, task models.FrameTask) (*workerpool.Handle, error)
}

// Barrier lets the scheduler wait for merges to catch up with dispatch
type Barrier interface {
	WaitMerged(ctx context.Context, n uint64) error
}

// Merger is the convergence state the merge goroutine applies results to
type Merger interface {
	Merge(result models.Result) (models.Signal, error)
	Percent() float64
}
