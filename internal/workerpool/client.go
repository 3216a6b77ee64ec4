package workerpool

import (
	"context"
	"fmt"
	"sync"

	"extract-background/internal/debug/timing"
	"extract-background/internal/models"
)

// ClassifyOperation is the timing key for classifier calls
const ClassifyOperation = "classify"

// Client is the proxy to one classification worker. The classifier is
// created and initialized lazily, once.
type Client struct {
	id      int
	factory models.ClassifierFactory
	size    int
	timing  *timing.Tracker

	initOnce   sync.Once
	initErr    error
	classifier models.Classifier
}

func NewClient(id int, factory models.ClassifierFactory, width, height int, tracker *timing.Tracker) *Client {
	return &Client{
		id:      id,
		factory: factory,
		size:    width * height,
		timing:  tracker,
	}
}

func (c *Client) ID() int {
	return c.id
}

// Init creates the classifier and runs its one-time initialization.
// Later calls return the first outcome.
func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		classifier, err := c.factory(c.id)
		if err != nil {
			c.initErr = fmt.Errorf("worker %d: create classifier: %w", c.id, err)
			return
		}
		if err := classifier.Init(ctx); err != nil {
			classifier.Close()
			c.initErr = fmt.Errorf("worker %d: init classifier: %w", c.id, err)
			return
		}
		c.classifier = classifier
	})
	return c.initErr
}

// Classify runs the classifier on one task. It never returns an error;
// failures are carried in Result.Err.
func (c *Client) Classify(ctx context.Context, task models.FrameTask) (result models.Result) {
	result = models.Result{Worker: c.id, Task: task}

	if c.classifier == nil {
		result.Err = fmt.Errorf("worker %d: %w", c.id, models.ErrPoolStopped)
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			result.Mask = nil
			result.Err = fmt.Errorf("worker %d: classifier panic: %v", c.id, r)
		}
	}()

	timedCtx := ctx
	if c.timing != nil {
		timedCtx = c.timing.StartTiming(ctx, ClassifyOperation)
	}

	mask, err := c.classifier.Classify(timedCtx, task.Frame.Image, task.Threshold)

	if c.timing != nil {
		result.Duration = c.timing.EndTiming(timedCtx)
	}

	if err != nil {
		result.Err = fmt.Errorf("worker %d: classify seq %d: %w", c.id, task.Seq, err)
		return result
	}
	if len(mask) != c.size {
		result.Err = fmt.Errorf("worker %d: %w: got %d values, want %d", c.id, models.ErrMaskSize, len(mask), c.size)
		return result
	}

	result.Mask = mask
	return result
}

func (c *Client) Close() error {
	if c.classifier == nil {
		return nil
	}
	err := c.classifier.Close()
	c.classifier = nil
	return err
}
