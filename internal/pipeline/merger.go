package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"extract-background/internal/debug/eventbus"
	"extract-background/internal/logger"
	"extract-background/internal/models"
	"extract-background/internal/workerpool"
)

// ErrConverged stops scheduling after every pixel settled
var ErrConverged = errors.New("background converged")

// MergeLoop drains completed handles, restores submission order and applies
// each result to the convergence state. It is the only goroutine that
// merges, so merges never overlap.
type MergeLoop struct {
	completions <-chan *workerpool.Handle
	queue       *OrderedQueue
	merger      Merger
	sink        models.ProgressSink
	logger      logger.Logger
	events      eventbus.Publisher

	// total is sent once by the scheduler after its last dispatch
	total chan uint64

	merged atomic.Uint64
	failed atomic.Uint64
	done   atomic.Bool

	// applied mirrors queue.Next for waiters outside the merge goroutine
	mu      sync.Mutex
	applied uint64
	changed chan struct{}
}

func NewMergeLoop(completions <-chan *workerpool.Handle, merger Merger, sink models.ProgressSink,
	log logger.Logger, events eventbus.Publisher) *MergeLoop {
	return &MergeLoop{
		completions: completions,
		queue:       NewOrderedQueue(),
		merger:      merger,
		sink:        sink,
		logger:      log,
		events:      events,
		total:       make(chan uint64, 1),
		changed:     make(chan struct{}),
	}
}

// Close tells the loop how many tasks were dispatched in total. Run returns
// once all of them were merged.
func (m *MergeLoop) Close(total uint64) {
	m.total <- total
}

// Run merges until every dispatched task was applied, the convergence state
// reports Done, or ctx is cancelled. onDone is called as soon as Done is
// observed.
func (m *MergeLoop) Run(ctx context.Context, onDone func()) error {
	total := m.total
	var expected uint64
	closed := false

	for {
		if closed && m.queue.Next() >= expected {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case n := <-total:
			expected = n
			closed = true
			total = nil

		case handle, ok := <-m.completions:
			if !ok {
				return models.ErrPipelineClosed
			}
			result, _ := handle.Result()

			ready, err := m.queue.Push(result)
			if err != nil {
				return err
			}
			for _, r := range ready {
				signal, err := m.apply(r)
				if err != nil {
					return err
				}
				if signal.IsDone() {
					m.done.Store(true)
					m.notify(r.Task.Seq + 1)
					if onDone != nil {
						onDone()
					}
					return nil
				}
			}
			if len(ready) > 0 {
				m.notify(m.queue.Next())
			}
		}
	}
}

func (m *MergeLoop) apply(result models.Result) (models.Signal, error) {
	if result.Failed() {
		m.failed.Add(1)
		m.logger.Warning(mergeComponent, "classification failed, skipping frame", map[string]interface{}{
			"seq":      result.Task.Seq,
			"pass":     result.Task.Pass,
			"worker":   result.Worker,
			"position": result.Task.Frame.Position.String(),
			"error":    result.Err.Error(),
		})
		m.publish(eventbus.EventFrameFailed, map[string]interface{}{
			"seq":    result.Task.Seq,
			"worker": result.Worker,
			"error":  result.Err.Error(),
		})
	}

	signal, err := m.merger.Merge(result)
	if err != nil {
		return models.Signal{}, fmt.Errorf("merge seq %d: %w", result.Task.Seq, err)
	}
	m.merged.Add(1)

	percent := m.merger.Percent()
	m.sink.OnProgress(percent)
	m.publish(eventbus.EventProgress, map[string]interface{}{
		"seq":       result.Task.Seq,
		"signal":    signal.Kind.String(),
		"completed": signal.Completed,
		"percent":   percent,
	})

	m.logger.Debug(mergeComponent, "merged", map[string]interface{}{
		"seq":       result.Task.Seq,
		"signal":    signal.Kind.String(),
		"completed": signal.Completed,
	})
	return signal, nil
}

func (m *MergeLoop) notify(applied uint64) {
	m.mu.Lock()
	m.applied = applied
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
}

// WaitMerged blocks until the first n tasks were merged. It returns
// ErrConverged once the run reached Done, since no further pass may start.
func (m *MergeLoop) WaitMerged(ctx context.Context, n uint64) error {
	for {
		m.mu.Lock()
		if m.done.Load() {
			m.mu.Unlock()
			return ErrConverged
		}
		if m.applied >= n {
			m.mu.Unlock()
			return nil
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (m *MergeLoop) publish(eventType string, data map[string]interface{}) {
	if m.events == nil {
		return
	}
	m.events.Publish(eventbus.Event{Type: eventType, Data: data})
}

// Merged counts applied results, failed ones included
func (m *MergeLoop) Merged() uint64 { return m.merged.Load() }
func (m *MergeLoop) Failed() uint64 { return m.failed.Load() }
func (m *MergeLoop) Done() bool     { return m.done.Load() }
