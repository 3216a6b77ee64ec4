package pipeline

import (
	"fmt"

	"extract-background/internal/models"
)

// OrderedQueue buffers results that completed out of order and releases
// them strictly by sequence number. It is owned by the merge goroutine.
type OrderedQueue struct {
	next    uint64
	pending map[uint64]models.Result
}

func NewOrderedQueue() *OrderedQueue {
	return &OrderedQueue{pending: make(map[uint64]models.Result)}
}

// Push adds a result and returns every result that is now ready, in order.
// A sequence number that was already released or is already buffered is
// rejected.
func (q *OrderedQueue) Push(result models.Result) ([]models.Result, error) {
	seq := result.Task.Seq
	if seq < q.next {
		return nil, fmt.Errorf("%w: sequence %d already released", models.ErrOutOfOrder, seq)
	}
	if _, exists := q.pending[seq]; exists {
		return nil, fmt.Errorf("%w: sequence %d queued twice", models.ErrOutOfOrder, seq)
	}
	q.pending[seq] = result

	var ready []models.Result
	for {
		r, ok := q.pending[q.next]
		if !ok {
			break
		}
		delete(q.pending, q.next)
		ready = append(ready, r)
		q.next++
	}
	return ready, nil
}

// Next returns the sequence number the queue is waiting for
func (q *OrderedQueue) Next() uint64 {
	return q.next
}

// Len returns how many results are buffered
func (q *OrderedQueue) Len() int {
	return len(q.pending)
}
