package pipeline

import (
	"errors"
	"testing"

	"extract-background/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqResult(seq uint64) models.Result {
	return models.Result{Task: models.FrameTask{Seq: seq}}
}

func seqs(results []models.Result) []uint64 {
	out := make([]uint64, 0, len(results))
	for _, r := range results {
		out = append(out, r.Task.Seq)
	}
	return out
}

func TestOrderedQueueReleasesInOrder(t *testing.T) {
	q := NewOrderedQueue()

	ready, err := q.Push(seqResult(2))
	require.NoError(t, err)
	assert.Empty(t, ready)

	ready, err = q.Push(seqResult(1))
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.Equal(t, 2, q.Len())

	ready, err = q.Push(seqResult(0))
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, seqs(ready))
	assert.Equal(t, uint64(3), q.Next())
	assert.Zero(t, q.Len())

	ready, err = q.Push(seqResult(3))
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, seqs(ready))
}

func TestOrderedQueueRejectsDuplicates(t *testing.T) {
	q := NewOrderedQueue()
	_, err := q.Push(seqResult(0))
	require.NoError(t, err)

	_, err = q.Push(seqResult(0))
	assert.True(t, errors.Is(err, models.ErrOutOfOrder))

	_, err = q.Push(seqResult(4))
	require.NoError(t, err)
	_, err = q.Push(seqResult(4))
	assert.True(t, errors.Is(err, models.ErrOutOfOrder))
}
