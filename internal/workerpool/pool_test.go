package workerpool

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"extract-background/internal/debug/timing"
	"extract-background/internal/logger"
	"extract-background/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	size     int
	initErr  error
	classify func(ctx context.Context, threshold float64) (models.PixelMask, error)
	closeErr error
	closed   atomic.Bool
}

func (f *fakeClassifier) Init(ctx context.Context) error { return f.initErr }

func (f *fakeClassifier) Classify(ctx context.Context, img image.Image, threshold float64) (models.PixelMask, error) {
	if f.classify != nil {
		return f.classify(ctx, threshold)
	}
	return models.NewPixelMask(f.size, models.Background), nil
}

func (f *fakeClassifier) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

type fakeFactory struct {
	mu    sync.Mutex
	built []*fakeClassifier
	build func(worker int) *fakeClassifier
}

func (f *fakeFactory) New(worker int) (models.Classifier, error) {
	c := f.build(worker)
	f.mu.Lock()
	f.built = append(f.built, c)
	f.mu.Unlock()
	return c, nil
}

func task(seq uint64, w, h int) models.FrameTask {
	return models.FrameTask{Seq: seq, Frame: models.Frame{Image: image.NewRGBA(image.Rect(0, 0, w, h))}}
}

func startPool(t *testing.T, workers int, factory models.ClassifierFactory) *Pool {
	t.Helper()
	pool, err := NewPool(Config{Workers: workers, Width: 2, Height: 2}, factory, logger.NoOp{}, timing.NewTracker(nil))
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(pool.Stop)
	return pool
}

func TestPoolAcquireSubmitComplete(t *testing.T) {
	factory := &fakeFactory{build: func(int) *fakeClassifier { return &fakeClassifier{size: 4} }}
	pool := startPool(t, 2, factory.New)

	ctx := context.Background()
	idx, err := pool.AcquireIdle(ctx)
	require.NoError(t, err)

	handle, err := pool.Submit(idx, task(0, 2, 2))
	require.NoError(t, err)

	result, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.NoError(t, result.Err)
	assert.Equal(t, idx, result.Worker)
	assert.Len(t, result.Mask, 4)

	select {
	case completed := <-pool.Completions():
		assert.Same(t, handle, completed)
	case <-time.After(time.Second):
		t.Fatal("handle was not published")
	}
}

func TestPoolIdleFIFO(t *testing.T) {
	factory := &fakeFactory{build: func(int) *fakeClassifier { return &fakeClassifier{size: 4} }}
	pool := startPool(t, 3, factory.New)

	ctx := context.Background()
	for want := 0; want < 3; want++ {
		idx, err := pool.AcquireIdle(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, idx)
	}
	assert.Zero(t, pool.IdleCount())
}

func TestPoolSubmitWithoutReservation(t *testing.T) {
	factory := &fakeFactory{build: func(int) *fakeClassifier { return &fakeClassifier{size: 4} }}
	pool := startPool(t, 1, factory.New)

	_, err := pool.Submit(0, task(0, 2, 2))
	assert.True(t, errors.Is(err, models.ErrSlotNotReserved))

	_, err = pool.Submit(5, task(0, 2, 2))
	assert.True(t, errors.Is(err, models.ErrSlotNotReserved))
}

func TestPoolAcquireHonorsContext(t *testing.T) {
	release := make(chan struct{})
	factory := &fakeFactory{build: func(int) *fakeClassifier {
		return &fakeClassifier{size: 4, classify: func(ctx context.Context, _ float64) (models.PixelMask, error) {
			<-release
			return models.NewPixelMask(4, models.Background), nil
		}}
	}}
	pool := startPool(t, 1, factory.New)
	defer close(release)

	idx, err := pool.AcquireIdle(context.Background())
	require.NoError(t, err)
	_, err = pool.Submit(idx, task(0, 2, 2))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.AcquireIdle(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPoolSlotReturnsAfterPublish(t *testing.T) {
	factory := &fakeFactory{build: func(int) *fakeClassifier { return &fakeClassifier{size: 4} }}
	pool := startPool(t, 1, factory.New)
	ctx := context.Background()

	for seq := uint64(0); seq < 5; seq++ {
		idx, err := pool.AcquireIdle(ctx)
		require.NoError(t, err)
		handle, err := pool.Submit(idx, task(seq, 2, 2))
		require.NoError(t, err)

		completed := <-pool.Completions()
		assert.Same(t, handle, completed)
		assert.Equal(t, seq, completed.Task().Seq)
	}
}

func TestPoolClassifierFailureResolvesHandle(t *testing.T) {
	boom := errors.New("boom")
	factory := &fakeFactory{build: func(int) *fakeClassifier {
		return &fakeClassifier{size: 4, classify: func(context.Context, float64) (models.PixelMask, error) {
			return nil, boom
		}}
	}}
	pool := startPool(t, 1, factory.New)

	idx, err := pool.AcquireIdle(context.Background())
	require.NoError(t, err)
	handle, err := pool.Submit(idx, task(0, 2, 2))
	require.NoError(t, err)

	completed := <-pool.Completions()
	result, ok := completed.Result()
	require.True(t, ok)
	assert.True(t, errors.Is(result.Err, boom))
	assert.Same(t, handle, completed)
}

func TestPoolMaskSizeMismatchIsFailure(t *testing.T) {
	factory := &fakeFactory{build: func(int) *fakeClassifier {
		return &fakeClassifier{size: 4, classify: func(context.Context, float64) (models.PixelMask, error) {
			return models.NewPixelMask(3, models.Background), nil
		}}
	}}
	pool := startPool(t, 1, factory.New)

	idx, err := pool.AcquireIdle(context.Background())
	require.NoError(t, err)
	_, err = pool.Submit(idx, task(0, 2, 2))
	require.NoError(t, err)

	result, _ := (<-pool.Completions()).Result()
	assert.True(t, errors.Is(result.Err, models.ErrMaskSize))
	assert.Nil(t, result.Mask)
}

func TestPoolClassifierPanicIsRecovered(t *testing.T) {
	factory := &fakeFactory{build: func(int) *fakeClassifier {
		return &fakeClassifier{size: 4, classify: func(context.Context, float64) (models.PixelMask, error) {
			panic("model exploded")
		}}
	}}
	pool := startPool(t, 1, factory.New)

	idx, err := pool.AcquireIdle(context.Background())
	require.NoError(t, err)
	_, err = pool.Submit(idx, task(0, 2, 2))
	require.NoError(t, err)

	result, _ := (<-pool.Completions()).Result()
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "model exploded")
}

func TestPoolInitFailureIsFatal(t *testing.T) {
	factory := &fakeFactory{build: func(worker int) *fakeClassifier {
		c := &fakeClassifier{size: 4}
		if worker == 1 {
			c.initErr = errors.New("model missing")
		}
		return c
	}}
	pool, err := NewPool(Config{Workers: 3, Width: 2, Height: 2}, factory.New, logger.NoOp{}, nil)
	require.NoError(t, err)

	err = pool.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrWorkerInit))

	_, err = pool.AcquireIdle(context.Background())
	assert.True(t, errors.Is(err, models.ErrPoolStopped))

	for _, c := range factory.built {
		assert.True(t, c.closed.Load())
	}
}

func TestPoolStopClosesClassifiersAndCompletions(t *testing.T) {
	factory := &fakeFactory{build: func(int) *fakeClassifier { return &fakeClassifier{size: 4} }}
	pool, err := NewPool(Config{Workers: 2, Width: 2, Height: 2}, factory.New, nil, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	pool.Stop()
	pool.Stop()

	_, open := <-pool.Completions()
	assert.False(t, open)
	for _, c := range factory.built {
		assert.True(t, c.closed.Load())
	}

	_, err = pool.AcquireIdle(context.Background())
	assert.True(t, errors.Is(err, models.ErrPoolStopped))
}

func TestPoolStopResolvesInFlightWithCanceled(t *testing.T) {
	started := make(chan struct{})
	factory := &fakeFactory{build: func(int) *fakeClassifier {
		return &fakeClassifier{size: 4, classify: func(ctx context.Context, _ float64) (models.PixelMask, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}}
	}}
	pool, err := NewPool(Config{Workers: 1, Width: 2, Height: 2}, factory.New, nil, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	idx, err := pool.AcquireIdle(context.Background())
	require.NoError(t, err)
	handle, err := pool.Submit(idx, task(0, 2, 2))
	require.NoError(t, err)
	<-started

	pool.Stop()

	result, ok := handle.Result()
	require.True(t, ok)
	assert.True(t, errors.Is(result.Err, context.Canceled))
	_, open := <-pool.Completions()
	assert.False(t, open)
}

func TestNewPoolValidation(t *testing.T) {
	factory := &fakeFactory{build: func(int) *fakeClassifier { return &fakeClassifier{size: 4} }}

	_, err := NewPool(Config{Workers: 0, Width: 2, Height: 2}, factory.New, nil, nil)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "workers", verr.Parameter)

	_, err = NewPool(Config{Workers: 1, Width: 0, Height: 2}, factory.New, nil, nil)
	assert.Error(t, err)

	_, err = NewPool(Config{Workers: 1, Width: 2, Height: 2}, nil, nil, nil)
	assert.Error(t, err)
}

func TestClientRecordsClassifyTiming(t *testing.T) {
	tracker := timing.NewTracker(nil)
	factory := &fakeFactory{build: func(int) *fakeClassifier { return &fakeClassifier{size: 4} }}
	client := NewClient(0, factory.New, 2, 2, tracker)
	require.NoError(t, client.Init(context.Background()))
	require.NoError(t, client.Init(context.Background()))
	assert.Len(t, factory.built, 1)

	result := client.Classify(context.Background(), task(0, 2, 2))
	assert.NoError(t, result.Err)
	assert.Len(t, tracker.GetTimings(ClassifyOperation), 1)
	assert.NoError(t, client.Close())
}

func TestCloseClientsNamesFailingWorker(t *testing.T) {
	stuck := errors.New("device busy")
	factory := &fakeFactory{build: func(worker int) *fakeClassifier {
		c := &fakeClassifier{size: 4}
		if worker == 1 {
			c.closeErr = stuck
		}
		return c
	}}
	pool, err := NewPool(Config{Workers: 2, Width: 2, Height: 2}, factory.New, nil, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	err = pool.closeClients()
	assert.ErrorIs(t, err, stuck)
	assert.ErrorContains(t, err, "close worker 1")
	assert.NotContains(t, err.Error(), "close worker 0")

	pool.Stop()
}
