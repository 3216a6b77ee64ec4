package convergence

import (
	"fmt"
	"image"
	"sync"

	"extract-background/internal/models"
)

// Tracker owns the completion state and the composited output of one run.
// Results must be merged in submission order; anything else is rejected with
// models.ErrOutOfOrder and leaves the state untouched.
type Tracker struct {
	mu sync.Mutex

	width, height int
	total         int

	// state is nil until the first mask arrives. 1 means never seen as background.
	state     models.PixelMask
	completed int
	next      uint64
	done      bool

	surface models.Surface
	canvas  *Canvas

	// settledPass records the pass that settled each pixel, -1 while unsettled
	settledPass []int32
}

type Option func(*Tracker)

// WithSurface composites into surface instead of the tracker's own canvas
func WithSurface(surface models.Surface) Option {
	return func(t *Tracker) {
		t.surface = surface
		t.canvas = nil
	}
}

func NewTracker(width, height int, opts ...Option) *Tracker {
	canvas := NewCanvas(width, height)
	t := &Tracker{
		width:       width,
		height:      height,
		total:       width * height,
		surface:     canvas,
		canvas:      canvas,
		settledPass: make([]int32, width*height),
	}
	for i := range t.settledPass {
		t.settledPass[i] = -1
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Merge applies one classification result. Failed results only advance the
// submission cursor.
func (t *Tracker) Merge(result models.Result) (models.Signal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkOrder(result.Task.Seq); err != nil {
		return models.Signal{}, err
	}

	if result.Failed() {
		t.next++
		return t.currentSignal(), nil
	}

	mask := result.Mask
	if len(mask) != t.total {
		return models.Signal{}, fmt.Errorf("%w: got %d values for %dx%d", models.ErrMaskSize, len(mask), t.width, t.height)
	}
	frame := result.Task.Frame
	if frame.Width() != t.width || frame.Height() != t.height {
		return models.Signal{}, fmt.Errorf("%w: got %dx%d, want %dx%d", models.ErrFrameSize,
			frame.Width(), frame.Height(), t.width, t.height)
	}

	t.next++

	if t.done {
		return models.Done(t.completed), nil
	}

	pass := int32(result.Task.Pass)
	if t.state == nil {
		t.state = mask.Clone()
		t.completed = 0
		for i, v := range t.state {
			if v == models.Background {
				t.completed++
				t.settledPass[i] = pass
			}
		}
	} else {
		added := 0
		for i, v := range t.state {
			if v == models.Foreground && mask[i] == models.Background {
				t.state[i] = models.Background
				t.settledPass[i] = pass
				added++
			}
		}
		if added == 0 {
			return models.NoChange(t.completed), nil
		}
		t.completed += added
	}

	t.surface.PaintBehind(frame.Image, mask)

	// a first mask that is all background settles every pixel at once
	if t.completed == t.total {
		t.done = true
		return models.Done(t.completed), nil
	}
	return models.Progress(t.completed), nil
}

func (t *Tracker) checkOrder(seq uint64) error {
	if seq != t.next {
		return fmt.Errorf("%w: got sequence %d, want %d", models.ErrOutOfOrder, seq, t.next)
	}
	return nil
}

func (t *Tracker) currentSignal() models.Signal {
	if t.done {
		return models.Done(t.completed)
	}
	return models.NoChange(t.completed)
}

func (t *Tracker) Completed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

func (t *Tracker) Total() int {
	return t.total
}

// Percent returns the settled share of pixels in the range 0..100
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total == 0 {
		return 0
	}
	return float64(t.completed) / float64(t.total) * 100
}

func (t *Tracker) IsDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Output returns a copy of the composited image, or nil when compositing
// goes to an external surface
func (t *Tracker) Output() *image.RGBA {
	if t.canvas == nil {
		return nil
	}
	return t.canvas.Snapshot()
}

// SettlementMap returns the pass index at which every pixel settled, -1 for
// pixels that never did
func (t *Tracker) SettlementMap() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int32, len(t.settledPass))
	copy(out, t.settledPass)
	return out
}

func (t *Tracker) Width() int  { return t.width }
func (t *Tracker) Height() int { return t.height }
