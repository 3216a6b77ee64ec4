package timing

import (
	"context"
	"testing"
	"time"

	"extract-background/internal/debug/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	events []eventbus.Event
}

func (c *capture) Publish(e eventbus.Event) { c.events = append(c.events, e) }

func TestTrackerRecordAndAverage(t *testing.T) {
	tr := NewTracker(nil)
	tr.Record("classify", 10*time.Millisecond)
	tr.Record("classify", 30*time.Millisecond)

	assert.Len(t, tr.GetTimings("classify"), 2)
	assert.Equal(t, 20*time.Millisecond, tr.GetAverageTime("classify"))
	assert.Zero(t, tr.GetAverageTime("missing"))
}

func TestTrackerStartEnd(t *testing.T) {
	pub := &capture{}
	tr := NewTracker(pub)

	ctx := tr.StartTiming(context.Background(), "classify")
	d := tr.EndTiming(ctx)

	assert.GreaterOrEqual(t, d, time.Duration(0))
	require.Len(t, pub.events, 1)
	assert.Equal(t, eventbus.EventTimingCompleted, pub.events[0].Type)
	assert.Equal(t, "classify", pub.events[0].Data["operation"])
}

func TestTrackerEndWithoutStart(t *testing.T) {
	tr := NewTracker(nil)
	assert.Zero(t, tr.EndTiming(context.Background()))
	assert.Nil(t, tr.GetTimings("classify"))
}

func TestTrackerDisabledAndReset(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetEnabled(false)
	tr.Record("classify", time.Second)
	assert.Nil(t, tr.GetTimings("classify"))

	tr.SetEnabled(true)
	tr.Record("classify", time.Second)
	tr.Record("merge", time.Second)
	tr.Reset("classify")
	assert.Nil(t, tr.GetTimings("classify"))
	assert.Len(t, tr.GetTimings("merge"), 1)

	tr.Reset("")
	assert.Nil(t, tr.GetTimings("merge"))
}
