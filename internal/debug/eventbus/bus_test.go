package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handler(id string) HandlerFunc {
	return HandlerFunc{ID: id, Fn: func(e Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	}}
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(64)
	rec := &recorder{}
	bus.Subscribe(EventProgress, rec.handler("rec"))

	for i := 0; i < 20; i++ {
		bus.Publish(Event{Type: EventProgress, Data: map[string]interface{}{"i": i}})
	}
	bus.Shutdown()

	events := rec.snapshot()
	require.Len(t, events, 20)
	for i, e := range events {
		assert.Equal(t, i, e.Data["i"])
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestBusFiltersByType(t *testing.T) {
	bus := NewBus(8)
	rec := &recorder{}
	bus.Subscribe(EventPassStarted, rec.handler("rec"))

	bus.Publish(Event{Type: EventProgress})
	bus.Publish(Event{Type: EventPassStarted})
	bus.Shutdown()

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventPassStarted, events[0].Type)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(8)
	rec := &recorder{}
	h := rec.handler("rec")
	bus.Subscribe(EventProgress, h)
	bus.Unsubscribe(EventProgress, h)

	bus.Publish(Event{Type: EventProgress})
	bus.Shutdown()

	assert.Empty(t, rec.snapshot())
}

func TestBusPanickingHandler(t *testing.T) {
	bus := NewBus(8)
	rec := &recorder{}
	bus.Subscribe(EventProgress, HandlerFunc{ID: "bad", Fn: func(Event) { panic("boom") }})
	bus.Subscribe(EventProgress, rec.handler("good"))

	bus.Publish(Event{Type: EventProgress})
	bus.Shutdown()

	assert.Len(t, rec.snapshot(), 1)
}

func TestBusPublishAfterShutdown(t *testing.T) {
	bus := NewBus(8)
	bus.Shutdown()
	bus.Shutdown()

	assert.NotPanics(t, func() {
		bus.Publish(Event{Type: EventProgress})
	})
}
