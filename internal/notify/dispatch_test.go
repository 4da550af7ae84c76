package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/parcelmatch/internal/logging"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *captureSink) Deliver(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, 16, logging.Discard())

	d.Publish(Event{Type: EventBidReceived, BidID: "b1"})
	d.Publish(Event{Type: EventBidAccepted, BidID: "b1"})
	d.Close()

	require.Equal(t, 2, sink.count())
	assert.Equal(t, EventBidReceived, sink.events[0].Type)
	assert.Equal(t, EventBidAccepted, sink.events[1].Type)
}

func TestDispatcherSwallowsSinkErrors(t *testing.T) {
	sink := &captureSink{err: errors.New("broker down")}
	d := NewDispatcher(sink, 16, logging.Discard())

	// Publish must not block or panic even when every delivery fails.
	for i := 0; i < 10; i++ {
		d.Publish(Event{Type: EventBidReceived, OccurredAt: time.Now()})
	}
	d.Close()
	assert.Equal(t, 10, sink.count())
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(&captureSink{}, 4, logging.Discard())
	d.Close()
	d.Close()
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{err: errors.New("down")}
	c := &captureSink{}
	m := MultiSink{a, b, c}

	err := m.Deliver(Event{Type: EventDeliveryStarted})
	require.Error(t, err)
	// Every sink still saw the event.
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 1, c.count())
}
