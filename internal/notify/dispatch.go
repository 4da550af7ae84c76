package notify

import (
	"log/slog"
	"sync"

	"github.com/example/parcelmatch/internal/observability"
)

// Dispatcher decouples the core's success path from sink availability: events
// are queued on a channel and drained by a background goroutine, so Publish
// never blocks and never fails. When the queue is full the event is dropped
// and counted.
type Dispatcher struct {
	sink   Sink
	events chan Event
	logger *slog.Logger
	done   chan struct{}
	once   sync.Once
}

func NewDispatcher(sink Sink, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		sink:   sink,
		events: make(chan Event, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
	go d.drain()
	return d
}

// Publish enqueues an event for delivery. Best-effort: a full queue drops
// the event.
func (d *Dispatcher) Publish(e Event) {
	select {
	case d.events <- e:
		observability.EventsPublished.WithLabelValues(e.Type).Inc()
	default:
		observability.EventsDropped.Inc()
		d.logger.Warn("notification queue full, event dropped", "type", e.Type, "bid_id", e.BidID)
	}
}

func (d *Dispatcher) drain() {
	defer close(d.done)
	for e := range d.events {
		if d.sink == nil {
			continue
		}
		if err := d.sink.Deliver(e); err != nil {
			// Sink failures are logged and swallowed; they never escalate.
			d.logger.Error("notification delivery failed", "type", e.Type, "error", err)
		}
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.events) })
	<-d.done
}
