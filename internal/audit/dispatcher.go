package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	queueSize   = 100
	sinkTimeout = 5 * time.Second
)

// Event is one entry of the booking audit trail.
type Event struct {
	Action    string
	Entity    string
	EntityID  string
	SubjectID string
	Metadata  any
}

const (
	ActionBookingConfirmed = "booking_confirmed"
	ActionBookingFailed    = "booking_failed"
	ActionDirectorySeeded  = "directory_seeded"
)

// Sink persists events.
type Sink interface {
	Log(ctx context.Context, ev Event) error
}

// Dispatcher writes events from a single background worker so a slow sink
// never blocks a request. A nil *Dispatcher drops everything.
type Dispatcher struct {
	sink  Sink
	log   *slog.Logger
	queue chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(sink Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sink:  sink,
		log:   logger,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}

	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)

	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := d.sink.Log(ctx, ev); err != nil {
			d.log.Error("audit write failed", "action", ev.Action, "entity_id", ev.EntityID, "error", err)
		}
		cancel()
	}
}

func (d *Dispatcher) Dispatch(ev Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- ev:
	default:
		// queue full: audit never breaks a request
		d.log.Warn("audit queue full, dropping event", "action", ev.Action)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}
