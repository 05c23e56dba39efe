package cellport

import (
	"context"
	"fmt"

	"github.com/allbin/go-cellport/osal"
	"go.uber.org/atomic"
)

// EventKind identifies what a port is reporting.
type EventKind uint8

const (
	// EventDataAvailable means the receive buffer holds data. Consumers must
	// check Read's result rather than count these events.
	EventDataAvailable EventKind = iota + 1
	// EventTransmitComplete means a Write, or a TX ring drain, has finished.
	EventTransmitComplete
	// EventError carries a negative porting layer code in Event.Code.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventDataAvailable:
		return "data-available"
	case EventTransmitComplete:
		return "transmit-complete"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is one notification from a port.
type Event struct {
	Port   int
	Kind   EventKind
	Code   int32 // set for EventError
	TimeMs int64 // milliseconds since the owning Transport started
}

// Err returns the error an EventError stands for, nil for other kinds.
func (e Event) Err() error {
	if e.Kind != EventError {
		return nil
	}
	return CodeError(e.Code)
}

// envelope carries the coalescing flag of the posting port alongside the
// event so the receiver can clear it without a lookup.
type envelope struct {
	ev      Event
	pending *atomic.Bool
}

// EventQueue delivers port events to consumer tasks. It may be shared by
// several ports; events from one port keep their posting order.
//
// Posting never blocks. When the queue is full the event is dropped and
// counted, and DataAvailable events are coalesced while one is still queued
// for the same port.
type EventQueue struct {
	q       *osal.Queue[envelope]
	posted  atomic.Int64
	dropped atomic.Int64
}

// NewEventQueue returns a queue holding at most depth events.
func NewEventQueue(depth int) (*EventQueue, error) {
	q, err := osal.NewQueue[envelope](depth)
	if err != nil {
		return nil, fmt.Errorf("event queue: %w", ErrInvalidParameter)
	}
	return &EventQueue{q: q}, nil
}

// post queues ev without blocking. pending, when non-nil, is the posting
// port's DataAvailable flag.
func (eq *EventQueue) post(ev Event, pending *atomic.Bool) bool {
	if pending != nil && !pending.CompareAndSwap(false, true) {
		return true // one is already queued
	}
	if !eq.q.TrySend(envelope{ev: ev, pending: pending}) {
		if pending != nil {
			pending.Store(false)
		}
		eq.dropped.Inc()
		return false
	}
	eq.posted.Inc()
	return true
}

func (eq *EventQueue) delivered(env envelope) Event {
	if env.pending != nil {
		env.pending.Store(false)
	}
	return env.ev
}

// Receive blocks until an event is available or ctx is done.
func (eq *EventQueue) Receive(ctx context.Context) (Event, error) {
	env, err := eq.q.Receive(ctx)
	if err != nil {
		return Event{}, err
	}
	return eq.delivered(env), nil
}

// TryReceive returns the oldest event without waiting.
func (eq *EventQueue) TryReceive() (Event, bool) {
	env, ok := eq.q.TryReceive()
	if !ok {
		return Event{}, false
	}
	return eq.delivered(env), true
}

// Len returns the number of queued events.
func (eq *EventQueue) Len() int { return eq.q.Len() }

// Cap returns the queue depth.
func (eq *EventQueue) Cap() int { return eq.q.Cap() }

// Posted returns how many events were queued since creation.
func (eq *EventQueue) Posted() int64 { return eq.posted.Load() }

// Dropped returns how many events were lost to a full queue.
func (eq *EventQueue) Dropped() int64 { return eq.dropped.Load() }
