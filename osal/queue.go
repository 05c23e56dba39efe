package osal

import (
	"context"
	"errors"
	"fmt"
)

// Predefined errors
var (
	ErrTimeout   = errors.New("osal: timed out")
	ErrInvalid   = errors.New("osal: invalid argument")
	ErrNotLocked = errors.New("osal: mutex not locked")
)

// Queue is a bounded FIFO with blocking and non-blocking send and receive.
type Queue[T any] struct {
	ch chan T
}

// NewQueue returns a queue holding at most depth items.
func NewQueue[T any](depth int) (*Queue[T], error) {
	if depth < 1 {
		return nil, fmt.Errorf("queue depth %d: %w", depth, ErrInvalid)
	}
	return &Queue[T]{ch: make(chan T, depth)}, nil
}

// Send blocks until v is queued or ctx is done.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues v if there is room and reports whether it did.
func (q *Queue[T]) TrySend(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Receive blocks until an item is available or ctx is done.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryReceive returns the oldest item without waiting.
func (q *Queue[T]) TryReceive() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap returns the queue depth.
func (q *Queue[T]) Cap() int { return cap(q.ch) }
