package osal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// TaskID identifies a task. NoTask is never assigned.
type TaskID uint64

// NoTask is the zero TaskID.
const NoTask TaskID = 0

var lastTaskID atomic.Uint64

type taskKey struct{}

// Task is a named goroutine that can be asked to stop and waited on.
type Task struct {
	id     TaskID
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewTaskID allocates an identity for code that is not running inside a Task,
// such as a caller locking a Mutex from main.
func NewTaskID() TaskID {
	return TaskID(lastTaskID.Inc())
}

// Go starts fn in its own goroutine. The context passed to fn carries the
// task identity and is cancelled by Stop or when parent is done.
func Go(parent context.Context, name string, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		id:     NewTaskID(),
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	ctx = context.WithValue(ctx, taskKey{}, t.id)
	go func() {
		defer close(t.done)
		fn(ctx)
	}()
	return t
}

// ID returns the task identity.
func (t *Task) ID() TaskID { return t.id }

// Name returns the name given to Go.
func (t *Task) Name() string { return t.name }

// Stop cancels the task's context. It does not wait for the task to return.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
}

// Wait blocks until the task function has returned.
func (t *Task) Wait() {
	<-t.done
}

// Done is closed once the task function has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Current returns the identity of the task whose context is ctx.
func Current(ctx context.Context) TaskID {
	id, _ := ctx.Value(taskKey{}).(TaskID)
	return id
}

// IsThis reports whether ctx belongs to task t.
func (t *Task) IsThis(ctx context.Context) bool {
	return Current(ctx) == t.id
}

// Block suspends the calling task for d or until ctx is done.
func Block(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
