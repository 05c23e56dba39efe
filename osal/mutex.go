package osal

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// Mutex is a non-reentrant lock that records which task holds it and can be
// acquired with a timeout.
type Mutex struct {
	sem    chan struct{}
	holder atomic.Uint64
}

// NewMutex returns an unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: make(chan struct{}, 1)}
}

// Lock blocks until the mutex is acquired on behalf of owner.
func (m *Mutex) Lock(owner TaskID) {
	m.sem <- struct{}{}
	m.holder.Store(uint64(owner))
}

// TryLock acquires the mutex for owner, giving up after timeout. A zero
// timeout makes a single attempt.
func (m *Mutex) TryLock(owner TaskID, timeout time.Duration) error {
	select {
	case m.sem <- struct{}{}:
		m.holder.Store(uint64(owner))
		return nil
	default:
	}
	if timeout <= 0 {
		return fmt.Errorf("mutex held by task %d: %w", m.Holder(), ErrTimeout)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m.sem <- struct{}{}:
		m.holder.Store(uint64(owner))
		return nil
	case <-timer.C:
		return fmt.Errorf("mutex held by task %d after %v: %w", m.Holder(), timeout, ErrTimeout)
	}
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() error {
	m.holder.Store(0)
	select {
	case <-m.sem:
		return nil
	default:
		return ErrNotLocked
	}
}

// Holder returns the task holding the mutex, NoTask when it is free.
func (m *Mutex) Holder() TaskID {
	return TaskID(m.holder.Load())
}
