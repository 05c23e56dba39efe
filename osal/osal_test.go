package osal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q, err := NewQueue[int](3)
	require.NoError(t, err)
	require.Equal(t, 3, q.Cap())

	require.True(t, q.TrySend(1))
	require.True(t, q.TrySend(2))
	require.NoError(t, q.Send(context.Background(), 3))
	require.False(t, q.TrySend(4))
	require.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.TryReceive()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := q.TryReceive()
	require.False(t, ok)
}

func TestQueueBlockingWithContext(t *testing.T) {
	q, err := NewQueue[string](1)
	require.NoError(t, err)
	require.True(t, q.TrySend("full"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Send(ctx, "more"), context.DeadlineExceeded)

	got, err := q.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "full", got)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_, err = q.Receive(ctx2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewQueueInvalidDepth(t *testing.T) {
	_, err := NewQueue[int](0)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestMutexTryLock(t *testing.T) {
	m := NewMutex()
	a, b := NewTaskID(), NewTaskID()
	require.NotEqual(t, a, b)

	require.NoError(t, m.TryLock(a, 0))
	require.Equal(t, a, m.Holder())

	err := m.TryLock(b, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.True(t, errors.Is(m.TryLock(b, 0), ErrTimeout))

	require.NoError(t, m.Unlock())
	require.Equal(t, NoTask, m.Holder())
	require.ErrorIs(t, m.Unlock(), ErrNotLocked)
}

func TestMutexHandOver(t *testing.T) {
	m := NewMutex()
	owner := NewTaskID()
	m.Lock(owner)

	got := make(chan error, 1)
	task := Go(context.Background(), "waiter", func(ctx context.Context) {
		got <- m.TryLock(Current(ctx), time.Second)
	})

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Unlock())
	require.NoError(t, <-got)
	task.Wait()
	require.Equal(t, task.ID(), m.Holder())
}

func TestTaskStopAndIdentity(t *testing.T) {
	started := make(chan bool, 1)
	task := Go(context.Background(), "worker", func(ctx context.Context) {
		started <- Current(ctx) != NoTask
		<-ctx.Done()
	})
	require.Equal(t, "worker", task.Name())
	require.True(t, <-started)

	select {
	case <-task.Done():
		t.Fatal("task returned before Stop")
	default:
	}

	task.Stop()
	task.Stop()
	task.Wait()
	require.False(t, task.IsThis(context.Background()))
}

func TestBlock(t *testing.T) {
	start := time.Now()
	require.NoError(t, Block(context.Background(), 5*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Block(ctx, time.Hour), context.Canceled)
}

func TestClock(t *testing.T) {
	c := NewClock()
	require.GreaterOrEqual(t, c.NowMs(), int64(0))
	time.Sleep(5 * time.Millisecond)
	require.GreaterOrEqual(t, c.NowMs(), int64(5))
}
