package cellport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/allbin/go-cellport/osal"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newSimTransport(t *testing.T) (*Transport, *SimDriver) {
	t.Helper()
	d := NewSimDriver()
	tr := New(d)
	t.Cleanup(func() {
		if err := tr.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return tr, d
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func drainEvents(eq *EventQueue) []Event {
	var evs []Event
	for {
		ev, ok := eq.TryReceive()
		if !ok {
			return evs
		}
		evs = append(evs, ev)
	}
}

func TestInitIdempotent(t *testing.T) {
	tr, _ := newSimTransport(t)

	p1, q1, err := tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)
	p2, q2, err := tr.Init(0, WithPins(1, 2), WithBaudRate(9600))
	require.NoError(t, err)

	require.Same(t, p1, p2)
	require.Same(t, q1, q2)
	require.Equal(t, DefaultBaudRate, p2.Config().BaudRate)
	require.Equal(t, []int{0}, tr.Ports())
}

func TestInitInvalidParameter(t *testing.T) {
	tests := []struct {
		name string
		id   int
		opts []Option
	}{
		{"negative id", -1, []Option{WithPins(1, 2)}},
		{"missing pins", 0, nil},
		{"rts without threshold", 0, []Option{WithPins(1, 2), WithFlowControlPins(NoPin, 4)}},
		{"bad baud", 0, []Option{WithPins(1, 2), WithBaudRate(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, d := newSimTransport(t)
			_, _, err := tr.Init(tt.id, tt.opts...)
			require.True(t, errors.Is(err, ErrInvalidParameter), "got %v", err)
			require.Equal(t, CodeInvalidParameter, ErrorCode(err))
			require.Nil(t, d.Line(0), "line claimed by failed init")
			require.Empty(t, tr.Ports())
		})
	}
}

// An RTS pin with a zero threshold and no CTS pin is a valid
// configuration.
func TestInitRTSZeroThresholdWithoutCTS(t *testing.T) {
	tr, d := newSimTransport(t)

	p, _, err := tr.Init(1, WithPins(1, 2), WithFlowControlPins(NoPin, 4), WithRTSThreshold(0))
	require.NoError(t, err)
	require.Equal(t, FlowAsserted, p.Stats().RTS)
	require.Equal(t, []bool{true}, d.Line(1).RTSHistory())
}

func TestInitDriverFailure(t *testing.T) {
	tr, d := newSimTransport(t)
	d.FailOpen(0, errors.New("pins in use"))

	_, _, err := tr.Init(0, WithPins(1, 2))
	require.True(t, errors.Is(err, ErrPlatform), "got %v", err)
	require.Nil(t, tr.Port(0))

	// Nothing was left registered; a retry succeeds.
	_, _, err = tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)
}

func TestInitLockTimeout(t *testing.T) {
	tr, _ := newSimTransport(t)

	tr.lock.Lock(osal.NewTaskID())
	_, _, err := tr.Init(0, WithPins(1, 2), WithLockTimeout(10*time.Millisecond))
	require.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	require.NoError(t, tr.lock.Unlock())

	_, _, err = tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)
}

func TestLockTimeoutNamesHolder(t *testing.T) {
	tr, _ := newSimTransport(t)

	require.NoError(t, tr.acquire("deinit uart 3", time.Second))
	first := tr.lock.Holder()
	require.NotEqual(t, osal.NoTask, first)

	_, _, err := tr.Init(0, WithPins(1, 2), WithLockTimeout(10*time.Millisecond))
	require.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	require.Contains(t, err.Error(), fmt.Sprintf("lock held by deinit uart 3 (task %d)", first))
	tr.unlock()

	require.NoError(t, tr.acquire("init uart 0", time.Second))
	require.NotEqual(t, first, tr.lock.Holder(), "each caller locks as its own task")
	tr.unlock()
	require.Equal(t, osal.NoTask, tr.lock.Holder())
}

func TestReadEmptyReturnsZero(t *testing.T) {
	tr, _ := newSimTransport(t)
	_, _, err := tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)

	n, err := tr.Read(0, make([]byte, 64))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReadWriteArguments(t *testing.T) {
	tr, _ := newSimTransport(t)

	_, err := tr.Read(5, make([]byte, 1))
	require.True(t, errors.Is(err, ErrNotInitialized))
	_, err = tr.Write(5, []byte("x"))
	require.True(t, errors.Is(err, ErrNotInitialized))

	_, _, err = tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)
	_, err = tr.Read(0, nil)
	require.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = tr.Write(-1, []byte("x"))
	require.True(t, errors.Is(err, ErrInvalidParameter))
	require.True(t, errors.Is(tr.Deinit(7), ErrNotInitialized))
}

// Capacity 1024, threshold 256: 800 bytes buffered de-asserts RTS, reading
// down to 200 re-asserts it.
func TestRTSThresholdScenario(t *testing.T) {
	tr, d := newSimTransport(t)
	p, _, err := tr.Init(0, WithPins(1, 2), WithFlowControlPins(NoPin, 4), WithRTSThreshold(256))
	require.NoError(t, err)
	line := d.Line(0)

	require.Equal(t, 800, line.Deliver(pattern(800)))
	require.False(t, line.RTS())
	require.Equal(t, FlowDeasserted, p.Stats().RTS)

	n, err := tr.Read(0, make([]byte, 600))
	require.NoError(t, err)
	require.Equal(t, 600, n)
	require.True(t, line.RTS())

	if diff := cmp.Diff([]bool{true, false, true}, line.RTSHistory()); diff != "" {
		t.Errorf("rts history (-want +got):\n%s", diff)
	}
	require.Equal(t, int64(2), p.Stats().RTSTransitions)
}

// A 2000 byte write with no transmit buffer returns only once every byte
// reached the driver.
func TestWriteSynchronous(t *testing.T) {
	tr, d := newSimTransport(t)
	_, q, err := tr.Init(0, WithPins(1, 2), WithTxBufferSize(0))
	require.NoError(t, err)
	d.Line(0).LimitTransmit(64)

	data := pattern(2000)
	n, err := tr.Write(0, data)
	require.NoError(t, err)
	require.Equal(t, 2000, n)
	require.True(t, bytes.Equal(data, d.Line(0).Transmitted()))

	evs := drainEvents(q)
	require.Len(t, evs, 1)
	require.Equal(t, EventTransmitComplete, evs[0].Kind)
}

func TestWritePartialOnFault(t *testing.T) {
	tr, d := newSimTransport(t)
	p, q, err := tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)
	d.Line(0).LimitTransmit(32)
	d.Line(0).FailTransmitAfter(100)

	n, err := p.Write(pattern(300))
	require.True(t, errors.Is(err, ErrLineFault), "got %v", err)
	require.Equal(t, 100, n)
	require.Len(t, d.Line(0).Transmitted(), 100)

	evs := drainEvents(q)
	require.Len(t, evs, 1)
	require.Equal(t, EventError, evs[0].Kind)
	require.Equal(t, CodeLineFault, evs[0].Code)
}

func TestWriteBuffered(t *testing.T) {
	tr, d := newSimTransport(t)
	p, q, err := tr.Init(0, WithPins(1, 2), WithTxBufferSize(64))
	require.NoError(t, err)
	d.Line(0).LimitTransmit(10)

	data := pattern(1000)
	n, err := p.Write(data)
	require.NoError(t, err)
	require.Equal(t, 1000, n)
	require.NoError(t, p.Flush())
	require.True(t, bytes.Equal(data, d.Line(0).Transmitted()))

	var complete int
	for _, ev := range drainEvents(q) {
		if ev.Kind == EventTransmitComplete {
			complete++
		}
	}
	require.GreaterOrEqual(t, complete, 1)
}

func TestRoundTrip(t *testing.T) {
	tr, d := newSimTransport(t)
	d.SetPacing(7, 0)
	p, q, err := tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)
	line := d.Line(0)

	in := pattern(900)
	for off := 0; off < len(in); off += 100 {
		require.NoError(t, line.Inject(in[off:off+100]))
	}
	line.Settle()

	evs := drainEvents(q)
	require.Len(t, evs, 1, "data available must be coalesced")
	require.Equal(t, EventDataAvailable, evs[0].Kind)

	var got bytes.Buffer
	buf := make([]byte, 128)
	for {
		n, err := p.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got.Write(buf[:n])
	}
	if diff := cmp.Diff(in, got.Bytes()); diff != "" {
		t.Errorf("received bytes (-want +got):\n%s", diff)
	}

	// Echo the modem's view back through the transmit path.
	line.SetEcho(true)
	_, err = p.Write([]byte("AT\r"))
	require.NoError(t, err)
	line.Settle()
	n, err := p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "AT\r", string(buf[:n]))
}

func TestOverflowCountsAndReports(t *testing.T) {
	tr, d := newSimTransport(t)
	p, q, err := tr.Init(0, WithPins(1, 2), WithRxBufferSize(16))
	require.NoError(t, err)

	require.Equal(t, 16, d.Line(0).Deliver(pattern(20)))

	s := p.Stats()
	require.Equal(t, int64(16), s.Received)
	require.Equal(t, int64(4), s.Dropped)
	require.Equal(t, 16, s.HighWater)

	var kinds []EventKind
	for _, ev := range drainEvents(q) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventError {
			require.True(t, errors.Is(ev.Err(), ErrOverflow))
		}
	}
	require.Equal(t, []EventKind{EventError, EventDataAvailable}, kinds)
}

func TestSharedEventQueue(t *testing.T) {
	tr, d := newSimTransport(t)
	shared, err := NewEventQueue(8)
	require.NoError(t, err)

	_, q0, err := tr.Init(0, WithPins(1, 2), WithEventQueue(shared))
	require.NoError(t, err)
	_, q1, err := tr.Init(1, WithPins(3, 4), WithEventQueue(shared))
	require.NoError(t, err)
	require.Same(t, shared, q0)
	require.Same(t, shared, q1)

	d.Line(0).Deliver([]byte("a"))
	d.Line(1).Deliver([]byte("b"))

	var ports []int
	for _, ev := range drainEvents(shared) {
		ports = append(ports, ev.Port)
	}
	require.Equal(t, []int{0, 1}, ports)
}

func TestLineFaultEvent(t *testing.T) {
	tr, d := newSimTransport(t)
	p, q, err := tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)

	d.Line(0).RaiseFault(errors.New("framing error"))
	ev, ok := q.TryReceive()
	require.True(t, ok)
	require.Equal(t, EventError, ev.Kind)
	require.Equal(t, CodeLineFault, ev.Code)
	require.Equal(t, int64(1), p.Stats().Faults)
}

func TestReadContextWaitsForData(t *testing.T) {
	tr, d := newSimTransport(t)
	p, _, err := tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		d.Line(0).Deliver([]byte("OK\r\n"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	buf := make([]byte, 16)
	n, err := p.ReadContext(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "OK\r\n", string(buf[:n]))

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	_, err = p.ReadContext(short, buf)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWriteWaitsForCTS(t *testing.T) {
	tr, d := newSimTransport(t)
	p, _, err := tr.Init(0, WithPins(1, 2), WithFlowControlPins(3, NoPin))
	require.NoError(t, err)
	line := d.Line(0)
	line.SetCTS(false)

	err = p.WaitClearToSend(10 * time.Millisecond)
	require.True(t, errors.Is(err, ErrTimeout), "got %v", err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Write([]byte("AT\r"))
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("Write returned while CTS inactive: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	require.Empty(t, line.Transmitted())

	line.SetCTS(true)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Write did not resume after CTS asserted")
	}
	require.Equal(t, "AT\r", string(line.Transmitted()))
	require.NoError(t, p.WaitClearToSend(10*time.Millisecond))
}

// Deinit with a Write stuck in the driver unblocks the writer and waits for
// it before returning.
func TestDeinitWithWriteInFlight(t *testing.T) {
	tr, d := newSimTransport(t)
	p, _, err := tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)
	line := d.Line(0)
	line.HoldTransmit()

	done := make(chan error, 1)
	go func() {
		_, err := p.Write(pattern(64))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, tr.Deinit(0))
	select {
	case err := <-done:
		require.True(t, errors.Is(err, ErrLineFault), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("in-flight Write never returned")
	}
	require.True(t, line.Closed())

	_, err = p.Read(make([]byte, 4))
	require.True(t, errors.Is(err, ErrNotInitialized))
	_, err = tr.Read(0, make([]byte, 4))
	require.True(t, errors.Is(err, ErrNotInitialized))
	require.True(t, errors.Is(tr.Deinit(0), ErrNotInitialized))

	// The id can be brought up again.
	_, _, err = tr.Init(0, WithPins(1, 2))
	require.NoError(t, err)
}

func TestDeinitWithBufferedWriterBlocked(t *testing.T) {
	tr, d := newSimTransport(t)
	p, _, err := tr.Init(0, WithPins(1, 2), WithTxBufferSize(8))
	require.NoError(t, err)
	d.Line(0).HoldTransmit()

	done := make(chan error, 1)
	go func() {
		_, err := p.Write(pattern(256))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, tr.Deinit(0))
	err = <-done
	require.Error(t, err)
}

func TestCloseReleasesAllPorts(t *testing.T) {
	d := NewSimDriver()
	tr := New(d)
	for id := 0; id < 3; id++ {
		_, _, err := tr.Init(id, WithPins(Pin(2*id), Pin(2*id+1)))
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2}, tr.Ports())

	require.NoError(t, tr.Close())
	require.Empty(t, tr.Ports())
	for id := 0; id < 3; id++ {
		require.True(t, d.Line(id).Closed())
	}
}
