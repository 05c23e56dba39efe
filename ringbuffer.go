package cellport

import (
	"fmt"

	"go.uber.org/atomic"
)

// RingBuffer is a fixed-capacity circular byte store for exactly one
// producer and one consumer. The producer owns the write index, the consumer
// owns the read index, and the shared count publishes data between them.
//
// Push never overwrites unread data: bytes that do not fit are refused.
type RingBuffer struct {
	buf   []byte
	read  int // consumer side
	write int // producer side
	count atomic.Int64
}

// NewRingBuffer returns a ring buffer holding up to capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		panic(fmt.Sprintf("cellport: ring buffer capacity %d", capacity))
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Cap returns the total capacity of the buffer in bytes.
func (rb *RingBuffer) Cap() int { return len(rb.buf) }

// Occupancy returns how many bytes are waiting to be popped. The value is a
// snapshot and may be stale by the time the caller acts on it.
func (rb *RingBuffer) Occupancy() int {
	n := int(rb.count.Load())
	if n < 0 || n > len(rb.buf) {
		panic(fmt.Sprintf("cellport: ring buffer count %d outside [0,%d]", n, len(rb.buf)))
	}
	return n
}

// Free returns the space left for the producer.
func (rb *RingBuffer) Free() int { return len(rb.buf) - rb.Occupancy() }

// Push stores as many bytes of p as fit and returns how many were stored.
// It never blocks. Producer side only.
func (rb *RingBuffer) Push(p []byte) int {
	n := rb.Free()
	if n > len(p) {
		n = len(p)
	}
	if n == 0 {
		return 0
	}
	// 1) write data, wrapping at most once
	first := copy(rb.buf[rb.write:], p[:n])
	if first < n {
		copy(rb.buf, p[first:n])
	}
	rb.write = (rb.write + n) % len(rb.buf)
	// 2) publish
	rb.count.Add(int64(n))
	return n
}

// Pop removes up to len(p) bytes into p and returns how many were copied.
// It never blocks and returns 0 when the buffer is empty. Consumer side only.
func (rb *RingBuffer) Pop(p []byte) int {
	n := rb.Occupancy()
	if n > len(p) {
		n = len(p)
	}
	if n == 0 {
		return 0
	}
	// 1) read current elements
	first := copy(p[:n], rb.buf[rb.read:])
	if first < n {
		copy(p[first:n], rb.buf)
	}
	rb.read = (rb.read + n) % len(rb.buf)
	// 2) publish consumption
	rb.count.Sub(int64(n))
	return n
}

// Reset discards all buffered data. It must not race with Push or Pop.
func (rb *RingBuffer) Reset() {
	rb.read = 0
	rb.write = 0
	rb.count.Store(0)
}
