package osal

import "time"

// Clock reports milliseconds elapsed since it was created.
type Clock struct {
	start time.Time
}

// NewClock starts a clock at zero.
func NewClock() Clock {
	return Clock{start: time.Now()}
}

// NowMs returns the monotonic milliseconds since the clock started.
func (c Clock) NowMs() int64 {
	return time.Since(c.start).Milliseconds()
}
