// Package osal holds the operating system primitives the UART transport and
// the layers above it are written against: bounded queues, a mutex that can
// report its holder and be taken with a timeout, tasks and a monotonic
// millisecond clock.
package osal
