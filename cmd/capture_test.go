package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCaptureDrainsOnDataAvailable(t *testing.T) {
	dev := openSim(t, simSettings())
	require.NoError(t, dev.modem.Burst(300))

	var want []byte
	for seq := 0; len(want) < 300; seq++ {
		want = append(want, urc(seq)...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	n, err := capture(ctx, dev.port, dev.events, &out)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	require.Equal(t, int64(300), n)
	require.Equal(t, want[:300], out.Bytes())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestCaptureWriteError(t *testing.T) {
	dev := openSim(t, simSettings())
	require.NoError(t, dev.modem.Burst(10))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := capture(ctx, dev.port, dev.events, failingWriter{})
	require.ErrorContains(t, err, "disk full")
}
