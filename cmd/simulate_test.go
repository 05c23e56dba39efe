package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/allbin/go-cellport"
	"github.com/stretchr/testify/require"
)

func benchSettings() lineSettings {
	s := simSettings()
	s.Flow = "rtscts"
	return s
}

func TestBenchKeepsUp(t *testing.T) {
	b, err := newBench(benchSettings(), monitorOptions{ports: 2, readInterval: 5 * time.Millisecond, readSize: 256})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Run(ctx, 11520))

	stats := b.Stats()
	require.Len(t, stats, 2)
	for i, s := range stats {
		require.Positive(t, s.Received, "uart %d", i)
		require.Positive(t, s.Read, "uart %d", i)
		require.Zero(t, s.Dropped, "uart %d", i)
	}

	report := simulationReport(b)
	require.Contains(t, report, "UART")
	require.Contains(t, report, "Lost")
}

func TestBenchPausedReaderHoldsModem(t *testing.T) {
	b, err := newBench(benchSettings(), monitorOptions{ports: 1, readInterval: 5 * time.Millisecond, readSize: 256})
	require.NoError(t, err)
	defer b.Close()
	b.paused.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Run(ctx, 11520))

	s := b.Stats()[0]
	require.Zero(t, s.Read)
	require.Zero(t, s.Dropped)
	require.Equal(t, cellport.FlowDeasserted, s.RTS)
	require.Positive(t, b.modems[0].held.Load())
}

func TestNewBenchRejects(t *testing.T) {
	_, err := newBench(benchSettings(), monitorOptions{ports: 0, readSize: 256})
	require.ErrorIs(t, err, cellport.ErrInvalidParameter)
}
