package models

import (
	"testing"

	"github.com/allbin/go-cellport"
	"github.com/allbin/go-cellport/internal/tui/components"
	"github.com/stretchr/testify/require"
)

func TestSessionCleanupDeinitializesPort(t *testing.T) {
	tr := cellport.New(cellport.NewSimDriver())
	defer tr.Close()

	port, _, err := tr.Init(2, cellport.WithPins(1, 2))
	require.NoError(t, err)

	s := NewSession("sim:2")
	s.Attach(tr, port)
	require.Same(t, port, s.Port())

	require.NoError(t, s.Cleanup())
	require.Nil(t, s.Port())
	require.Nil(t, tr.Port(2))
	require.Error(t, s.Context().Err())

	// A second cleanup has nothing left to release.
	require.NoError(t, s.Cleanup())
}

func TestSessionInputModeAndData(t *testing.T) {
	s := NewSession("/dev/ttyUSB2")
	require.Equal(t, "NORMAL", s.InputMode().String())
	require.False(t, s.IsInInsertMode())

	s.SetInputMode(InputModeInsert)
	require.True(t, s.IsInInsertMode())
	require.Equal(t, "INSERT", s.InputMode().String())

	s.AddRawData(components.TrafficMsg{Data: []byte("OK\r\n")})
	require.Len(t, s.RawData(), 1)
	s.ClearData()
	require.Empty(t, s.RawData())
}
