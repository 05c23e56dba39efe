package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/allbin/go-cellport"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func simSettings() lineSettings {
	return lineSettings{
		BaudRate:     cellport.DefaultBaudRate,
		RxBuffer:     cellport.DefaultRxBufferSize,
		Flow:         "none",
		RTSThreshold: 256,
	}
}

func openSim(t *testing.T, s lineSettings) *device {
	t.Helper()
	dev, err := openDevice(simDevice, s)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestFinalResult(t *testing.T) {
	tests := []struct {
		line  string
		want  string
		final bool
	}{
		{"OK", "OK", true},
		{"ERROR", "ERROR", true},
		{"+CME ERROR: 10", "+CME ERROR", true},
		{"+CMS ERROR: 500", "+CMS ERROR", true},
		{"CONNECT 150000000", "CONNECT", true},
		{"NO CARRIER", "NO CARRIER", true},
		{"+CSQ: 23,99", "", false},
		{"OKAY", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, final := finalResult(tt.line)
			require.Equal(t, tt.final, final)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestModemReply(t *testing.T) {
	require.Nil(t, modemReply("hello"))
	require.Equal(t, "\r\nOK\r\n", string(modemReply("at")))
	require.Equal(t, "\r\nERROR\r\n", string(modemReply("AT+BOGUS")))
	require.Equal(t, "\r\n+CSQ: 23,99\r\n\r\nOK\r\n", string(modemReply("AT+CSQ")))
}

func TestExchangeWithSimModem(t *testing.T) {
	dev := openSim(t, simSettings())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lines, err := exchange(ctx, dev.port, "ATI")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"Quectel", "EG25", "Revision: EG25GGBR07A08M2G"}, lines); diff != "" {
		t.Errorf("ATI response (-want +got):\n%s", diff)
	}

	lines, err = exchange(ctx, dev.port, "AT+CPIN?")
	require.NoError(t, err)
	require.Equal(t, []string{"+CPIN: READY"}, lines)
}

func TestExchangeCommandFailed(t *testing.T) {
	dev := openSim(t, simSettings())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := exchange(ctx, dev.port, "AT+QPOWD")
	require.True(t, errors.Is(err, ErrCommandFailed), "got %v", err)
}

func TestExchangeTimeout(t *testing.T) {
	dev := openSim(t, simSettings())
	dev.modem.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := exchange(ctx, dev.port, "AT")
	require.True(t, errors.Is(err, cellport.ErrTimeout), "got %v", err)
}

func TestSimModemObeysRTS(t *testing.T) {
	s := simSettings()
	s.Flow = "rts"
	s.RxBuffer = 128
	s.RTSThreshold = 64
	dev := openSim(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.modem.Stream(ctx, 2000) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.Eventually(t, func() bool { return dev.modem.held.Load() > 2 }, 2*time.Second, 5*time.Millisecond)
	stats := dev.port.Stats()
	require.Equal(t, cellport.FlowDeasserted, stats.RTS)
	require.Zero(t, stats.Dropped)

	buf := make([]byte, 128)
	n, err := dev.port.Read(buf)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(buf[:n]), `+QIURC: "recv",0,0`), "got %q", buf[:n])
	require.Equal(t, cellport.FlowAsserted, dev.port.Stats().RTS)

	sent := dev.modem.sent.Load()
	require.Eventually(t, func() bool { return dev.modem.sent.Load() > sent }, 2*time.Second, 5*time.Millisecond)
}

func TestStreamRejectsBadRate(t *testing.T) {
	dev := openSim(t, simSettings())
	err := dev.modem.Stream(context.Background(), 0)
	require.True(t, errors.Is(err, cellport.ErrInvalidParameter), "got %v", err)
}
