package cmd

import (
	"testing"

	"github.com/allbin/go-cellport"
	"github.com/stretchr/testify/require"
)

func TestLineSettingsOptions(t *testing.T) {
	tests := []struct {
		flow     string
		cts, rts cellport.Pin
	}{
		{"", cellport.NoPin, cellport.NoPin},
		{"none", cellport.NoPin, cellport.NoPin},
		{"cts", pinCTS, cellport.NoPin},
		{"rts", cellport.NoPin, pinRTS},
		{"RTSCTS", pinCTS, pinRTS},
	}
	for _, tt := range tests {
		t.Run(tt.flow, func(t *testing.T) {
			s := simSettings()
			s.Flow = tt.flow
			s.Hysteresis = 32
			opts, err := s.options()
			require.NoError(t, err)

			cfg := cellport.DefaultConfig()
			for _, opt := range opts {
				require.NoError(t, opt(&cfg))
			}
			require.NoError(t, cfg.Validate())
			require.Equal(t, tt.cts, cfg.CTS)
			require.Equal(t, tt.rts, cfg.RTS)
			if tt.rts != cellport.NoPin {
				require.Equal(t, 256, cfg.RTSThreshold)
				require.Equal(t, 32, cfg.Hysteresis)
			}
		})
	}
}

func TestLineSettingsRejects(t *testing.T) {
	s := simSettings()
	s.Flow = "xonxoff"
	_, err := s.options()
	require.Error(t, err)

	s = simSettings()
	s.Driver = "usbfs"
	_, err = s.driver("/dev/ttyUSB2")
	require.Error(t, err)
}

func TestOpenSimDevice(t *testing.T) {
	s := simSettings()
	s.Flow = "rtscts"
	s.BaudRate = 921600
	dev := openSim(t, s)

	require.NotNil(t, dev.modem)
	info := dev.lineInfo()
	require.Equal(t, simDevice, info.Driver)
	require.Equal(t, 921600, info.BaudRate)
	require.True(t, info.RTSWired)
	require.True(t, info.CTSWired)
	require.Equal(t, 256, info.RTSThreshold)
}

func TestOpenDeviceBadBaud(t *testing.T) {
	s := simSettings()
	s.BaudRate = 12345
	_, err := openDevice(simDevice, s)
	require.ErrorIs(t, err, cellport.ErrInvalidParameter)
}
