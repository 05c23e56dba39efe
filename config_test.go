package cellport

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.BaudRate != 115200 {
		t.Errorf("Expected BaudRate 115200, got %d", config.BaudRate)
	}
	if config.RxBufferSize != 1024 {
		t.Errorf("Expected RxBufferSize 1024, got %d", config.RxBufferSize)
	}
	if config.TxBufferSize != 0 {
		t.Errorf("Expected TxBufferSize 0, got %d", config.TxBufferSize)
	}
	if config.EventQueueDepth != 20 {
		t.Errorf("Expected EventQueueDepth 20, got %d", config.EventQueueDepth)
	}
	if config.CTS != NoPin || config.RTS != NoPin {
		t.Errorf("Expected no flow control pins, got cts %d rts %d", config.CTS, config.RTS)
	}
	if config.RTSThreshold != ThresholdUnset {
		t.Errorf("Expected unset RTS threshold, got %d", config.RTSThreshold)
	}
	if config.LockTimeout != time.Second {
		t.Errorf("Expected LockTimeout 1s, got %v", config.LockTimeout)
	}
}

func TestFunctionalOptions(t *testing.T) {
	config := DefaultConfig()

	// Test WithPins
	if err := WithPins(1, 2)(&config); err != nil {
		t.Errorf("WithPins failed: %v", err)
	}
	if config.TX != 1 || config.RX != 2 {
		t.Errorf("Expected tx 1 rx 2, got tx %d rx %d", config.TX, config.RX)
	}

	// Test WithFlowControlPins
	if err := WithFlowControlPins(NoPin, 4)(&config); err != nil {
		t.Errorf("WithFlowControlPins failed: %v", err)
	}
	if config.CTS != NoPin || config.RTS != 4 {
		t.Errorf("Expected cts none rts 4, got cts %d rts %d", config.CTS, config.RTS)
	}

	// Test WithBaudRate
	if err := WithBaudRate(9600)(&config); err != nil {
		t.Errorf("WithBaudRate failed: %v", err)
	}
	if config.BaudRate != 9600 {
		t.Errorf("Expected BaudRate 9600, got %d", config.BaudRate)
	}

	// Test WithRTSThreshold
	if err := WithRTSThreshold(256)(&config); err != nil {
		t.Errorf("WithRTSThreshold failed: %v", err)
	}
	if config.RTSThreshold != 256 {
		t.Errorf("Expected RTSThreshold 256, got %d", config.RTSThreshold)
	}

	// Test WithTxBufferSize
	if err := WithTxBufferSize(512)(&config); err != nil {
		t.Errorf("WithTxBufferSize failed: %v", err)
	}
	if config.TxBufferSize != 512 {
		t.Errorf("Expected TxBufferSize 512, got %d", config.TxBufferSize)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestOptionRejects(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"same tx and rx", WithPins(3, 3)},
		{"negative tx", WithPins(-1, 2)},
		{"cts below NoPin", WithFlowControlPins(-2, NoPin)},
		{"non-standard baud", WithBaudRate(12345)},
		{"negative threshold", WithRTSThreshold(-5)},
		{"zero hysteresis", WithHysteresis(0)},
		{"zero rx buffer", WithRxBufferSize(0)},
		{"negative tx buffer", WithTxBufferSize(-1)},
		{"zero queue depth", WithEventQueueDepth(0)},
		{"nil event queue", WithEventQueue(nil)},
		{"zero lock timeout", WithLockTimeout(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			err := tt.opt(&config)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{"pins only", []Option{WithPins(1, 2)}, false},
		{"no pins", nil, true},
		{"rts with threshold", []Option{WithPins(1, 2), WithFlowControlPins(NoPin, 4), WithRTSThreshold(256)}, false},
		{"rts with zero threshold", []Option{WithPins(1, 2), WithFlowControlPins(NoPin, 4), WithRTSThreshold(0)}, false},
		{"rts without threshold", []Option{WithPins(1, 2), WithFlowControlPins(NoPin, 4)}, true},
		{"threshold above rx buffer", []Option{WithPins(1, 2), WithFlowControlPins(NoPin, 4), WithRTSThreshold(2048)}, true},
		{"default hysteresis past rx buffer", []Option{WithPins(1, 2), WithFlowControlPins(NoPin, 4), WithRTSThreshold(900)}, true},
		{"threshold equals rx buffer", []Option{WithPins(1, 2), WithFlowControlPins(NoPin, 4), WithRTSThreshold(1024)}, true},
		{"explicit hysteresis past rx buffer", []Option{WithPins(1, 2), WithFlowControlPins(NoPin, 4), WithRTSThreshold(256), WithHysteresis(800)}, true},
		{"hysteresis fills rx buffer", []Option{WithPins(1, 2), WithFlowControlPins(NoPin, 4), WithRTSThreshold(256), WithHysteresis(768)}, false},
		{"small ring zero threshold", []Option{WithPins(1, 2), WithRxBufferSize(1), WithFlowControlPins(NoPin, 4), WithRTSThreshold(0)}, false},
		{"zero threshold without rts", []Option{WithPins(1, 2), WithRTSThreshold(0)}, false},
		{"threshold without rts", []Option{WithPins(1, 2), WithRTSThreshold(100)}, true},
		{"cts only", []Option{WithPins(1, 2), WithFlowControlPins(3, NoPin)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			for _, opt := range tt.opts {
				if err := opt(&config); err != nil {
					t.Fatalf("option failed: %v", err)
				}
			}
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("Validate() error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestHysteresisDefault(t *testing.T) {
	tests := []struct {
		threshold  int
		hysteresis int
		want       int
	}{
		{256, 0, 64},
		{3, 0, 1},
		{0, 0, 1},
		{256, 10, 10},
	}

	for _, tt := range tests {
		c := Config{RTSThreshold: tt.threshold, Hysteresis: tt.hysteresis}
		if got := c.hysteresis(); got != tt.want {
			t.Errorf("hysteresis(threshold %d, set %d) = %d, want %d", tt.threshold, tt.hysteresis, got, tt.want)
		}
	}
}
