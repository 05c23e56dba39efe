package cellport

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int32
	}{
		{"nil", nil, CodeSuccess},
		{"not initialized", ErrNotInitialized, CodeNotInitialized},
		{"wrapped invalid parameter", fmt.Errorf("uart 2: %w", ErrInvalidParameter), CodeInvalidParameter},
		{"timeout", ErrTimeout, CodeTimeout},
		{"platform", fmt.Errorf("open: %w", ErrPlatform), CodePlatform},
		{"closing reads as not initialized", ErrPortClosing, CodeNotInitialized},
		{"foreign error", errors.New("boom"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.want {
				t.Errorf("ErrorCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCodeError(t *testing.T) {
	for _, code := range []int32{CodeNotInitialized, CodeNotImplemented, CodeInvalidParameter,
		CodeOutOfMemory, CodeTimeout, CodePlatform, CodeOverflow, CodeLineFault} {
		err := CodeError(code)
		if err == nil {
			t.Fatalf("CodeError(%d) = nil", code)
		}
		if got := ErrorCode(err); got != code {
			t.Errorf("ErrorCode(CodeError(%d)) = %d", code, got)
		}
	}

	if err := CodeError(CodeSuccess); err != nil {
		t.Errorf("CodeError(0) = %v, want nil", err)
	}
	if err := CodeError(-42); !errors.Is(err, ErrUnknown) {
		t.Errorf("CodeError(-42) = %v, want ErrUnknown", err)
	}
}
