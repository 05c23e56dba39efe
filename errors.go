package cellport

import "errors"

// Predefined errors. Every error returned by this package wraps one of these,
// so callers can use errors.Is regardless of the added context.
var (
	ErrUnknown          = errors.New("unknown porting layer error")
	ErrNotInitialized   = errors.New("port not initialised")
	ErrNotImplemented   = errors.New("not implemented")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrOutOfMemory      = errors.New("out of memory")
	ErrTimeout          = errors.New("operation timed out")
	ErrPlatform         = errors.New("platform error")

	// Driver level conditions, reported to consumers as EventError codes.
	ErrOverflow    = errors.New("receive buffer overflow")
	ErrLineFault   = errors.New("uart line fault")
	ErrPortClosing = errors.New("port is shutting down")
)

// Porting layer result codes. Success is zero, failures are strictly negative.
const (
	CodeSuccess          int32 = 0
	CodeUnknown          int32 = -1
	CodeNotInitialized   int32 = -2
	CodeNotImplemented   int32 = -3
	CodeInvalidParameter int32 = -4
	CodeOutOfMemory      int32 = -5
	CodeTimeout          int32 = -6
	CodePlatform         int32 = -7
	CodeOverflow         int32 = -8
	CodeLineFault        int32 = -9
)

var codes = []struct {
	err  error
	code int32
}{
	{ErrNotInitialized, CodeNotInitialized},
	{ErrPortClosing, CodeNotInitialized},
	{ErrNotImplemented, CodeNotImplemented},
	{ErrInvalidParameter, CodeInvalidParameter},
	{ErrOutOfMemory, CodeOutOfMemory},
	{ErrTimeout, CodeTimeout},
	{ErrPlatform, CodePlatform},
	{ErrOverflow, CodeOverflow},
	{ErrLineFault, CodeLineFault},
}

// ErrorCode maps err to the porting layer's integer result code for callers
// that speak the C-style contract: 0 for nil, a negative code otherwise.
func ErrorCode(err error) int32 {
	if err == nil {
		return CodeSuccess
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// CodeError is the inverse of ErrorCode. Unrecognised codes map to ErrUnknown.
func CodeError(code int32) error {
	if code >= 0 {
		return nil
	}
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return ErrUnknown
}
