package graphics

import (
	"errors"
	"fmt"
)

// ErrorCode is the backend error state recorded after a GPU call, popped by CheckError.
type ErrorCode int

const (
	ErrorNone ErrorCode = iota
	ErrorInvalidEnum
	ErrorInvalidValue
	ErrorInvalidOperation
	ErrorOutOfMemory
	ErrorInvalidFramebufferOperation
	ErrorContextLost
	ErrorDeviceLost
	ErrorValidation
	ErrorInternal
)

var errorDescriptions = map[ErrorCode]string{
	ErrorNone:                        "No error",
	ErrorInvalidEnum:                 "Invalid enum",
	ErrorInvalidValue:                "Invalid value",
	ErrorInvalidOperation:            "Invalid operation",
	ErrorOutOfMemory:                 "Out of memory",
	ErrorInvalidFramebufferOperation: "Invalid framebuffer operation",
	ErrorContextLost:                 "Context lost",
	ErrorDeviceLost:                  "Device lost",
	ErrorValidation:                  "Validation error",
	ErrorInternal:                    "Internal error",
}

// ErrorString returns the fixed description of an error code, or "Unknown error" for codes outside the table.
//
// Parameters:
//   - code: the error code to describe
//
// Returns:
//   - string: the description
func ErrorString(code ErrorCode) string {
	if s, ok := errorDescriptions[code]; ok {
		return s
	}
	return "Unknown error"
}

// String implements fmt.Stringer.
func (c ErrorCode) String() string {
	return ErrorString(c)
}

// ErrNotInitialized is returned by operations issued before Initialize succeeded or after Destroy.
var ErrNotInitialized = errors.New("graphics context is not initialized")

// ErrContextBusy is recorded when MakeCurrent or ReleaseContext is called from a goroutine other than the one the
// context is current on.
var ErrContextBusy = errors.New("graphics context is current on another goroutine")

// ContextError reports a failure while setting up the graphics context or its surface.
// It is fatal to the context that produced it.
type ContextError struct {
	Step string
	Err  error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("graphics context: %s: %v", e.Step, e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }

// FramebufferError reports an incomplete or unallocatable framebuffer.
type FramebufferError struct {
	Width, Height int
	Format        TextureFormat
	Reason        string
}

func (e *FramebufferError) Error() string {
	return fmt.Sprintf("framebuffer %dx%d %s: %s", e.Width, e.Height, e.Format, e.Reason)
}

// backendError pairs an error code with a message so backends can report both at once.
type backendError struct {
	code ErrorCode
	msg  string
}

func (e *backendError) Error() string {
	return fmt.Sprintf("%s: %s", ErrorString(e.code), e.msg)
}

func newBackendError(code ErrorCode, format string, args ...any) error {
	return &backendError{code: code, msg: fmt.Sprintf(format, args...)}
}

// codeOf extracts the error code carried by err, defaulting to ErrorInternal.
func codeOf(err error) ErrorCode {
	var be *backendError
	if errors.As(err, &be) {
		return be.code
	}
	return ErrorInternal
}
