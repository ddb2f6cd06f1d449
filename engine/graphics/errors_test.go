package graphics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrorNone, "No error"},
		{ErrorInvalidEnum, "Invalid enum"},
		{ErrorInvalidValue, "Invalid value"},
		{ErrorInvalidOperation, "Invalid operation"},
		{ErrorOutOfMemory, "Out of memory"},
		{ErrorInvalidFramebufferOperation, "Invalid framebuffer operation"},
		{ErrorContextLost, "Context lost"},
		{ErrorDeviceLost, "Device lost"},
		{ErrorValidation, "Validation error"},
		{ErrorInternal, "Internal error"},
		{ErrorCode(999), "Unknown error"},
		{ErrorCode(-1), "Unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorString(tt.code))
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
}

func TestContextErrorUnwrap(t *testing.T) {
	cause := errors.New("no adapter")
	err := fmt.Errorf("startup: %w", &ContextError{Step: "request adapter", Err: cause})

	var cerr *ContextError
	assert.True(t, errors.As(err, &cerr))
	assert.Equal(t, "request adapter", cerr.Step)
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorInvalidValue, codeOf(newBackendError(ErrorInvalidValue, "bad size %d", 0)))
	assert.Equal(t, ErrorInternal, codeOf(errors.New("plain")))
}
