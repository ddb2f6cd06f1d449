package effect

import (
	"fmt"
)

// ParameterError reports a parameter name the effect does not define. It is recoverable; the call is a no-op.
type ParameterError struct {
	Effect    string
	Parameter string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("effect %q: unknown parameter %q", e.Effect, e.Parameter)
}

// EffectUnavailableError reports an Apply on an effect whose program never linked.
// The effect is skipped and the chain continues.
type EffectUnavailableError struct {
	Effect string
	Err    error
}

func (e *EffectUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("effect %q is unavailable: shader not compiled", e.Effect)
	}
	return fmt.Sprintf("effect %q is unavailable: %v", e.Effect, e.Err)
}

func (e *EffectUnavailableError) Unwrap() error { return e.Err }
