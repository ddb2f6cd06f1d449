package effect

import (
	"github.com/Carmen-Shannon/oxy-fx/engine/shader"
	"github.com/sirupsen/logrus"
)

// EffectBuilderOption is a functional option applied to a gpuEffect during construction via NewEffect.
type EffectBuilderOption func(*gpuEffect)

// WithName overrides the effect name, which defaults to the kind name. Names identify effects in a chain.
//
// Parameters:
//   - name: the effect name
//
// Returns:
//   - EffectBuilderOption: a function that applies the name option to a gpuEffect
func WithName(name string) EffectBuilderOption {
	return func(e *gpuEffect) {
		e.name = name
	}
}

// WithEnabled sets the initial enabled state. Effects start enabled.
//
// Parameters:
//   - enabled: the initial state
//
// Returns:
//   - EffectBuilderOption: a function that applies the enabled option to a gpuEffect
func WithEnabled(enabled bool) EffectBuilderOption {
	return func(e *gpuEffect) {
		e.enabled = enabled
	}
}

// WithEffectLogger sets the logger used for parameter and apply warnings.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - EffectBuilderOption: a function that applies the logger option to a gpuEffect
func WithEffectLogger(logger logrus.FieldLogger) EffectBuilderOption {
	return func(e *gpuEffect) {
		e.logger = logger
	}
}

// ArenaBuilderOption is a functional option applied to an arena during construction via NewArena.
type ArenaBuilderOption func(*arena)

// WithArenaLogger sets the logger of the arena and of the shader library it creates.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - ArenaBuilderOption: a function that applies the logger option to an arena
func WithArenaLogger(logger logrus.FieldLogger) ArenaBuilderOption {
	return func(a *arena) {
		a.logger = logger
	}
}

// WithLibrary injects the program cache instead of creating one.
//
// Parameters:
//   - library: the ShaderLibrary to compile programs into
//
// Returns:
//   - ArenaBuilderOption: a function that applies the library option to an arena
func WithLibrary(library shader.ShaderLibrary) ArenaBuilderOption {
	return func(a *arena) {
		a.library = library
	}
}
