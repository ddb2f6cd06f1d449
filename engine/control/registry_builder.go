package control

import (
	"github.com/Carmen-Shannon/oxy-fx/engine/compositor"
	"github.com/sirupsen/logrus"
)

// RegistryBuilderOption is a functional option applied to a Registry during construction via NewRegistry.
type RegistryBuilderOption func(*Registry)

// WithLogger sets the logger of the registry and of every compositor it creates.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - RegistryBuilderOption: a function that applies the logger option to a Registry
func WithLogger(logger logrus.FieldLogger) RegistryBuilderOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithCompositorOptions appends options passed to every compositor the registry creates.
//
// Parameters:
//   - options: the compositor options
//
// Returns:
//   - RegistryBuilderOption: a function that applies the compositor options to a Registry
func WithCompositorOptions(options ...compositor.CompositorBuilderOption) RegistryBuilderOption {
	return func(r *Registry) {
		r.compositorOptions = append(r.compositorOptions, options...)
	}
}
