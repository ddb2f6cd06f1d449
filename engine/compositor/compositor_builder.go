package compositor

import (
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/profiler"
	"github.com/sirupsen/logrus"
)

// CompositorBuilderOption is a functional option applied to a compositor during construction via NewCompositor.
type CompositorBuilderOption func(*compositor)

// WithLogger sets the logger of the compositor. The logger is passed down to the context, the arena and every
// effect the compositor creates.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - CompositorBuilderOption: a function that applies the logger option to a compositor
func WithLogger(logger logrus.FieldLogger) CompositorBuilderOption {
	return func(c *compositor) {
		c.logger = logger
	}
}

// WithContextOptions appends options used when Initialize creates the GraphicsContext.
// They are applied after the backend chosen by the RenderConfig, so a WithBackendType here wins.
//
// Parameters:
//   - options: the GraphicsContext options
//
// Returns:
//   - CompositorBuilderOption: a function that applies the context options to a compositor
func WithContextOptions(options ...graphics.GraphicsContextBuilderOption) CompositorBuilderOption {
	return func(c *compositor) {
		c.contextOptions = append(c.contextOptions, options...)
	}
}

// WithProfilerOptions sets the options of the profiler created at construction.
//
// Parameters:
//   - options: the profiler options
//
// Returns:
//   - CompositorBuilderOption: a function that applies the profiler options to a compositor
func WithProfilerOptions(options ...profiler.ProfilerBuilderOption) CompositorBuilderOption {
	return func(c *compositor) {
		c.profilerOptions = append(c.profilerOptions, options...)
	}
}

// WithFramebufferFormat sets the format of the intermediate framebuffers. Defaults to RGBA8.
//
// Parameters:
//   - format: the intermediate format
//
// Returns:
//   - CompositorBuilderOption: a function that applies the format option to a compositor
func WithFramebufferFormat(format graphics.TextureFormat) CompositorBuilderOption {
	return func(c *compositor) {
		c.format = format
	}
}
