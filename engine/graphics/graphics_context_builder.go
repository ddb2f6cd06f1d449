package graphics

import (
	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/sirupsen/logrus"
)

// GraphicsContextBuilderOption is a functional option applied to a graphicsContext during construction via NewGraphicsContext.
type GraphicsContextBuilderOption func(*graphicsContext)

// WithBackendType selects the backend implementation. The default is BackendWGPU.
//
// Parameters:
//   - backendType: the BackendType to use
//
// Returns:
//   - GraphicsContextBuilderOption: a function that applies the backend option to a graphicsContext
func WithBackendType(backendType BackendType) GraphicsContextBuilderOption {
	return func(c *graphicsContext) {
		c.backendType = backendType
	}
}

// WithBackend injects a backend instance directly, overriding WithBackendType.
//
// Parameters:
//   - backend: the GraphicsBackend to drive
//
// Returns:
//   - GraphicsContextBuilderOption: a function that applies the backend option to a graphicsContext
func WithBackend(backend GraphicsBackend) GraphicsContextBuilderOption {
	return func(c *graphicsContext) {
		c.backend = backend
	}
}

// WithForceFallbackAdapter requests the WebGPU fallback (software) adapter instead of a hardware one.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - GraphicsContextBuilderOption: a function that applies the fallback option to a graphicsContext
func WithForceFallbackAdapter(force bool) GraphicsContextBuilderOption {
	return func(c *graphicsContext) {
		c.forceFallbackAdapter = force
	}
}

// WithSurfaceDescriptor attaches a platform surface. The default framebuffer is presented onto it by SwapBuffers.
//
// Parameters:
//   - descriptor: the wgpu surface descriptor of a native window
//
// Returns:
//   - GraphicsContextBuilderOption: a function that applies the surface option to a graphicsContext
func WithSurfaceDescriptor(descriptor *wgpu.SurfaceDescriptor) GraphicsContextBuilderOption {
	return func(c *graphicsContext) {
		c.surfaceDescriptor = descriptor
	}
}

// WithContextConfig overrides the color/depth/stencil bit depths negotiated at Initialize.
//
// Parameters:
//   - cfg: the ContextConfig to request
//
// Returns:
//   - GraphicsContextBuilderOption: a function that applies the config option to a graphicsContext
func WithContextConfig(cfg ContextConfig) GraphicsContextBuilderOption {
	return func(c *graphicsContext) {
		c.config = cfg
	}
}

// WithSamplerData overrides the filtering and addressing of the shared texture sampler.
//
// Parameters:
//   - data: the sampler configuration; zero fields keep their defaults
//
// Returns:
//   - GraphicsContextBuilderOption: a function that applies the sampler option to a graphicsContext
func WithSamplerData(data common.SamplerStagingData) GraphicsContextBuilderOption {
	return func(c *graphicsContext) {
		c.samplerData = data
	}
}

// WithWorkerPool sets the pool the software backend shades rows on. Without one, rows are split with bild's parallel helper.
//
// Parameters:
//   - pool: the worker pool to submit row bands to
//
// Returns:
//   - GraphicsContextBuilderOption: a function that applies the pool option to a graphicsContext
func WithWorkerPool(pool worker.DynamicWorkerPool) GraphicsContextBuilderOption {
	return func(c *graphicsContext) {
		c.pool = pool
	}
}

// WithLogger sets the logger used for GPU error reporting.
//
// Parameters:
//   - logger: the logrus logger or entry to write to
//
// Returns:
//   - GraphicsContextBuilderOption: a function that applies the logger option to a graphicsContext
func WithLogger(logger logrus.FieldLogger) GraphicsContextBuilderOption {
	return func(c *graphicsContext) {
		c.logger = logger
	}
}
