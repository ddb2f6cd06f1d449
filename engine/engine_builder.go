package engine

import (
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-fx/engine/compositor"
	"github.com/Carmen-Shannon/oxy-fx/engine/config"
	"github.com/Carmen-Shannon/oxy-fx/engine/window"
	"github.com/sirupsen/logrus"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithConfig sets the render config of the preview renderer. The default is config.Default().
//
// Parameters:
//   - cfg: the render config, validated when the renderer is created
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.RenderConfig) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = cfg
	}
}

// WithProfiling overrides the EnableProfiling flag of the render config.
//
// Parameters:
//   - enabled: if true, frame timings are collected and logged
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profiling = &enabled
	}
}

// WithPreset applies a preset to the preview renderer once it is created. Repeat to layer presets.
//
// Parameters:
//   - preset: the preset to apply
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPreset(preset config.Preset) EngineBuilderOption {
	return func(e *engine) {
		e.presets = append(e.presets, preset)
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithCompositorOptions forwards options to the preview compositor, after the surface of the window.
func WithCompositorOptions(options ...compositor.CompositorBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.compositorOptions = append(e.compositorOptions, options...)
	}
}

// WithWorkerPool sets the pool that decodes loaded source files. The engine does not stop a pool it was given.
func WithWorkerPool(pool worker.DynamicWorkerPool) EngineBuilderOption {
	return func(e *engine) {
		e.loader = pool
	}
}

// WithLogger sets the logger of the engine and of everything it creates.
func WithLogger(logger logrus.FieldLogger) EngineBuilderOption {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithKeyBinding makes a key toggle the named effect, replacing any default binding of that key.
//
// Parameters:
//   - keyCode: a key code from the common package
//   - effectName: the effect chain entry to toggle
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithKeyBinding(keyCode uint32, effectName string) EngineBuilderOption {
	return func(e *engine) {
		e.bindings[keyCode] = effectName
	}
}

// WithRenderFrameLimit sets the render frame rate cap in frames per second.
// Pass 0 to uncap the render loop. The default is 60.
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
