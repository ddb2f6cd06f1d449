// Package engine runs a live preview: a window presenting the output of an effect compositor, with keyboard
// toggles for every effect kind and image files loaded by drag and drop.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/compositor"
	"github.com/Carmen-Shannon/oxy-fx/engine/config"
	"github.com/Carmen-Shannon/oxy-fx/engine/control"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/window"
	"github.com/sirupsen/logrus"
)

// intensityStep is the intensity change per scroll notch or arrow key press.
const intensityStep = 0.05

// engine implements the Engine interface.
// The calling goroutine runs the window message loop; ticks and frames run on their own goroutines.
type engine struct {
	tickRateChannel chan time.Duration

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel  chan struct{}
	quitOnce     sync.Once
	shutdownOnce sync.Once

	logger            logrus.FieldLogger
	cfg               config.RenderConfig
	profiling         *bool
	presets           []config.Preset
	compositorOptions []compositor.CompositorBuilderOption

	window   window.Window
	registry *control.Registry
	renderer control.RendererHandle

	loader     worker.DynamicWorkerPool
	ownsLoader bool
	taskID     atomic.Int64

	// frames and resizes hold at most one pending value each; a newer value replaces the pending one.
	frames  chan common.TextureStagingData
	resizes chan [2]int

	mu       sync.Mutex
	bindings map[uint32]string
	selected string

	startTime time.Time

	engineTickRate   time.Duration
	tickCallback     func(deltaTime float32)
	renderCallback   func(deltaTime float32)
	renderFrameLimit time.Duration
}

// Engine is the preview entry point. It owns the window, a control registry holding one renderer with every
// effect kind registered, and the goroutines that drive them.
type Engine interface {
	// Window returns the preview window.
	Window() window.Window

	// Registry returns the control surface of the preview renderer.
	Registry() *control.Registry

	// Renderer returns the handle of the preview renderer within Registry.
	Renderer() control.RendererHandle

	// Compositor returns the preview compositor, or nil once the engine has shut down.
	Compositor() compositor.Compositor

	// EnableProfiler turns per-frame timing on. Averages are logged at debug level once per second.
	EnableProfiler()

	// DisableProfiler turns per-frame timing off.
	DisableProfiler()

	// SetTickRate sets the tick callback rate in ticks per second. Values <= 0 mean 60.
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each tick with the elapsed seconds.
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each frame with the elapsed seconds.
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit caps the frame rate. 0 uncaps it.
	SetRenderFrameLimit(fps float64)

	// SetSource queues a frame to replace the preview input on the next render iteration.
	//
	// Parameters:
	//   - frame: the decoded frame, scaled to the render resolution on upload
	SetSource(frame common.TextureStagingData)

	// LoadSource decodes an image file on the loader pool and queues it as the preview input.
	//
	// Parameters:
	//   - path: a PNG, JPEG, BMP or WebP file
	LoadSource(path string)

	// BindKey makes a key toggle the named effect.
	BindKey(keyCode uint32, effectName string)

	// ToggleEffect flips the enabled state of the named effect and selects it for intensity adjustment.
	//
	// Returns:
	//   - bool: false if the effect is unknown
	ToggleEffect(name string) bool

	// Run starts the tick and render goroutines and runs the window message loop until the window closes or Quit
	// is called, then releases every resource. It blocks.
	Run()

	// Quit stops the engine. Safe to call multiple times and from any goroutine.
	Quit()
}

// DefaultKeyBindings maps 1-9 and 0 to the first ten effect kinds and G to the eleventh.
func DefaultKeyBindings() map[uint32]string {
	keys := []uint32{common.Key1, common.Key2, common.Key3, common.Key4, common.Key5,
		common.Key6, common.Key7, common.Key8, common.Key9, common.Key0, common.KeyG}
	bindings := make(map[uint32]string, len(keys))
	for i, name := range effect.KindNames() {
		if i >= len(keys) {
			break
		}
		bindings[keys[i]] = name
	}
	return bindings
}

// NewEngine creates the preview engine. Without WithWindow it opens a GLFW window at the output size of the
// render config, which locks the calling goroutine to its OS thread; Run must then be called from that goroutine.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the engine, ready to Run
//   - error: error if the window or the renderer cannot be created
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		frames:           make(chan common.TextureStagingData, 1),
		resizes:          make(chan [2]int, 1),
		logger:           logrus.StandardLogger(),
		cfg:              config.Default(),
		bindings:         DefaultKeyBindings(),
		engineTickRate:   time.Second / 60,
		renderFrameLimit: time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}

	if e.window == nil {
		w, err := window.NewWindow(
			window.WithTitle("oxy-fx preview"),
			window.WithSize(e.cfg.OutputWidth, e.cfg.OutputHeight),
		)
		if err != nil {
			return nil, err
		}
		e.window = w
	}

	copts := append([]compositor.CompositorBuilderOption{
		compositor.WithContextOptions(graphics.WithSurfaceDescriptor(e.window.SurfaceDescriptor())),
	}, e.compositorOptions...)
	e.registry = control.NewRegistry(control.WithLogger(e.logger), control.WithCompositorOptions(copts...))
	h, err := e.registry.CreateRenderer(e.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create preview renderer: %w", err)
	}
	e.renderer = h

	if e.profiling != nil {
		e.Compositor().SetProfilingEnabled(*e.profiling)
	}
	for _, p := range e.presets {
		if err := e.registry.ApplyPreset(h, p); err != nil {
			e.log("NewEngine").WithField("preset", p.Name).Warn(err)
		}
	}

	if e.loader == nil {
		e.loader = worker.NewDynamicWorkerPool(2, 16, time.Second)
		e.ownsLoader = true
	}

	e.window.SetResizeCallback(e.queueResize)
	e.window.SetKeyDownCallback(e.handleKey)
	e.window.SetScrollCallback(func(delta float32) {
		e.adjustIntensity(delta * intensityStep)
	})
	e.window.SetDropCallback(func(paths []string) {
		if len(paths) > 0 {
			e.LoadSource(paths[0])
		}
	})
	return e, nil
}

func (e *engine) log(function string) *logrus.Entry {
	return e.logger.WithFields(logrus.Fields{"function": function})
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Registry() *control.Registry {
	return e.registry
}

func (e *engine) Renderer() control.RendererHandle {
	return e.renderer
}

func (e *engine) Compositor() compositor.Compositor {
	c, ok := e.registry.Renderer(e.renderer)
	if !ok {
		return nil
	}
	return c
}

func (e *engine) Run() {
	e.startTime = time.Now()
	e.running.Store(true)
	e.handle()
	e.window.ProcessMessages()
	e.signalQuit()
	e.wg.Wait()
	e.shutdown()
}

func (e *engine) Quit() {
	e.signalQuit()
	e.window.RequestClose()
}

// signalQuit closes the quit channel once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// shutdown releases the renderer, the loader pool and the window once.
func (e *engine) shutdown() {
	e.shutdownOnce.Do(func() {
		e.registry.Close()
		if e.ownsLoader {
			e.loader.Stop()
		}
		if err := e.window.Close(); err != nil {
			e.log("shutdown").Warn(err)
		}
	})
}

// handle launches the tick and render goroutines.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine fires the tick callback at the tick rate until quit, picking up rate changes from tickRateChannel.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender owns the graphics context for its lifetime: it applies pending resizes and source frames, then
// renders the chain over the current input into the window surface.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.log("handleRender").Errorf("render goroutine recovered from panic: %v", r)
			e.Quit()
		}
	}()

	comp := e.Compositor()
	if comp == nil {
		return
	}
	ctx := comp.Context()
	ctx.MakeCurrent()
	defer ctx.ReleaseContext()

	var input graphics.TextureHandle
	defer func() {
		if input != 0 {
			ctx.DeleteTexture(input)
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		select {
		case size := <-e.resizes:
			ctx.Resize(size[0], size[1])
		default:
		}
		select {
		case frame := <-e.frames:
			if tex := comp.UploadFrame(frame); tex != 0 {
				if input != 0 {
					ctx.DeleteTexture(input)
				}
				input = tex
			}
		default:
		}

		comp.SetTime(float32(now.Sub(e.startTime).Seconds()))
		if input != 0 {
			comp.RenderFrame(input, graphics.DefaultFramebuffer)
		} else {
			ctx.ClearScreen(0, 0, 0, 1)
			ctx.SwapBuffers()
		}

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

func (e *engine) queueResize(width, height int) {
	replace(e.resizes, [2]int{width, height})
}

// replace sends v on a one-slot channel, dropping a pending value if there is one.
func replace[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func (e *engine) SetSource(frame common.TextureStagingData) {
	replace(e.frames, frame)
}

func (e *engine) LoadSource(path string) {
	id := int(e.taskID.Add(1))
	e.loader.SubmitTask(worker.Task{
		ID:      id,
		Payload: path,
		Do: func() (any, error) {
			frame, err := common.LoadTextureStagingData(path)
			if err != nil {
				e.log("LoadSource").WithField("path", path).Warn(err)
				return nil, err
			}
			e.SetSource(frame)
			return frame, nil
		},
	})
}

func (e *engine) BindKey(keyCode uint32, effectName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[keyCode] = effectName
}

func (e *engine) ToggleEffect(name string) bool {
	comp := e.Compositor()
	if comp == nil {
		return false
	}
	fx := comp.Effect(name)
	if fx == nil {
		return false
	}
	if fx.Enabled() {
		e.registry.RemoveEffect(e.renderer, name)
	} else {
		e.registry.ApplyEffect(e.renderer, name)
	}

	e.mu.Lock()
	e.selected = name
	e.mu.Unlock()
	return true
}

// adjustIntensity changes the intensity of the selected effect by delta.
func (e *engine) adjustIntensity(delta float32) {
	e.mu.Lock()
	name := e.selected
	e.mu.Unlock()
	if name == "" {
		return
	}
	comp := e.Compositor()
	if comp == nil {
		return
	}
	if fx := comp.Effect(name); fx != nil {
		fx.SetIntensity(fx.Intensity() + delta)
	}
}

// handleKey dispatches a key press: bound keys toggle effects, the rest drive the preview.
func (e *engine) handleKey(keyCode uint32) {
	e.mu.Lock()
	name, bound := e.bindings[keyCode]
	e.mu.Unlock()
	if bound {
		e.ToggleEffect(name)
		return
	}

	comp := e.Compositor()
	if comp == nil {
		return
	}
	switch keyCode {
	case common.KeyUp:
		e.adjustIntensity(intensityStep)
	case common.KeyDown:
		e.adjustIntensity(-intensityStep)
	case common.KeyBackspace:
		e.registry.ClearEffects(e.renderer)
	case common.KeyP:
		comp.SetProfilingEnabled(!comp.ProfilingEnabled())
	case common.KeyR:
		comp.ResetStats()
	case common.KeySpace:
		e.log("handleKey").Info(comp.DebugInfo())
	}
}

func (e *engine) EnableProfiler() {
	if comp := e.Compositor(); comp != nil {
		comp.SetProfilingEnabled(true)
	}
}

func (e *engine) DisableProfiler() {
	if comp := e.Compositor(); comp != nil {
		comp.SetProfilingEnabled(false)
	}
}

// SetTickRate takes effect immediately when the engine is running.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		replace(e.tickRateChannel, newRate)
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
