// Package compositor runs an ordered chain of named effects over a frame texture and presents the result.
package compositor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/config"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/profiler"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Compositor.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	// StateRendering is held for the duration of a render call.
	StateRendering
	// StateShutDown is terminal.
	StateShutDown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateRendering:
		return "Rendering"
	case StateShutDown:
		return "ShutDown"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrNotInitialized is returned by operations that need a GraphicsContext before Initialize succeeded.
	ErrNotInitialized = errors.New("compositor not initialized")
	// ErrShutDown is returned by operations on a compositor that has been shut down.
	ErrShutDown = errors.New("compositor shut down")
)

const presentEffectName = "Present"

// compositor is the implementation of the Compositor interface.
type compositor struct {
	mu sync.Mutex

	logger          logrus.FieldLogger
	contextOptions  []graphics.GraphicsContextBuilderOption
	profilerOptions []profiler.ProfilerBuilderOption
	format          graphics.TextureFormat

	state State
	cfg   config.RenderConfig

	ctx     graphics.GraphicsContext
	arena   effect.Arena
	pool    *graphics.FramebufferPool
	present effect.Effect

	profiler         *profiler.Profiler
	profilingEnabled bool

	order   []string
	effects map[string]effect.Effect

	// held is the pooled framebuffer holding the last chain result. It is checked in at the start of the next render call.
	held graphics.FramebufferHandle

	framesRendered uint64
	effectsApplied uint64
	effectsFailed  uint64
}

// Compositor applies an ordered chain of named effects to an input texture.
//
// Every intermediate pass renders into a framebuffer checked out of a pool keyed by size and format, so
// steady-state rendering allocates nothing. Render calls and chain mutation are serialized by one mutex.
type Compositor interface {
	// Initialize creates the GraphicsContext at the render resolution of cfg, the shared effect arena, the
	// framebuffer pool and the present pass.
	//
	// Parameters:
	//   - cfg: the render configuration, consumed wholesale
	//
	// Returns:
	//   - error: error if cfg is invalid, the compositor is not Uninitialized or the context fails to initialize
	Initialize(cfg config.RenderConfig) error

	// IsInitialized reports whether the compositor is ready to render.
	IsInitialized() bool

	// State returns the lifecycle state.
	State() State

	// Config returns the configuration passed to Initialize.
	Config() config.RenderConfig

	// Context returns the GraphicsContext, or nil before Initialize.
	Context() graphics.GraphicsContext

	// Arena returns the shared effect resources, or nil before Initialize.
	Arena() effect.Arena

	// NewEffect creates an effect of the named kind sharing this compositor's arena. The effect is not added
	// to the chain. An effect whose program failed to compile is still returned; check IsValid.
	//
	// Parameters:
	//   - kindName: the effect kind name
	//   - options: effect options
	//
	// Returns:
	//   - effect.Effect: the new effect
	//   - error: error if the compositor is not initialized or the kind is unknown
	NewEffect(kindName string, options ...effect.EffectBuilderOption) (effect.Effect, error)

	// AddEffect appends e to the end of the chain.
	//
	// Parameters:
	//   - e: the effect
	//
	// Returns:
	//   - bool: false if e is nil or an effect with the same name is already in the chain
	AddEffect(e effect.Effect) bool

	// RemoveEffect removes the named effect from the chain.
	//
	// Returns:
	//   - bool: false if no effect has that name
	RemoveEffect(name string) bool

	// Effect returns the named effect, or nil.
	Effect(name string) effect.Effect

	// HasEffect reports whether the chain contains the named effect.
	HasEffect(name string) bool

	// EffectNames returns a copy of the chain order.
	EffectNames() []string

	// ClearEffects empties the chain.
	ClearEffects()

	// SetEffectEnabled enables or disables the named effect.
	//
	// Returns:
	//   - bool: false if no effect has that name
	SetEffectEnabled(name string, enabled bool) bool

	// EffectCount returns the number of effects in the chain, enabled or not.
	EffectCount() int

	// SetTime forwards the animation time to every effect in the chain.
	//
	// Parameters:
	//   - seconds: the time in seconds
	SetTime(seconds float32)

	// UploadFrame scales a decoded frame to the render resolution and creates a texture from it.
	//
	// Parameters:
	//   - frame: the staged frame pixels
	//
	// Returns:
	//   - graphics.TextureHandle: the texture, or 0 on failure
	UploadFrame(frame common.TextureStagingData) graphics.TextureHandle

	// RenderFrame runs the chain over input and copies the result into output. Output 0 is the platform
	// surface, which is presented afterwards.
	//
	// Parameters:
	//   - input: the source texture
	//   - output: the destination framebuffer
	//
	// Returns:
	//   - bool: true if the result reached output
	RenderFrame(input graphics.TextureHandle, output graphics.FramebufferHandle) bool

	// RenderToTexture runs the chain over input. The returned texture belongs to the compositor and stays
	// valid until the next render call; input itself is returned when no effect ran.
	//
	// Parameters:
	//   - input: the source texture
	//
	// Returns:
	//   - graphics.TextureHandle: the result, or 0 if the compositor cannot render
	RenderToTexture(input graphics.TextureHandle) graphics.TextureHandle

	// ApplyEffect applies one named effect from input into output, whether or not it is enabled in the chain.
	// Output 0 is the platform surface.
	//
	// Returns:
	//   - bool: true if the effect rendered
	ApplyEffect(input graphics.TextureHandle, name string, output graphics.FramebufferHandle) bool

	// ReadPixels reads a texture back as tightly packed RGBA8 rows.
	//
	// Returns:
	//   - []byte: the pixels
	//   - error: error if the compositor is not initialized or the read fails
	ReadPixels(tex graphics.TextureHandle) ([]byte, error)

	// WaitForGPU blocks until submitted GPU work completes.
	WaitForGPU()

	// Stats returns the timing averages of the last profiling window together with the resource and frame
	// counters.
	Stats() profiler.RenderStats

	// ResetStats clears the timing history and the frame counters.
	ResetStats()

	// SetProfilingEnabled turns per-frame timing on or off.
	SetProfilingEnabled(enabled bool)

	// ProfilingEnabled reports whether per-frame timing is on.
	ProfilingEnabled() bool

	// DebugInfo returns a multi-line description of the compositor, its stats and its chain.
	DebugInfo() string

	// GPUInfo returns the adapter description of the context.
	GPUInfo() string

	// Shutdown releases the pool, the effect programs, the arena and the context. It is idempotent.
	Shutdown()
}

var _ Compositor = &compositor{}

// NewCompositor creates an uninitialized Compositor.
//
// Parameters:
//   - options: functional options for compositor configuration
//
// Returns:
//   - Compositor: the new compositor
func NewCompositor(options ...CompositorBuilderOption) Compositor {
	c := &compositor{
		logger:  logrus.StandardLogger(),
		format:  graphics.TextureFormatRGBA8,
		effects: make(map[string]effect.Effect),
	}
	for _, opt := range options {
		opt(c)
	}
	popts := append([]profiler.ProfilerBuilderOption{profiler.WithLogger(c.logger)}, c.profilerOptions...)
	c.profiler = profiler.NewProfiler(popts...)
	return c
}

func (c *compositor) log(function string) *logrus.Entry {
	return c.logger.WithFields(logrus.Fields{"function": function})
}

// acquire makes the context current on the calling goroutine for the duration of one call and returns the
// matching release. A caller that already owns the context keeps it; when another goroutine owns it the call
// proceeds under c.mu without a handoff. Requires c.mu and an initialized context.
func (c *compositor) acquire() func() {
	ctx := c.ctx
	if ctx.IsCurrent() || !ctx.MakeCurrent() {
		return func() {}
	}
	return func() { ctx.ReleaseContext() }
}

func (c *compositor) Initialize(cfg config.RenderConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUninitialized:
	case StateShutDown:
		return ErrShutDown
	default:
		return errors.New("compositor already initialized")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid render config: %w", err)
	}
	backend, _ := cfg.BackendType()

	opts := append([]graphics.GraphicsContextBuilderOption{
		graphics.WithBackendType(backend),
		graphics.WithLogger(c.logger),
	}, c.contextOptions...)
	ctx := graphics.NewGraphicsContext(opts...)
	if err := ctx.Initialize(cfg.RenderWidth, cfg.RenderHeight); err != nil {
		return fmt.Errorf("failed to initialize graphics context: %w", err)
	}
	c.ctx = ctx
	release := c.acquire()
	defer release()

	c.arena = effect.NewArena(ctx, effect.WithArenaLogger(c.logger))
	c.present = effect.NewEffect(effect.CopyKind(), c.arena,
		effect.WithName(presentEffectName),
		effect.WithEffectLogger(c.logger),
	)
	if !c.present.IsValid() {
		err := c.present.Err()
		c.arena.Release()
		release()
		ctx.Destroy()
		c.ctx, c.arena, c.present = nil, nil, nil
		return fmt.Errorf("failed to build present pass: %w", err)
	}
	c.pool = graphics.NewFramebufferPool(ctx)
	c.cfg = cfg
	c.profilingEnabled = cfg.EnableProfiling
	c.state = StateInitialized

	c.log("Initialize").WithFields(logrus.Fields{
		"backend": ctx.BackendType(),
		"width":   cfg.RenderWidth,
		"height":  cfg.RenderHeight,
	}).Info("compositor initialized")
	return nil
}

func (c *compositor) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateInitialized
}

func (c *compositor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *compositor) Config() config.RenderConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *compositor) Context() graphics.GraphicsContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *compositor) Arena() effect.Arena {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arena
}

func (c *compositor) NewEffect(kindName string, options ...effect.EffectBuilderOption) (effect.Effect, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInitialized {
		return nil, ErrNotInitialized
	}
	kind, ok := effect.KindByName(kindName)
	if !ok {
		return nil, fmt.Errorf("unknown effect kind %q", kindName)
	}
	release := c.acquire()
	defer release()

	opts := append([]effect.EffectBuilderOption{effect.WithEffectLogger(c.logger)}, options...)
	return effect.NewEffect(kind, c.arena, opts...), nil
}

func (c *compositor) AddEffect(e effect.Effect) bool {
	if e == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	name := e.Name()
	if _, ok := c.effects[name]; ok {
		c.log("AddEffect").WithField("effect", name).Warn("effect already in chain")
		return false
	}
	c.effects[name] = e
	c.order = append(c.order, name)
	return true
}

func (c *compositor) RemoveEffect(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.effects[name]; !ok {
		return false
	}
	delete(c.effects, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *compositor) Effect(name string) effect.Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effects[name]
}

func (c *compositor) HasEffect(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.effects[name]
	return ok
}

func (c *compositor) EffectNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

func (c *compositor) ClearEffects() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.effects = make(map[string]effect.Effect)
}

func (c *compositor) SetEffectEnabled(name string, enabled bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.effects[name]
	if !ok {
		return false
	}
	e.SetEnabled(enabled)
	return true
}

func (c *compositor) EffectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *compositor) SetTime(seconds float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.order {
		c.effects[name].SetTime(seconds)
	}
}

func (c *compositor) UploadFrame(frame common.TextureStagingData) graphics.TextureHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInitialized {
		c.log("UploadFrame").Warn(ErrNotInitialized)
		return 0
	}
	release := c.acquire()
	defer release()
	return c.ctx.CreateTextureFromStaging(frame.Resize(c.cfg.RenderWidth, c.cfg.RenderHeight))
}

// beginRender moves to StateRendering and returns the previous chain result to the pool. Requires c.mu.
func (c *compositor) beginRender(function string) bool {
	if c.state != StateInitialized {
		c.log(function).WithField("state", c.state).Warn(ErrNotInitialized)
		return false
	}
	c.state = StateRendering
	if c.held != 0 {
		c.pool.Checkin(c.held)
		c.held = 0
	}
	return true
}

func (c *compositor) endRender() {
	c.state = StateInitialized
}

// applyEffectChain renders input through every enabled effect, returning the last texture produced.
// Requires c.mu in StateRendering.
func (c *compositor) applyEffectChain(input graphics.TextureHandle) graphics.TextureHandle {
	logger := c.log("applyEffectChain")
	w, h := c.cfg.RenderWidth, c.cfg.RenderHeight

	current := input
	var owned graphics.FramebufferHandle
	for _, name := range c.order {
		e := c.effects[name]
		if !e.Enabled() {
			continue
		}
		fb := c.pool.Checkout(w, h, c.format)
		if fb == 0 {
			c.effectsFailed++
			logger.WithField("effect", name).Warnf("no intermediate framebuffer: %s", c.ctx.LastError())
			continue
		}
		if !e.Apply(current, fb, w, h) {
			c.pool.Checkin(fb)
			c.effectsFailed++
			logger.WithField("effect", name).Warnf("effect skipped: %v", e.Err())
			continue
		}
		if owned != 0 {
			c.pool.Checkin(owned)
		}
		owned = fb
		current = c.ctx.FramebufferTexture(fb)
		c.effectsApplied++
	}
	c.held = owned
	return current
}

// targetSize returns the pixel size of a framebuffer. Requires c.mu.
func (c *compositor) targetSize(fb graphics.FramebufferHandle) (int, int, bool) {
	if fb == graphics.DefaultFramebuffer {
		return c.ctx.Width(), c.ctx.Height(), true
	}
	return c.ctx.TextureSize(c.ctx.FramebufferTexture(fb))
}

// finishFrame counts the frame and, when profiling, records its cost. Requires c.mu.
func (c *compositor) finishFrame(start time.Time) {
	c.framesRendered++
	if !c.profilingEnabled {
		return
	}
	cpu := time.Since(start)
	gpuStart := time.Now()
	c.ctx.WaitForGPU()
	c.profiler.Record(profiler.FrameSample{GPUTime: time.Since(gpuStart), CPUTime: cpu})
	c.profiler.Tick()
}

func (c *compositor) RenderFrame(input graphics.TextureHandle, output graphics.FramebufferHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.beginRender("RenderFrame") {
		return false
	}
	defer c.endRender()
	release := c.acquire()
	defer release()

	logger := c.log("RenderFrame")
	start := time.Now()

	result := c.applyEffectChain(input)
	w, h, ok := c.targetSize(output)
	if !ok {
		logger.WithField("output", output).Warn("unknown output framebuffer")
		return false
	}
	if !c.present.Apply(result, output, w, h) {
		logger.Warnf("present failed: %v", c.present.Err())
		return false
	}
	if output == graphics.DefaultFramebuffer && !c.ctx.SwapBuffers() {
		logger.Warnf("swap failed: %s", c.ctx.LastError())
		return false
	}
	c.finishFrame(start)
	return true
}

func (c *compositor) RenderToTexture(input graphics.TextureHandle) graphics.TextureHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.beginRender("RenderToTexture") {
		return 0
	}
	defer c.endRender()
	release := c.acquire()
	defer release()

	start := time.Now()
	result := c.applyEffectChain(input)
	c.finishFrame(start)
	return result
}

func (c *compositor) ApplyEffect(input graphics.TextureHandle, name string, output graphics.FramebufferHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := c.log("ApplyEffect").WithField("effect", name)
	e, ok := c.effects[name]
	if !ok {
		logger.Warn("effect not in chain")
		return false
	}
	if !c.beginRender("ApplyEffect") {
		return false
	}
	defer c.endRender()
	release := c.acquire()
	defer release()

	w, h, ok := c.targetSize(output)
	if !ok {
		logger.WithField("output", output).Warn("unknown output framebuffer")
		return false
	}
	wasEnabled := e.Enabled()
	e.SetEnabled(true)
	defer e.SetEnabled(wasEnabled)

	if !e.Apply(input, output, w, h) {
		c.effectsFailed++
		logger.Warnf("effect failed: %v", e.Err())
		return false
	}
	c.effectsApplied++
	return true
}

func (c *compositor) ReadPixels(tex graphics.TextureHandle) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInitialized {
		return nil, ErrNotInitialized
	}
	release := c.acquire()
	defer release()
	return c.ctx.ReadTexture(tex)
}

func (c *compositor) WaitForGPU() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil && c.state != StateShutDown {
		c.ctx.WaitForGPU()
	}
}

func (c *compositor) Stats() profiler.RenderStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.profiler.Stats()
	stats.FramesRendered = c.framesRendered
	stats.EffectsApplied = c.effectsApplied
	stats.EffectsFailed = c.effectsFailed
	if c.ctx != nil && c.state != StateShutDown {
		stats.GPUMemoryUsedMB = float64(c.ctx.MemoryUsage()) / 1024 / 1024
		stats.TextureCount = c.ctx.TextureCount()
		stats.FramebufferCount = c.ctx.FramebufferCount()
	}
	return stats
}

func (c *compositor) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiler.Reset()
	c.framesRendered, c.effectsApplied, c.effectsFailed = 0, 0, 0
}

func (c *compositor) SetProfilingEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profilingEnabled = enabled
}

func (c *compositor) ProfilingEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profilingEnabled
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (c *compositor) DebugInfo() string {
	stats := c.Stats()

	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("Compositor Debug Info\n")
	sb.WriteString("=====================\n")
	fmt.Fprintf(&sb, "State: %s\n", c.state)
	fmt.Fprintf(&sb, "Render Target: %dx%d\n", c.cfg.RenderWidth, c.cfg.RenderHeight)
	fmt.Fprintf(&sb, "Output Size: %dx%d\n", c.cfg.OutputWidth, c.cfg.OutputHeight)
	fmt.Fprintf(&sb, "Effects: %d\n", len(c.order))
	pooled := 0
	if c.pool != nil {
		pooled = c.pool.Size()
	}
	fmt.Fprintf(&sb, "Pooled Framebuffers: %d\n", pooled)
	fmt.Fprintf(&sb, "Profiling Enabled: %s\n", yesNo(c.profilingEnabled))
	sb.WriteString("\nStatistics:\n")
	fmt.Fprintf(&sb, "  GPU Time: %.3f ms\n", stats.GPUTimeMs)
	fmt.Fprintf(&sb, "  CPU Time: %.3f ms\n", stats.CPUTimeMs)
	fmt.Fprintf(&sb, "  Total Time: %.3f ms\n", stats.TotalTimeMs)
	fmt.Fprintf(&sb, "  FPS: %.1f\n", stats.FramesPerSecond)
	fmt.Fprintf(&sb, "  Memory: %.2f MB\n", stats.GPUMemoryUsedMB)
	fmt.Fprintf(&sb, "  Frames: %d\n", stats.FramesRendered)
	fmt.Fprintf(&sb, "  Effects Applied: %d (failed %d)\n", stats.EffectsApplied, stats.EffectsFailed)
	sb.WriteString("\nEffect Chain:\n")
	for _, name := range c.order {
		fmt.Fprintf(&sb, "  - %s (enabled: %s)\n", name, yesNo(c.effects[name].Enabled()))
	}
	return sb.String()
}

func (c *compositor) GPUInfo() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil || c.state == StateShutDown {
		return "GPU context not initialized"
	}
	return c.ctx.GPUInfo()
}

func (c *compositor) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateShutDown {
		return
	}
	prev := c.state
	c.state = StateShutDown
	c.order = nil
	c.effects = make(map[string]effect.Effect)
	if prev == StateUninitialized {
		return
	}

	release := c.acquire()
	c.held = 0
	c.pool.ReleaseAll()
	c.arena.Release()
	release()
	c.ctx.Destroy()
	c.log("Shutdown").Info("compositor shut down")
}
