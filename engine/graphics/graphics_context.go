package graphics

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/sirupsen/logrus"
)

// graphicsContext is the implementation of the GraphicsContext interface.
type graphicsContext struct {
	mu sync.Mutex

	backendType          BackendType
	backend              GraphicsBackend
	forceFallbackAdapter bool
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	samplerData          common.SamplerStagingData
	pool                 worker.DynamicWorkerPool
	config               ContextConfig
	logger               logrus.FieldLogger

	width, height int
	capabilities  Capabilities
	initialized   bool
	// owner is the id of the goroutine the context is current on, 0 when released.
	owner uint64

	boundFramebuffer FramebufferHandle
	viewport         Viewport

	textures     map[TextureHandle]struct{}
	framebuffers map[FramebufferHandle]struct{}

	lastError string
}

// GraphicsContext owns the device, the default framebuffer and every texture and framebuffer created through it.
// All GPU work for an effect chain flows through a single context that is current on the render goroutine.
//
// Fallible calls report failure through zero handles or false and record a retrievable error string;
// after each GPU call the backend error state is checked and logged through the fixed error-code table.
type GraphicsContext interface {
	// Initialize creates the device and an off-screen default framebuffer of the given size and detects
	// capabilities. Contexts reporting an API version below 3.0 are rejected. The context is left released; the
	// goroutine that issues GPU work calls MakeCurrent. A failed Initialize drops the backend, so a retry builds
	// a fresh one from the backend type.
	//
	// Parameters:
	//   - width: the default framebuffer width in pixels
	//   - height: the default framebuffer height in pixels
	//
	// Returns:
	//   - error: a *ContextError if any step fails; the context is unusable afterwards
	Initialize(width, height int) error

	// IsInitialized reports whether Initialize succeeded and Destroy has not been called.
	IsInitialized() bool

	// MakeCurrent binds the context to the calling goroutine and locks it to its OS thread. Calling it again from
	// the owning goroutine is a no-op.
	//
	// Returns:
	//   - bool: false if the context is not initialized or is current on another goroutine (ErrContextBusy)
	MakeCurrent() bool

	// ReleaseContext unbinds the context from the owning goroutine so another goroutine may make it current.
	//
	// Returns:
	//   - bool: false if the context was not current, or if the caller is not the owner (ErrContextBusy)
	ReleaseContext() bool

	// IsCurrent reports whether the context is current on the calling goroutine.
	IsCurrent() bool

	// Width returns the default framebuffer width.
	Width() int

	// Height returns the default framebuffer height.
	Height() int

	// Resize reallocates the default framebuffer.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - bool: false if the reallocation failed
	Resize(width, height int) bool

	// Capabilities returns the capability set detected at Initialize.
	Capabilities() Capabilities

	// BackendType returns the backend kind driving the context.
	BackendType() BackendType

	// CreateFramebuffer allocates a color texture with a depth-stencil attachment and validates completeness.
	// Zero dimensions or any allocation failure return 0 with nothing leaked.
	//
	// Parameters:
	//   - width: the framebuffer width in pixels
	//   - height: the framebuffer height in pixels
	//   - format: the color attachment format
	//
	// Returns:
	//   - FramebufferHandle: the new framebuffer, or 0 on failure
	CreateFramebuffer(width, height int, format TextureFormat) FramebufferHandle

	// DeleteFramebuffer frees a framebuffer and its attachments.
	//
	// Parameters:
	//   - fb: the framebuffer to free
	DeleteFramebuffer(fb FramebufferHandle)

	// FramebufferTexture returns the color attachment of a framebuffer, or 0 if the handle is unknown.
	//
	// Parameters:
	//   - fb: the framebuffer to query; 0 is the default framebuffer
	//
	// Returns:
	//   - TextureHandle: the color texture
	FramebufferTexture(fb FramebufferHandle) TextureHandle

	// BindFramebuffer makes fb the target of subsequent draws. 0 binds the default framebuffer.
	//
	// Parameters:
	//   - fb: the framebuffer to bind
	BindFramebuffer(fb FramebufferHandle)

	// BoundFramebuffer returns the current draw target.
	BoundFramebuffer() FramebufferHandle

	// CreateTexture allocates a 2D texture with linear filtering, clamp-to-edge wrapping and no mipmaps.
	//
	// Parameters:
	//   - width: the texture width in pixels
	//   - height: the texture height in pixels
	//   - format: the texel format
	//   - pixels: initial contents, tightly packed, or nil for zeroed contents
	//
	// Returns:
	//   - TextureHandle: the new texture, or 0 on failure
	CreateTexture(width, height int, format TextureFormat, pixels []byte) TextureHandle

	// CreateTextureFromStaging uploads staged RGBA pixels as an RGBA8 texture.
	//
	// Parameters:
	//   - data: the staged pixels
	//
	// Returns:
	//   - TextureHandle: the new texture, or 0 on failure
	CreateTextureFromStaging(data common.TextureStagingData) TextureHandle

	// CreateVideoFrameTexture allocates an empty RGBA8 texture sized for decoded video frames.
	//
	// Parameters:
	//   - width: the frame width in pixels
	//   - height: the frame height in pixels
	//
	// Returns:
	//   - TextureHandle: the new texture, or 0 on failure
	CreateVideoFrameTexture(width, height int) TextureHandle

	// UpdateTexture replaces the full contents of a texture.
	//
	// Parameters:
	//   - tex: the texture to update
	//   - pixels: the new contents, tightly packed
	//
	// Returns:
	//   - bool: false if the texture is unknown or the data size mismatches
	UpdateTexture(tex TextureHandle, pixels []byte) bool

	// DeleteTexture frees a texture.
	//
	// Parameters:
	//   - tex: the texture to free
	DeleteTexture(tex TextureHandle)

	// TextureSize returns a texture's dimensions.
	//
	// Parameters:
	//   - tex: the texture to query
	//
	// Returns:
	//   - int: the width in pixels
	//   - int: the height in pixels
	//   - bool: false if the texture is unknown
	TextureSize(tex TextureHandle) (int, int, bool)

	// ReadTexture copies a texture back to host memory after all prior submissions have completed.
	//
	// Parameters:
	//   - tex: the texture to read
	//
	// Returns:
	//   - []byte: the tightly packed pixels
	//   - error: error if the readback failed
	ReadTexture(tex TextureHandle) ([]byte, error)

	// SetViewport sets the pixel rectangle subsequent draws rasterize into.
	SetViewport(x, y, width, height int)

	// Viewport returns the current viewport.
	Viewport() Viewport

	// ClearFramebuffer fills a framebuffer with a color.
	//
	// Returns:
	//   - bool: false if the framebuffer is unknown
	ClearFramebuffer(fb FramebufferHandle, r, g, b, a float32) bool

	// ClearScreen fills the default framebuffer with a color.
	ClearScreen(r, g, b, a float32) bool

	// CompileStage compiles one shader stage.
	//
	// Parameters:
	//   - stage: the pipeline stage
	//   - source: the WGSL source
	//
	// Returns:
	//   - StageHandle: the compiled stage, or 0 on failure
	//   - error: the compiler log on failure
	CompileStage(stage ShaderStage, source string) (StageHandle, error)

	// DeleteStage frees a compiled stage.
	DeleteStage(stage StageHandle)

	// LinkProgram links compiled stages into a program.
	//
	// Parameters:
	//   - desc: the stages, entry points, resource layout and software kernel
	//
	// Returns:
	//   - ProgramHandle: the linked program, or 0 on failure
	//   - error: the linker log on failure
	LinkProgram(desc ProgramDescriptor) (ProgramHandle, error)

	// DeleteProgram frees a linked program.
	DeleteProgram(program ProgramHandle)

	// CreateQuad uploads the full-screen quad.
	CreateQuad() (QuadHandle, error)

	// DeleteQuad frees quad geometry.
	DeleteQuad(quad QuadHandle)

	// DrawQuad issues one full-screen draw of program into the bound framebuffer over the current viewport.
	//
	// Parameters:
	//   - program: the linked program
	//   - quad: the quad geometry
	//   - uniforms: the program's uniform block
	//   - textures: textures keyed by binding slot
	//
	// Returns:
	//   - error: error if the draw was rejected
	DrawQuad(program ProgramHandle, quad QuadHandle, uniforms []byte, textures map[int]TextureHandle) error

	// Draw issues one full-screen draw described entirely by call, ignoring the bound framebuffer and viewport.
	//
	// Parameters:
	//   - call: the program, geometry, target, viewport and bound resources of the draw
	//
	// Returns:
	//   - error: error if the draw was rejected
	Draw(call DrawCall) error

	// SwapBuffers presents the default framebuffer onto the platform surface, if one is attached.
	SwapBuffers() bool

	// WaitForGPU blocks until all submitted work has completed.
	WaitForGPU()

	// CheckError pops the backend error state and logs it. It returns true when no error was pending.
	//
	// Parameters:
	//   - operation: the name of the call being checked, used in the log entry
	//
	// Returns:
	//   - bool: true if no error was pending
	CheckError(operation string) bool

	// LastError returns the most recent error message recorded by the context.
	LastError() string

	// MemoryUsage returns the bytes held by textures and framebuffers.
	MemoryUsage() uint64

	// TextureCount returns the number of live textures created through the context, excluding framebuffer attachments.
	TextureCount() int

	// FramebufferCount returns the number of live framebuffers created through the context.
	FramebufferCount() int

	// GPUInfo returns a one-line description of the adapter and API.
	GPUInfo() string

	// DebugInfo returns a multi-line dump of capabilities and resource counts.
	DebugInfo() string

	// Destroy frees every resource and the device.
	Destroy()
}

var _ GraphicsContext = &graphicsContext{}

// NewGraphicsContext creates an uninitialized GraphicsContext. Call Initialize before any other method.
//
// Parameters:
//   - options: functional options configuring the backend, surface and logger
//
// Returns:
//   - GraphicsContext: the new context
func NewGraphicsContext(options ...GraphicsContextBuilderOption) GraphicsContext {
	c := &graphicsContext{
		backendType:  BackendWGPU,
		config:       DefaultContextConfig(),
		logger:       logrus.StandardLogger(),
		textures:     make(map[TextureHandle]struct{}),
		framebuffers: make(map[FramebufferHandle]struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *graphicsContext) log(function string) *logrus.Entry {
	return c.logger.WithFields(logrus.Fields{
		"function": function,
		"backend":  c.backendType.String(),
	})
}

func (c *graphicsContext) setError(function string, err error) {
	c.lastError = err.Error()
	c.log(function).WithError(err).WithField("code", codeOf(err).String()).Error("graphics call failed")
}

func (c *graphicsContext) ready(function string) bool {
	if !c.initialized {
		c.setError(function, ErrNotInitialized)
		return false
	}
	if c.owner != goroutineID() {
		c.log(function).WithField("owner", c.owner).Warn("GPU call issued while the context is not current on this goroutine")
	}
	return true
}

func (c *graphicsContext) Initialize(width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fail := func(step string, err error) error {
		cerr := &ContextError{Step: step, Err: err}
		c.lastError = cerr.Error()
		c.log("Initialize").WithError(err).Error("context initialization failed")
		if c.backend != nil {
			c.backend.Destroy()
			c.backend = nil
		}
		c.initialized = false
		return cerr
	}

	if c.initialized {
		cerr := &ContextError{Step: "initialize", Err: errors.New("context is already initialized")}
		c.lastError = cerr.Error()
		return cerr
	}
	if width <= 0 || height <= 0 {
		return fail("configure surface", fmt.Errorf("invalid surface size %dx%d", width, height))
	}
	if c.config.RedBits < 8 || c.config.GreenBits < 8 || c.config.BlueBits < 8 || c.config.AlphaBits < 8 {
		return fail("choose config", fmt.Errorf("RGBA8 color buffer required, got %d/%d/%d/%d bits",
			c.config.RedBits, c.config.GreenBits, c.config.BlueBits, c.config.AlphaBits))
	}

	if c.backend == nil {
		switch c.backendType {
		case BackendSoftware:
			c.backend = newSoftwareGraphicsBackend(c.pool)
		case BackendWGPU:
			c.backend = newWGPUGraphicsBackend(c.surfaceDescriptor, c.forceFallbackAdapter, c.samplerData)
		default:
			return fail("select backend", fmt.Errorf("unsupported backend %s", c.backendType))
		}
	}

	if err := c.backend.Init(width, height, c.config); err != nil {
		return fail("create context", err)
	}

	caps := c.backend.Capabilities()
	if caps.MajorVersion < 3 {
		return fail("validate version", fmt.Errorf("%s %d.%d is below the required 3.0", caps.APIName, caps.MajorVersion, caps.MinorVersion))
	}
	c.capabilities = caps
	c.width, c.height = width, height
	c.viewport = Viewport{Width: width, Height: height}
	c.initialized = true

	c.log("Initialize").WithFields(logrus.Fields{
		"width":    width,
		"height":   height,
		"renderer": caps.Renderer,
	}).Info("graphics context initialized")
	return nil
}

func (c *graphicsContext) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *graphicsContext) MakeCurrent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		c.setError("MakeCurrent", ErrNotInitialized)
		return false
	}
	switch id := goroutineID(); c.owner {
	case id:
	case 0:
		runtime.LockOSThread()
		c.owner = id
	default:
		c.rejectForeign("MakeCurrent")
		return false
	}
	return true
}

func (c *graphicsContext) ReleaseContext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.owner {
	case 0:
		return false
	case goroutineID():
		c.owner = 0
		runtime.UnlockOSThread()
		return true
	default:
		c.rejectForeign("ReleaseContext")
		return false
	}
}

func (c *graphicsContext) IsCurrent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner != 0 && c.owner == goroutineID()
}

// rejectForeign records ErrContextBusy for a handoff attempted by a goroutine that does not own the context.
func (c *graphicsContext) rejectForeign(function string) {
	c.lastError = fmt.Errorf("%w (owner %d)", ErrContextBusy, c.owner).Error()
	c.log(function).WithField("owner", c.owner).Warn(ErrContextBusy)
}

// goroutineID parses the id of the calling goroutine from its stack header, "goroutine N [...".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i > 0 {
		field = field[:i]
	}
	id, _ := strconv.ParseUint(string(field), 10, 64)
	return id
}

func (c *graphicsContext) Width() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width
}

func (c *graphicsContext) Height() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *graphicsContext) Resize(width, height int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("Resize") {
		return false
	}
	if err := c.backend.ResizeDefault(width, height); err != nil {
		c.setError("Resize", err)
		c.checkError("Resize")
		return false
	}
	c.width, c.height = width, height
	c.viewport = Viewport{Width: width, Height: height}
	return c.checkError("Resize")
}

func (c *graphicsContext) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

func (c *graphicsContext) BackendType() BackendType {
	return c.backendType
}

func (c *graphicsContext) CreateFramebuffer(width, height int, format TextureFormat) FramebufferHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("CreateFramebuffer") {
		return 0
	}
	if width <= 0 || height <= 0 {
		c.setError("CreateFramebuffer", &FramebufferError{Width: width, Height: height, Format: format, Reason: "zero-sized attachment"})
		return 0
	}
	fb, err := c.backend.CreateFramebuffer(width, height, format)
	if err != nil {
		c.setError("CreateFramebuffer", &FramebufferError{Width: width, Height: height, Format: format, Reason: err.Error()})
		c.checkError("CreateFramebuffer")
		return 0
	}
	c.framebuffers[fb] = struct{}{}
	c.checkError("CreateFramebuffer")
	return fb
}

func (c *graphicsContext) DeleteFramebuffer(fb FramebufferHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fb == DefaultFramebuffer || !c.initialized {
		return
	}
	if _, ok := c.framebuffers[fb]; !ok {
		return
	}
	c.backend.DeleteFramebuffer(fb)
	delete(c.framebuffers, fb)
	if c.boundFramebuffer == fb {
		c.boundFramebuffer = DefaultFramebuffer
	}
	c.checkError("DeleteFramebuffer")
}

func (c *graphicsContext) FramebufferTexture(fb FramebufferHandle) TextureHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return 0
	}
	return c.backend.FramebufferTexture(fb)
}

func (c *graphicsContext) BindFramebuffer(fb FramebufferHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boundFramebuffer = fb
}

func (c *graphicsContext) BoundFramebuffer() FramebufferHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundFramebuffer
}

func (c *graphicsContext) CreateTexture(width, height int, format TextureFormat, pixels []byte) TextureHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("CreateTexture") {
		return 0
	}
	tex, err := c.backend.CreateTexture(width, height, format, pixels)
	if err != nil {
		c.setError("CreateTexture", err)
		c.checkError("CreateTexture")
		return 0
	}
	c.textures[tex] = struct{}{}
	c.checkError("CreateTexture")
	return tex
}

func (c *graphicsContext) CreateTextureFromStaging(data common.TextureStagingData) TextureHandle {
	return c.CreateTexture(int(data.Width), int(data.Height), TextureFormatRGBA8, data.Pixels)
}

func (c *graphicsContext) CreateVideoFrameTexture(width, height int) TextureHandle {
	return c.CreateTexture(width, height, TextureFormatRGBA8, nil)
}

func (c *graphicsContext) UpdateTexture(tex TextureHandle, pixels []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("UpdateTexture") {
		return false
	}
	if err := c.backend.WriteTexture(tex, pixels); err != nil {
		c.setError("UpdateTexture", err)
		c.checkError("UpdateTexture")
		return false
	}
	return c.checkError("UpdateTexture")
}

func (c *graphicsContext) DeleteTexture(tex TextureHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.textures[tex]; !ok || !c.initialized {
		return
	}
	c.backend.DeleteTexture(tex)
	delete(c.textures, tex)
	c.checkError("DeleteTexture")
}

func (c *graphicsContext) TextureSize(tex TextureHandle) (int, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return 0, 0, false
	}
	w, h, _, ok := c.backend.TextureSize(tex)
	return w, h, ok
}

func (c *graphicsContext) ReadTexture(tex TextureHandle) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("ReadTexture") {
		return nil, ErrNotInitialized
	}
	c.backend.WaitIdle()
	pixels, err := c.backend.ReadTexture(tex)
	if err != nil {
		c.setError("ReadTexture", err)
		c.checkError("ReadTexture")
		return nil, err
	}
	c.checkError("ReadTexture")
	return pixels, nil
}

func (c *graphicsContext) SetViewport(x, y, width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = Viewport{X: x, Y: y, Width: width, Height: height}
}

func (c *graphicsContext) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

func (c *graphicsContext) ClearFramebuffer(fb FramebufferHandle, r, g, b, a float32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("ClearFramebuffer") {
		return false
	}
	if err := c.backend.Clear(fb, [4]float32{r, g, b, a}); err != nil {
		c.setError("ClearFramebuffer", err)
		c.checkError("ClearFramebuffer")
		return false
	}
	return c.checkError("ClearFramebuffer")
}

func (c *graphicsContext) ClearScreen(r, g, b, a float32) bool {
	return c.ClearFramebuffer(DefaultFramebuffer, r, g, b, a)
}

func (c *graphicsContext) CompileStage(stage ShaderStage, source string) (StageHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("CompileStage") {
		return 0, ErrNotInitialized
	}
	h, err := c.backend.CompileStage(stage, source)
	// compile failures are reported by the shader program; only drain the error state here
	c.backend.PopError()
	return h, err
}

func (c *graphicsContext) DeleteStage(stage StageHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		c.backend.DeleteStage(stage)
	}
}

func (c *graphicsContext) LinkProgram(desc ProgramDescriptor) (ProgramHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("LinkProgram") {
		return 0, ErrNotInitialized
	}
	h, err := c.backend.LinkProgram(desc)
	c.backend.PopError()
	return h, err
}

func (c *graphicsContext) DeleteProgram(program ProgramHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized && program != 0 {
		c.backend.DeleteProgram(program)
		c.checkError("DeleteProgram")
	}
}

func (c *graphicsContext) CreateQuad() (QuadHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("CreateQuad") {
		return 0, ErrNotInitialized
	}
	q, err := c.backend.CreateQuad()
	if err != nil {
		c.setError("CreateQuad", err)
	}
	c.checkError("CreateQuad")
	return q, err
}

func (c *graphicsContext) DeleteQuad(quad QuadHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized && quad != 0 {
		c.backend.DeleteQuad(quad)
	}
}

func (c *graphicsContext) DrawQuad(program ProgramHandle, quad QuadHandle, uniforms []byte, textures map[int]TextureHandle) error {
	c.mu.Lock()
	call := DrawCall{
		Program:  program,
		Quad:     quad,
		Target:   c.boundFramebuffer,
		Viewport: c.viewport,
		Uniforms: uniforms,
		Textures: textures,
	}
	c.mu.Unlock()
	return c.Draw(call)
}

func (c *graphicsContext) Draw(call DrawCall) error {
	c.mu.Lock()
	if !c.ready("Draw") {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	backend := c.backend
	c.mu.Unlock()

	// rasterization runs outside the context lock so queries from other goroutines are not blocked
	err := backend.Draw(call)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.setError("Draw", err)
	}
	c.checkError("Draw")
	return err
}

func (c *graphicsContext) SwapBuffers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready("SwapBuffers") {
		return false
	}
	if err := c.backend.Present(); err != nil {
		c.setError("SwapBuffers", err)
		c.checkError("SwapBuffers")
		return false
	}
	return c.checkError("SwapBuffers")
}

func (c *graphicsContext) WaitForGPU() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		c.backend.WaitIdle()
	}
}

func (c *graphicsContext) CheckError(operation string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkError(operation)
}

func (c *graphicsContext) checkError(operation string) bool {
	if c.backend == nil {
		return true
	}
	code := c.backend.PopError()
	if code == ErrorNone {
		return true
	}
	c.log(operation).WithField("code", int(code)).Errorf("GPU error: %s", ErrorString(code))
	return false
}

func (c *graphicsContext) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *graphicsContext) MemoryUsage() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return 0
	}
	return c.backend.MemoryUsage()
}

func (c *graphicsContext) TextureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.textures)
}

func (c *graphicsContext) FramebufferCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.framebuffers)
}

func (c *graphicsContext) GPUInfo() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return "graphics context not initialized"
	}
	caps := c.capabilities
	return fmt.Sprintf("%s %d.%d | %s | max texture %d", caps.APIName, caps.MajorVersion, caps.MinorVersion, caps.Renderer, caps.MaxTextureSize)
}

func (c *graphicsContext) DebugInfo() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	caps := c.capabilities
	ext := append([]string(nil), caps.Extensions...)
	sort.Strings(ext)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Backend: %s\n", c.backendType)
	fmt.Fprintf(&sb, "API: %s %d.%d\n", caps.APIName, caps.MajorVersion, caps.MinorVersion)
	fmt.Fprintf(&sb, "Renderer: %s\n", caps.Renderer)
	fmt.Fprintf(&sb, "Surface: %dx%d (initialized=%t, owner=%d)\n", c.width, c.height, c.initialized, c.owner)
	fmt.Fprintf(&sb, "Max texture size: %d\n", caps.MaxTextureSize)
	fmt.Fprintf(&sb, "Max renderbuffer size: %d\n", caps.MaxRenderbufferSize)
	fmt.Fprintf(&sb, "Max uniform block size: %d\n", caps.MaxUniformBlockSize)
	fmt.Fprintf(&sb, "Max color attachments: %d\n", caps.MaxColorAttachments)
	fmt.Fprintf(&sb, "Framebuffers: %t, float textures: %t, half float: %t, depth textures: %t\n",
		caps.SupportsFramebuffers, caps.SupportsFloatTextures, caps.SupportsHalfFloatTexture, caps.SupportsDepthTexture)
	fmt.Fprintf(&sb, "Extensions: %s\n", strings.Join(ext, ", "))
	fmt.Fprintf(&sb, "Textures: %d, framebuffers: %d\n", len(c.textures), len(c.framebuffers))
	return sb.String()
}

func (c *graphicsContext) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		c.backend.Destroy()
	}
	c.textures = make(map[TextureHandle]struct{})
	c.framebuffers = make(map[FramebufferHandle]struct{})
	if c.owner != 0 && c.owner == goroutineID() {
		runtime.UnlockOSThread()
	}
	c.owner = 0
	c.initialized = false
}
