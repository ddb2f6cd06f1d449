package effect

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/shader"
	"github.com/sirupsen/logrus"
)

// arena is the implementation of the Arena interface.
type arena struct {
	mu sync.Mutex
	// drawMu is held by Apply from framebuffer bind through draw.
	drawMu sync.Mutex

	ctx     graphics.GraphicsContext
	logger  logrus.FieldLogger
	library shader.ShaderLibrary

	quad  graphics.QuadHandle
	blank graphics.TextureHandle
}

// Arena owns the GPU resources every effect of a renderer shares: the full-screen quad, the compiled
// programs keyed by kind and a 1x1 texture bound in place of a missing auxiliary texture.
//
// Resources are created lazily on first use and live until Release.
type Arena interface {
	// Context returns the GraphicsContext the arena allocates from.
	Context() graphics.GraphicsContext

	// Quad returns the shared full-screen quad, creating it on first call.
	//
	// Returns:
	//   - graphics.QuadHandle: the quad
	//   - error: error if the quad could not be created
	Quad() (graphics.QuadHandle, error)

	// Program returns the program of kind, compiling it on first request.
	//
	// Parameters:
	//   - kind: the effect kind
	//
	// Returns:
	//   - shader.ShaderProgram: the program, or nil if it failed to compile
	Program(kind Kind) shader.ShaderProgram

	// Library returns the program cache.
	Library() shader.ShaderLibrary

	// BlankTexture returns a 1x1 transparent black texture, creating it on first call. It returns 0 on failure.
	BlankTexture() graphics.TextureHandle

	// DrawLock returns the lock Apply holds while it binds the output, writes a program's uniforms and draws.
	// Effects of one kind share a program, so passes over the arena must not interleave.
	DrawLock() sync.Locker

	// Release deletes the quad, the blank texture and every cached program.
	Release()
}

var _ Arena = &arena{}

// NewArena creates an arena allocating from ctx.
//
// Parameters:
//   - ctx: an initialized GraphicsContext
//   - options: functional options
//
// Returns:
//   - Arena: the arena
func NewArena(ctx graphics.GraphicsContext, options ...ArenaBuilderOption) Arena {
	a := &arena{
		ctx:    ctx,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.library == nil {
		a.library = shader.NewShaderLibrary(ctx, shader.WithLibraryLogger(a.logger))
	}
	return a
}

func (a *arena) Context() graphics.GraphicsContext {
	return a.ctx
}

func (a *arena) Quad() (graphics.QuadHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.quad != 0 {
		return a.quad, nil
	}
	quad, err := a.ctx.CreateQuad()
	if err != nil {
		return 0, fmt.Errorf("create shared quad: %w", err)
	}
	a.quad = quad
	a.logger.WithFields(logrus.Fields{"function": "Quad"}).Debug("shared quad created")
	return quad, nil
}

func (a *arena) Program(kind Kind) shader.ShaderProgram {
	a.mu.Lock()
	defer a.mu.Unlock()

	src := kind.Source
	if src.Label == "" {
		src.Label = kind.Name
	}
	return a.library.CreateShader(kind.Name, src)
}

func (a *arena) Library() shader.ShaderLibrary {
	return a.library
}

func (a *arena) BlankTexture() graphics.TextureHandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.blank == 0 {
		a.blank = a.ctx.CreateTexture(1, 1, graphics.TextureFormatRGBA8, make([]byte, 4))
	}
	return a.blank
}

func (a *arena) DrawLock() sync.Locker {
	return &a.drawMu
}

func (a *arena) Release() {
	a.drawMu.Lock()
	defer a.drawMu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()

	a.library.Clear()
	if a.quad != 0 {
		a.ctx.DeleteQuad(a.quad)
		a.quad = 0
	}
	if a.blank != 0 {
		a.ctx.DeleteTexture(a.blank)
		a.blank = 0
	}
}
