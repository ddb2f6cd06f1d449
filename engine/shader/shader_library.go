package shader

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/sirupsen/logrus"
)

// shaderLibrary is the implementation of the ShaderLibrary interface.
type shaderLibrary struct {
	ctx     graphics.GraphicsContext
	logger  logrus.FieldLogger
	shaders map[string]ShaderProgram
}

// ShaderLibrary is a name-keyed cache of compiled programs so effects of the same kind share one program.
//
// A ShaderLibrary is not safe for concurrent use; callers serialize access.
type ShaderLibrary interface {
	// CreateShader compiles src under name. If name is already cached the cached program is returned and src is ignored.
	//
	// Parameters:
	//   - name: the cache key
	//   - src: the program source
	//
	// Returns:
	//   - ShaderProgram: the compiled program, or nil if compilation failed
	CreateShader(name string, src ShaderSource) ShaderProgram

	// GetShader returns the cached program, or nil with a warning if name is unknown.
	GetShader(name string) ShaderProgram

	// HasShader reports whether name is cached.
	HasShader(name string) bool

	// RemoveShader releases and forgets the named program.
	//
	// Returns:
	//   - bool: false if name was not cached
	RemoveShader(name string) bool

	// ShaderNames returns the cached names in sorted order.
	ShaderNames() []string

	// ShaderCount returns the number of cached programs.
	ShaderCount() int

	// Clear releases every cached program.
	Clear()
}

var _ ShaderLibrary = &shaderLibrary{}

// NewShaderLibrary creates an empty library that compiles through ctx.
//
// Parameters:
//   - ctx: the GraphicsContext programs are compiled with
//   - options: functional options
//
// Returns:
//   - ShaderLibrary: the new library
func NewShaderLibrary(ctx graphics.GraphicsContext, options ...ShaderLibraryBuilderOption) ShaderLibrary {
	l := &shaderLibrary{
		ctx:     ctx,
		logger:  logrus.StandardLogger(),
		shaders: make(map[string]ShaderProgram),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *shaderLibrary) CreateShader(name string, src ShaderSource) ShaderProgram {
	if s, ok := l.shaders[name]; ok {
		return s
	}
	if src.Label == "" {
		src.Label = name
	}

	s := NewShaderProgram(l.ctx, WithLogger(l.logger))
	if !s.Compile(src) {
		l.logger.WithFields(logrus.Fields{
			"function": "CreateShader",
			"shader":   name,
		}).Errorf("failed to create shader: %s", s.LastError())
		return nil
	}
	l.shaders[name] = s
	return s
}

func (l *shaderLibrary) GetShader(name string) ShaderProgram {
	s, ok := l.shaders[name]
	if !ok {
		l.logger.WithFields(logrus.Fields{
			"function": "GetShader",
			"shader":   name,
		}).Warn("shader not found")
		return nil
	}
	return s
}

func (l *shaderLibrary) HasShader(name string) bool {
	_, ok := l.shaders[name]
	return ok
}

func (l *shaderLibrary) RemoveShader(name string) bool {
	s, ok := l.shaders[name]
	if !ok {
		return false
	}
	s.Release()
	delete(l.shaders, name)
	return true
}

func (l *shaderLibrary) ShaderNames() []string {
	names := make([]string, 0, len(l.shaders))
	for name := range l.shaders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (l *shaderLibrary) ShaderCount() int {
	return len(l.shaders)
}

func (l *shaderLibrary) Clear() {
	for _, s := range l.shaders {
		s.Release()
	}
	clear(l.shaders)
}
