package shader

import (
	"encoding/binary"
	"errors"
	"maps"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/sirupsen/logrus"
)

// ShaderSource is the input of a program: WGSL for each stage plus the CPU kernel the software backend runs
// in place of the fragment stage. Stages may contain //@fx:include directives.
type ShaderSource struct {
	Label    string
	Vertex   string
	Fragment string
	// Geometry is accepted for completeness; no backend links a program with a geometry stage.
	Geometry string
	Kernel   graphics.FragmentKernel
}

// shaderProgram is the implementation of the ShaderProgram interface.
type shaderProgram struct {
	mu sync.Mutex

	ctx    graphics.GraphicsContext
	pp     PreProcessor
	logger logrus.FieldLogger

	source    ShaderSource
	handle    graphics.ProgramHandle
	layout    graphics.ProgramLayout
	lastError string
	err       error

	// locations caches uniform lookups by name; misses are cached as -1
	locations map[string]int
	block     []byte
	textures  map[int]graphics.TextureHandle
}

// ShaderProgram is a linked vertex/fragment program plus the CPU staging of its uniform block.
//
// Uniform setters resolve names through a per-program cache: the first lookup consults the parsed
// layout and later lookups, including misses, are map hits. Setting a uniform the program does not
// declare logs a warning once and is otherwise a no-op.
//
// A ShaderProgram is used from the render goroutine; its mutex only protects its own state.
type ShaderProgram interface {
	// Compile pre-processes and compiles every stage, links them and releases the per-stage objects
	// regardless of outcome. Any previously linked program is released first.
	//
	// Parameters:
	//   - src: the stage sources and software kernel
	//
	// Returns:
	//   - bool: true if the program linked; otherwise LastError holds the compiler or linker log
	Compile(src ShaderSource) bool

	// IsValid reports whether the program is linked.
	IsValid() bool

	// LastError returns the most recent compiler or linker log, or the fixed fallback message when the backend produced none.
	LastError() string

	// Err returns the typed error of the last failed Compile, a *CompileError or *LinkError, or nil.
	Err() error

	// Handle returns the linked program handle, or 0.
	Handle() graphics.ProgramHandle

	// Source returns the source of the last Compile call.
	Source() ShaderSource

	// Layout returns the resource layout extracted at link time.
	Layout() graphics.ProgramLayout

	// UniformLocation returns the byte offset of a uniform block member, or -1 if the program does not declare it.
	//
	// Parameters:
	//   - name: the member name
	//
	// Returns:
	//   - int: the byte offset, or -1
	UniformLocation(name string) int

	SetFloat(name string, v float32)
	SetInt(name string, v int32)
	SetBool(name string, v bool)
	SetVec2(name string, x, y float32)
	SetVec3(name string, x, y, z float32)
	SetVec4(name string, x, y, z, w float32)
	// SetMat3 writes a column-major 3x3 matrix; each column is padded to 16 bytes in the block.
	SetMat3(name string, m [9]float32)
	// SetMat4 writes a column-major 4x4 matrix.
	SetMat4(name string, m [16]float32)
	// SetFloatArray writes consecutive elements of an array member using its element stride. Extra values are dropped.
	SetFloatArray(name string, values []float32)

	// SetTexture binds tex to the texture variable name. unit is accepted for call-site symmetry with
	// sampler-unit APIs; the binding slot always comes from the program layout.
	//
	// Parameters:
	//   - name: the texture variable name, e.g. "uTexture"
	//   - unit: the caller's texture unit
	//   - tex: the texture to sample
	SetTexture(name string, unit int, tex graphics.TextureHandle)

	// UniformBlock returns a copy of the uniform block staging bytes.
	UniformBlock() []byte

	// TextureBindings returns a copy of the texture bindings keyed by binding slot.
	TextureBindings() map[int]graphics.TextureHandle

	// ClearTextures unbinds every texture.
	ClearTextures()

	// Draw issues one full-screen draw of the program with its current uniforms and textures into the
	// context's bound framebuffer.
	//
	// Parameters:
	//   - quad: the quad geometry
	//
	// Returns:
	//   - error: error if the program is not linked or the draw was rejected
	Draw(quad graphics.QuadHandle) error

	// Release deletes the linked program. The ShaderProgram can be compiled again afterwards.
	Release()
}

var _ ShaderProgram = &shaderProgram{}

// ErrProgramNotLinked is returned by Draw on a program without a successful Compile.
var ErrProgramNotLinked = errors.New("shader program is not linked")

// NewShaderProgram creates an empty program bound to ctx. Call Compile before use.
//
// Parameters:
//   - ctx: the GraphicsContext that compiles, links and draws the program
//   - options: functional options
//
// Returns:
//   - ShaderProgram: the new program
func NewShaderProgram(ctx graphics.GraphicsContext, options ...ShaderProgramBuilderOption) ShaderProgram {
	s := &shaderProgram{
		ctx:       ctx,
		pp:        NewPreProcessor(),
		logger:    logrus.StandardLogger(),
		locations: make(map[string]int),
		textures:  make(map[int]graphics.TextureHandle),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *shaderProgram) log() *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"function": "ShaderProgram",
		"shader":   s.source.Label,
	})
}

func (s *shaderProgram) Compile(src ShaderSource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.release()
	s.source = src
	s.err = nil
	s.lastError = ""

	stages := []struct {
		stage  graphics.ShaderStage
		source string
	}{
		{graphics.StageVertex, src.Vertex},
		{graphics.StageFragment, src.Fragment},
	}
	if src.Geometry != "" {
		stages = append(stages, struct {
			stage  graphics.ShaderStage
			source string
		}{graphics.StageGeometry, src.Geometry})
	}

	var compiled []graphics.StageHandle
	defer func() {
		for _, h := range compiled {
			s.ctx.DeleteStage(h)
		}
	}()

	processed := make(map[graphics.ShaderStage]string, len(stages))
	for _, st := range stages {
		code, err := s.pp.Process(st.source)
		if err != nil {
			return s.compileFailed(st.stage, err.Error())
		}
		if st.stage != graphics.StageGeometry && parseEntryPoint(code, st.stage) == "" {
			return s.compileFailed(st.stage, "no @"+st.stage.String()+" entry point")
		}
		h, err := s.ctx.CompileStage(st.stage, code)
		if err != nil || h == 0 {
			log := ""
			if err != nil {
				log = err.Error()
			}
			return s.compileFailed(st.stage, log)
		}
		compiled = append(compiled, h)
		processed[st.stage] = code
	}

	layout, err := ParseProgramLayout(processed[graphics.StageVertex], processed[graphics.StageFragment])
	if err != nil {
		return s.linkFailed(err.Error())
	}

	handle, err := s.ctx.LinkProgram(graphics.ProgramDescriptor{
		Label:         src.Label,
		Stages:        compiled,
		VertexEntry:   parseEntryPoint(processed[graphics.StageVertex], graphics.StageVertex),
		FragmentEntry: parseEntryPoint(processed[graphics.StageFragment], graphics.StageFragment),
		Layout:        layout,
		Kernel:        src.Kernel,
		TargetFormat:  graphics.TextureFormatRGBA8,
		HasGeometry:   src.Geometry != "",
	})
	if err != nil || handle == 0 {
		log := ""
		if err != nil {
			log = err.Error()
		}
		return s.linkFailed(log)
	}

	s.handle = handle
	s.layout = layout
	s.block = make([]byte, layout.UniformSize)
	s.log().WithFields(logrus.Fields{
		"uniforms": len(layout.Uniforms),
		"textures": len(layout.Textures),
	}).Debug("shader program linked")
	return true
}

func (s *shaderProgram) compileFailed(stage graphics.ShaderStage, log string) bool {
	if log == "" {
		log = compileFallback(stage)
	}
	s.lastError = log
	s.err = &CompileError{Label: s.source.Label, Stage: stage, Log: log}
	s.log().WithError(s.err).Error("shader compilation failed")
	return false
}

func (s *shaderProgram) linkFailed(log string) bool {
	if log == "" {
		log = msgLinkFailed
	}
	s.lastError = log
	s.err = &LinkError{Label: s.source.Label, Log: log}
	s.log().WithError(s.err).Error("shader link failed")
	return false
}

func (s *shaderProgram) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != 0
}

func (s *shaderProgram) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *shaderProgram) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *shaderProgram) Handle() graphics.ProgramHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *shaderProgram) Source() ShaderSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *shaderProgram) Layout() graphics.ProgramLayout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

func (s *shaderProgram) UniformLocation(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location(name)
}

// location resolves name through the cache. A texture variable resolves to -1 without a warning.
func (s *shaderProgram) location(name string) int {
	if loc, ok := s.locations[name]; ok {
		return loc
	}
	loc := -1
	if f, ok := s.layout.Uniform(name); ok {
		loc = f.Offset
	} else if s.layout.TextureSlot(name) < 0 {
		s.log().WithField("uniform", name).Warn("uniform not found")
	}
	s.locations[name] = loc
	return loc
}

// field returns the member at name if it is declared and at least minSize bytes.
func (s *shaderProgram) field(name string, minSize int) (graphics.UniformField, bool) {
	if s.location(name) < 0 {
		return graphics.UniformField{}, false
	}
	f, _ := s.layout.Uniform(name)
	if f.Size < minSize || f.Offset+minSize > len(s.block) {
		s.log().WithFields(logrus.Fields{"uniform": name, "type": f.Type}).Warn("uniform type mismatch")
		return graphics.UniformField{}, false
	}
	return f, true
}

func (s *shaderProgram) putWords(offset int, words ...uint32) {
	for i, w := range words {
		binary.LittleEndian.PutUint32(s.block[offset+i*4:], w)
	}
}

func (s *shaderProgram) SetFloat(name string, v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.field(name, 4); ok {
		s.putWords(f.Offset, math.Float32bits(v))
	}
}

func (s *shaderProgram) SetInt(name string, v int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layout.TextureSlot(name) >= 0 {
		// sampler unit assignment; bindings come from the layout
		return
	}
	if f, ok := s.field(name, 4); ok {
		s.putWords(f.Offset, uint32(v))
	}
}

func (s *shaderProgram) SetBool(name string, v bool) {
	var i int32
	if v {
		i = 1
	}
	s.SetInt(name, i)
}

func (s *shaderProgram) SetVec2(name string, x, y float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.field(name, 8); ok {
		s.putWords(f.Offset, math.Float32bits(x), math.Float32bits(y))
	}
}

func (s *shaderProgram) SetVec3(name string, x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.field(name, 12); ok {
		s.putWords(f.Offset, math.Float32bits(x), math.Float32bits(y), math.Float32bits(z))
	}
}

func (s *shaderProgram) SetVec4(name string, x, y, z, w float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.field(name, 16); ok {
		s.putWords(f.Offset, math.Float32bits(x), math.Float32bits(y), math.Float32bits(z), math.Float32bits(w))
	}
}

func (s *shaderProgram) SetMat3(name string, m [9]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.field(name, 48)
	if !ok {
		return
	}
	for col := 0; col < 3; col++ {
		s.putWords(f.Offset+col*16,
			math.Float32bits(m[col*3]),
			math.Float32bits(m[col*3+1]),
			math.Float32bits(m[col*3+2]),
			0,
		)
	}
}

func (s *shaderProgram) SetMat4(name string, m [16]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.field(name, 64)
	if !ok {
		return
	}
	for i, v := range m {
		s.putWords(f.Offset+i*4, math.Float32bits(v))
	}
}

func (s *shaderProgram) SetFloatArray(name string, values []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.field(name, 4)
	if !ok {
		return
	}
	stride := f.Stride
	if stride == 0 {
		stride = 4
	}
	for i, v := range values {
		off := f.Offset + i*stride
		if off+4 > f.Offset+f.Size {
			break
		}
		s.putWords(off, math.Float32bits(v))
	}
}

func (s *shaderProgram) SetTexture(name string, unit int, tex graphics.TextureHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.layout.TextureSlot(name)
	if slot < 0 {
		if _, warned := s.locations[name]; !warned {
			s.locations[name] = -1
			s.log().WithFields(logrus.Fields{"texture": name, "unit": unit}).Warn("texture not found")
		}
		return
	}
	s.textures[slot] = tex
}

func (s *shaderProgram) UniformBlock() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.block...)
}

func (s *shaderProgram) TextureBindings() map[int]graphics.TextureHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.textures)
}

func (s *shaderProgram) ClearTextures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.textures)
}

func (s *shaderProgram) Draw(quad graphics.QuadHandle) error {
	s.mu.Lock()
	handle := s.handle
	block := append([]byte(nil), s.block...)
	textures := maps.Clone(s.textures)
	s.mu.Unlock()

	if handle == 0 {
		return ErrProgramNotLinked
	}
	return s.ctx.DrawQuad(handle, quad, block, textures)
}

func (s *shaderProgram) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
}

func (s *shaderProgram) release() {
	if s.handle != 0 {
		s.ctx.DeleteProgram(s.handle)
	}
	s.handle = 0
	s.layout = graphics.ProgramLayout{UniformBinding: -1}
	s.block = nil
	clear(s.locations)
	clear(s.textures)
}
