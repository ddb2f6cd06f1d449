package effect

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/shader"
	"github.com/sirupsen/logrus"
)

// gpuEffect is the implementation of the Effect interface.
type gpuEffect struct {
	mu sync.Mutex

	name   string
	kind   Kind
	arena  Arena
	logger logrus.FieldLogger

	program   shader.ShaderProgram
	params    *parameterSet
	enabled   bool
	intensity float32
	time      float32
	aux       graphics.TextureHandle
	err       error
}

// Effect is one shader pass of an effect chain plus its tunable parameters.
//
// All methods are safe for concurrent use: a control goroutine may change parameters while the render
// goroutine applies the effect. Apply works on a snapshot taken under the effect's lock and holds the
// arena's DrawLock while it writes the shared program, so concurrent passes over one arena run one at a time.
type Effect interface {
	// Name returns the unique name of the effect within a chain.
	Name() string

	// Kind returns the kind the effect was created from.
	Kind() Kind

	// Category returns the kind's category.
	Category() Category

	Enabled() bool
	SetEnabled(enabled bool)

	// Intensity returns the blend factor between the input and the fully applied effect.
	Intensity() float32

	// SetIntensity sets the blend factor, clamped to [0,1]. The "intensity" parameter follows it.
	SetIntensity(intensity float32)

	// SetTime sets the animation time in seconds passed to time-based kinds.
	SetTime(t float32)

	// SetAuxTexture attaches the kind's auxiliary texture (LUT, curve or bloom). 0 detaches it.
	SetAuxTexture(tex graphics.TextureHandle)

	// AuxTexture returns the attached auxiliary texture, or 0.
	AuxTexture() graphics.TextureHandle

	// DefineParameter registers a parameter and sets its value to the default.
	//
	// Parameters:
	//   - name: the control-facing name
	//   - uniformName: the shader uniform the value is written to
	//   - def: the default value
	//   - min: the lower bound
	//   - max: the upper bound
	//   - typ: how the value is written to the shader
	DefineParameter(name, uniformName string, def, min, max float32, typ ParameterType)

	// SetParameter clamps value into the parameter's range and stores it.
	//
	// Parameters:
	//   - name: the parameter name
	//   - value: the requested value
	//
	// Returns:
	//   - bool: false with a warning, leaving every value unchanged, if name is not defined
	SetParameter(name string, value float32) bool

	// Parameter returns the current value, or 0 if name is not defined.
	Parameter(name string) float32

	HasParameter(name string) bool

	// ParameterDefinitions returns the definitions in declaration order.
	ParameterDefinitions() []ParameterDefinition

	// ParameterRange returns min, max and default of a parameter, or (0, 1, 0.5) if it is not defined.
	ParameterRange(name string) (float32, float32, float32)

	// Parameters returns a copy of the current values by name.
	Parameters() map[string]float32

	// ResetParameters restores every parameter and the intensity to their defaults.
	ResetParameters()

	// Apply renders input through the effect into output.
	//
	// Parameters:
	//   - input: the texture sampled as uTexture
	//   - output: the framebuffer rendered into
	//   - width: the viewport width in pixels
	//   - height: the viewport height in pixels
	//
	// Returns:
	//   - bool: true if the effect drew or is disabled; false if the program is unavailable or the draw failed
	Apply(input graphics.TextureHandle, output graphics.FramebufferHandle, width, height int) bool

	// IsValid reports whether the effect's program linked.
	IsValid() bool

	// Err returns the error recorded by the most recent failed call, or nil.
	Err() error

	// DebugInfo returns a multi-line description of the effect state.
	DebugInfo() string
}

var _ Effect = &gpuEffect{}

// NewEffect creates an effect of kind whose program is compiled into, or fetched from, arena.
// An effect whose program fails to compile is still returned; it reports IsValid false and Apply fails.
//
// Parameters:
//   - kind: the effect kind
//   - arena: the shared resources of the renderer
//   - options: functional options
//
// Returns:
//   - Effect: the new effect
func NewEffect(kind Kind, arena Arena, options ...EffectBuilderOption) Effect {
	e := &gpuEffect{
		name:      kind.Name,
		kind:      kind,
		arena:     arena,
		logger:    logrus.StandardLogger(),
		params:    newParameterSet(),
		enabled:   true,
		intensity: 1,
	}
	for _, opt := range options {
		opt(e)
	}
	for _, def := range kind.Parameters {
		e.define(def)
	}
	if arena != nil {
		e.program = arena.Program(kind)
	}
	if e.program == nil {
		e.err = &EffectUnavailableError{Effect: e.name}
		e.log("NewEffect").Warn("effect program did not compile")
	}
	return e
}

func (e *gpuEffect) log(function string) *logrus.Entry {
	return e.logger.WithFields(logrus.Fields{
		"function": function,
		"effect":   e.name,
	})
}

func (e *gpuEffect) Name() string {
	return e.name
}

func (e *gpuEffect) Kind() Kind {
	return e.kind
}

func (e *gpuEffect) Category() Category {
	return e.kind.Category
}

func (e *gpuEffect) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

func (e *gpuEffect) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

func (e *gpuEffect) Intensity() float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.intensity
}

func (e *gpuEffect) SetIntensity(intensity float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setIntensity(intensity)
}

// setIntensity clamps through the intensity definition when the kind has one, so NaN restores its default.
func (e *gpuEffect) setIntensity(v float32) {
	if stored, ok := e.params.set(IntensityParameter, v); ok {
		e.intensity = clamp01(stored)
		return
	}
	e.intensity = clamp01(v)
}

func (e *gpuEffect) SetTime(t float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.time = t
}

func (e *gpuEffect) SetAuxTexture(tex graphics.TextureHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.kind.AuxTexture == "" && tex != 0 {
		e.log("SetAuxTexture").Warn("effect kind samples no auxiliary texture")
	}
	e.aux = tex
}

func (e *gpuEffect) AuxTexture() graphics.TextureHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aux
}

func (e *gpuEffect) DefineParameter(name, uniformName string, def, min, max float32, typ ParameterType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.define(ParameterDefinition{
		Name:        name,
		UniformName: uniformName,
		Default:     def,
		Min:         min,
		Max:         max,
		Type:        typ,
	})
}

func (e *gpuEffect) define(def ParameterDefinition) {
	e.params.define(def)
	if def.Name == IntensityParameter {
		e.intensity = clamp01(e.params.get(IntensityParameter))
	}
}

func (e *gpuEffect) SetParameter(name string, value float32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored, ok := e.params.set(name, value)
	if !ok {
		e.err = &ParameterError{Effect: e.name, Parameter: name}
		e.log("SetParameter").WithField("parameter", name).Warn("parameter not found")
		return false
	}
	if name == IntensityParameter {
		e.intensity = clamp01(stored)
	}
	return true
}

func (e *gpuEffect) Parameter(name string) float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.get(name)
}

func (e *gpuEffect) HasParameter(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.has(name)
}

func (e *gpuEffect) ParameterDefinitions() []ParameterDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.definitions()
}

func (e *gpuEffect) ParameterRange(name string) (float32, float32, float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.rangeOf(name)
}

func (e *gpuEffect) Parameters() map[string]float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.snapshot()
}

func (e *gpuEffect) ResetParameters() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.params.reset()
	if e.params.has(IntensityParameter) {
		e.intensity = clamp01(e.params.get(IntensityParameter))
	} else {
		e.intensity = 1
	}
	e.log("ResetParameters").Debug("parameters reset")
}

func (e *gpuEffect) IsValid() bool {
	return e.program != nil && e.program.IsValid()
}

func (e *gpuEffect) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *gpuEffect) fail(function string, err error) bool {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	e.log(function).WithError(err).Error("effect apply failed")
	return false
}

func (e *gpuEffect) Apply(input graphics.TextureHandle, output graphics.FramebufferHandle, width, height int) bool {
	e.mu.Lock()
	enabled := e.enabled
	state := FrameState{
		Parameters: e.params.snapshot(),
		Intensity:  e.intensity,
		Time:       e.time,
		Width:      width,
		Height:     height,
		HasAux:     e.aux != 0,
	}
	aux := e.aux
	defs := e.params.definitions()
	e.mu.Unlock()

	if !enabled {
		return true
	}
	if !e.IsValid() {
		var cause error
		if e.program != nil {
			cause = e.program.Err()
		}
		return e.fail("Apply", &EffectUnavailableError{Effect: e.name, Err: cause})
	}

	ctx := e.arena.Context()
	quad, err := e.arena.Quad()
	if err != nil {
		return e.fail("Apply", err)
	}

	draw := e.arena.DrawLock()
	draw.Lock()
	defer draw.Unlock()

	ctx.BindFramebuffer(output)
	ctx.SetViewport(0, 0, width, height)
	defer func() {
		e.program.ClearTextures()
		ctx.BindFramebuffer(graphics.DefaultFramebuffer)
	}()

	e.program.ClearTextures()
	e.program.SetTexture("uTexture", 0, input)
	if e.kind.AuxTexture != "" {
		if aux == 0 {
			aux = e.arena.BlankTexture()
		}
		e.program.SetTexture(e.kind.AuxTexture, 1, aux)
	}

	for _, def := range defs {
		writeParameter(e.program, def, state.Parameters[def.Name])
	}
	if e.kind.Hook != nil {
		e.kind.Hook(e.program, state)
	}
	e.program.SetFloat("uIntensity", state.Intensity)

	if err := e.program.Draw(quad); err != nil {
		return e.fail("Apply", fmt.Errorf("draw %s: %w", e.name, err))
	}
	return true
}

// writeParameter stores a parameter value in its uniform according to the parameter type.
func writeParameter(p shader.ShaderProgram, def ParameterDefinition, v float32) {
	if def.UniformName == "" {
		return
	}
	switch def.Type {
	case ParameterInt:
		p.SetInt(def.UniformName, int32(v+0.5))
	case ParameterBool:
		p.SetBool(def.UniformName, v >= 0.5)
	default:
		p.SetFloat(def.UniformName, v)
	}
}

func (e *gpuEffect) DebugInfo() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Effect: %s (%s, %s)\n", e.name, e.kind.Name, e.kind.Category)
	fmt.Fprintf(&b, "  Available: %s\n", yesNo(e.program != nil && e.program.IsValid()))
	fmt.Fprintf(&b, "  Enabled: %s\n", yesNo(e.enabled))
	fmt.Fprintf(&b, "  Intensity: %.3f\n", e.intensity)
	fmt.Fprintf(&b, "  Parameters: %d\n", len(e.params.order))
	for _, def := range e.params.definitions() {
		fmt.Fprintf(&b, "    - %s: %.3f\n", def.Name, e.params.get(def.Name))
	}
	return b.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
