package effect

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-fx/engine/shader"
)

// Category groups effect kinds for presentation in a control surface.
type Category int

const (
	CategoryColor Category = iota
	CategoryDistortion
	CategoryBlur
	CategoryLight
	CategoryArtistic
	CategoryTemporal
	CategoryComposite
)

func (c Category) String() string {
	switch c {
	case CategoryColor:
		return "Color"
	case CategoryDistortion:
		return "Distortion"
	case CategoryBlur:
		return "Blur"
	case CategoryLight:
		return "Light"
	case CategoryArtistic:
		return "Artistic"
	case CategoryTemporal:
		return "Temporal"
	case CategoryComposite:
		return "Composite"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// FrameState is the snapshot of an effect handed to its uniform hook.
type FrameState struct {
	// Parameters holds the current value of every defined parameter by name.
	Parameters map[string]float32
	Intensity  float32
	Time       float32
	Width      int
	Height     int
	// HasAux reports whether an auxiliary texture (LUT, curve or bloom) is attached.
	HasAux bool
}

// UniformHook translates control-facing parameter values into the uniforms the kind's shader expects.
// It runs after parameters are written verbatim and before the shared intensity uniform.
type UniformHook func(program shader.ShaderProgram, state FrameState)

// Kind is one effect variant: its parameters, its uniform translation and its program source.
type Kind struct {
	Name     string
	Category Category
	// Parameters are defined on every effect created from the kind, in order.
	Parameters []ParameterDefinition
	// Hook may be nil for kinds without custom uniforms.
	Hook UniformHook
	// AuxTexture names the optional second texture the shader samples, or is empty.
	AuxTexture string
	Source     shader.ShaderSource
}

// Kinds returns the built-in kinds in registration order.
//
// Returns:
//   - []Kind: a copy of the built-in kinds
func Kinds() []Kind {
	return slices.Clone(builtinKinds)
}

// KindByName looks up a built-in kind.
//
// Parameters:
//   - name: the kind name, e.g. "GaussianBlur"
//
// Returns:
//   - Kind: the kind
//   - bool: false if no built-in kind has the name
func KindByName(name string) (Kind, bool) {
	for _, k := range builtinKinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}

// KindNames returns the names of the built-in kinds in registration order.
func KindNames() []string {
	names := make([]string, len(builtinKinds))
	for i, k := range builtinKinds {
		names[i] = k.Name
	}
	return names
}
