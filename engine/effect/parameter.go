package effect

import (
	"fmt"
)

// ParameterType describes how a parameter value is interpreted when it is written to the shader.
type ParameterType int

const (
	ParameterFloat ParameterType = iota
	ParameterInt
	ParameterBool
	ParameterColor
	ParameterAngle
)

func (t ParameterType) String() string {
	switch t {
	case ParameterFloat:
		return "float"
	case ParameterInt:
		return "int"
	case ParameterBool:
		return "bool"
	case ParameterColor:
		return "color"
	case ParameterAngle:
		return "angle"
	default:
		return fmt.Sprintf("ParameterType(%d)", int(t))
	}
}

// ParameterDefinition declares one tunable value of an effect.
type ParameterDefinition struct {
	Name        string
	UniformName string
	Default     float32
	Min         float32
	Max         float32
	Type        ParameterType
}

// Clamp limits v to [Min, Max]. NaN maps to the default.
func (d ParameterDefinition) Clamp(v float32) float32 {
	if v != v {
		v = d.Default
	}
	return min(max(v, d.Min), d.Max)
}

// IntensityParameter is the parameter name kept in sync with an effect's intensity.
const IntensityParameter = "intensity"

// default range reported for parameters an effect does not define
const (
	unknownRangeMin     float32 = 0
	unknownRangeMax     float32 = 1
	unknownRangeDefault float32 = 0.5
)

// parameterSet stores definitions in declaration order and the current value of each.
// It is not synchronized; the owning effect holds its lock.
type parameterSet struct {
	order  []string
	defs   map[string]ParameterDefinition
	values map[string]float32
}

func newParameterSet() *parameterSet {
	return &parameterSet{
		defs:   make(map[string]ParameterDefinition),
		values: make(map[string]float32),
	}
}

// define registers def and resets its value to the default. Redefining a name replaces the definition in place.
func (p *parameterSet) define(def ParameterDefinition) {
	if def.Min > def.Max {
		def.Min, def.Max = def.Max, def.Min
	}
	def.Default = def.Clamp(def.Default)
	if _, ok := p.defs[def.Name]; !ok {
		p.order = append(p.order, def.Name)
	}
	p.defs[def.Name] = def
	p.values[def.Name] = def.Default
}

func (p *parameterSet) set(name string, v float32) (float32, bool) {
	def, ok := p.defs[name]
	if !ok {
		return 0, false
	}
	v = def.Clamp(v)
	p.values[name] = v
	return v, true
}

func (p *parameterSet) get(name string) float32 {
	return p.values[name]
}

func (p *parameterSet) has(name string) bool {
	_, ok := p.defs[name]
	return ok
}

func (p *parameterSet) definitions() []ParameterDefinition {
	out := make([]ParameterDefinition, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.defs[name])
	}
	return out
}

func (p *parameterSet) rangeOf(name string) (float32, float32, float32) {
	def, ok := p.defs[name]
	if !ok {
		return unknownRangeMin, unknownRangeMax, unknownRangeDefault
	}
	return def.Min, def.Max, def.Default
}

func (p *parameterSet) snapshot() map[string]float32 {
	out := make(map[string]float32, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

func (p *parameterSet) reset() {
	for name, def := range p.defs {
		p.values[name] = def.Default
	}
}
