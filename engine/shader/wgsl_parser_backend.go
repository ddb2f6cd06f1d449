package shader

import (
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgslPrimitiveLayoutMap maps the host-shareable WGSL types that may appear in a uniform block
// to their byte size and alignment.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayoutMap = map[string]wgslTypeLayout{
	"f32": {size: 4, align: 4},
	"i32": {size: 4, align: 4},
	"u32": {size: 4, align: 4},

	"vec2<f32>": {size: 8, align: 8},
	"vec2f":     {size: 8, align: 8},
	"vec3<f32>": {size: 12, align: 16},
	"vec3f":     {size: 12, align: 16},
	"vec4<f32>": {size: 16, align: 16},
	"vec4f":     {size: 16, align: 16},

	"vec2<i32>": {size: 8, align: 8},
	"vec2i":     {size: 8, align: 8},
	"vec4<i32>": {size: 16, align: 16},
	"vec4i":     {size: 16, align: 16},

	// matCxR<f32>: C columns of vecR<f32>, each column aligned like vecR
	"mat2x2<f32>": {size: 16, align: 8},
	"mat3x3<f32>": {size: 48, align: 16},
	"mat4x4<f32>": {size: 64, align: 16},
	"mat2x2f":     {size: 16, align: 8},
	"mat3x3f":     {size: 48, align: 16},
	"mat4x4f":     {size: 64, align: 16},
}

// uniformArrayAlign is the minimum element stride and alignment of arrays and nested structs in the uniform address space.
const uniformArrayAlign = 16

// roundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
//
// Parameters:
//   - alignment: the required alignment (must be a power of two)
//   - value: the value to align
//
// Returns:
//   - uint64: value rounded up to the next multiple of alignment
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves a WGSL type name to its uniform-space size and alignment using primitives
// and previously computed struct layouts. Only fixed-size arrays are accepted since runtime-sized arrays
// cannot live in a uniform block.
//
// Parameters:
//   - typeName: the WGSL type name to resolve, e.g. "f32", "Params", "array<vec4<f32>, 4>"
//   - knownTypes: a map of already-resolved struct names to their layouts
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: false for runtime-sized arrays or unknown types
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		layout.align = max(layout.align, uniformArrayAlign)
		return layout, true
	}

	base, params := splitTypeParams(typeName)
	if base != "array" {
		return wgslTypeLayout{}, false
	}
	parts := splitAtTopLevelCommas(params)
	if len(parts) != 2 {
		return wgslTypeLayout{}, false
	}
	elem, ok := resolveTypeLayout(strings.TrimSpace(parts[0]), knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || count == 0 {
		return wgslTypeLayout{}, false
	}

	stride := roundUpAlign(uniformArrayAlign, roundUpAlign(elem.align, elem.size))
	return wgslTypeLayout{
		size:   count * stride,
		align:  max(elem.align, uniformArrayAlign),
		stride: stride,
	}, true
}

// computeFieldOffsets places each member of a struct at its next aligned offset and returns the members
// with their offsets together with the struct size rounded up to its alignment.
//
// Parameters:
//   - ps: the parsed struct to lay out
//   - knownTypes: a map of already-resolved struct names to their layouts
//
// Returns:
//   - []graphics.UniformField: the members in declaration order
//   - int: the total struct size in bytes
//   - bool: false if any member type could not be resolved
func computeFieldOffsets(ps parsedStruct, knownTypes map[string]wgslTypeLayout) ([]graphics.UniformField, int, bool) {
	fields := make([]graphics.UniformField, 0, len(ps.fields))
	offset := uint64(0)
	maxAlign := uint64(1)

	for _, f := range ps.fields {
		if f.isBuiltin {
			continue
		}
		layout, ok := resolveTypeLayout(f.typeName, knownTypes)
		if !ok {
			return nil, 0, false
		}
		offset = roundUpAlign(layout.align, offset)
		fields = append(fields, graphics.UniformField{
			Name:   f.name,
			Type:   f.typeName,
			Offset: int(offset),
			Size:   int(layout.size),
			Stride: int(layout.stride),
		})
		offset += layout.size
		maxAlign = max(maxAlign, layout.align)
	}

	return fields, int(roundUpAlign(maxAlign, offset)), true
}

// computeStructSizes computes the layout of every parsed struct, resolving structs that nest other
// structs over repeated passes until no further progress is made.
//
// Parameters:
//   - structs: all parsed struct blocks from the WGSL source
//
// Returns:
//   - map[string]wgslTypeLayout: a map from struct name to computed layout
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	remaining := append([]parsedStruct(nil), structs...)

	for len(remaining) > 0 {
		next := remaining[:0]
		for _, ps := range remaining {
			fields, size, ok := computeFieldOffsets(ps, resolved)
			if !ok {
				next = append(next, ps)
				continue
			}
			align := uint64(1)
			for _, f := range fields {
				if l, ok := resolveTypeLayout(f.Type, resolved); ok {
					align = max(align, l.align)
				}
			}
			resolved[ps.name] = wgslTypeLayout{size: uint64(size), align: align}
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}
	return resolved
}

// classifyResource creates a wgpu.BindGroupLayoutEntry from a parsed WGSL resource declaration.
//
// Parameters:
//   - binding: the binding index from @binding(N)
//   - visibility: the shader stage visibility flag
//   - addressSpace: the address space qualifier, empty for handle types
//   - typeName: the WGSL type string (e.g. "Params", "texture_2d<f32>", "sampler")
//
// Returns:
//   - wgpu.BindGroupLayoutEntry: a populated layout entry for the resource
func classifyResource(binding uint32, visibility wgpu.ShaderStage, addressSpace, typeName string) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
	}

	switch {
	case addressSpace == "uniform":
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
	case strings.HasPrefix(addressSpace, "storage"):
		if strings.Contains(addressSpace, "read_write") {
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		} else {
			entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		}
	case typeName == "sampler":
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case typeName == "sampler_comparison":
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	case strings.HasPrefix(typeName, "texture_"):
		base, param := splitTypeParams(typeName)
		if info, ok := wgslSampledTextureMap[base]; ok {
			entry.Texture.ViewDimension = info.viewDimension
			entry.Texture.Multisampled = info.multisampled
		}
		if st, ok := wgslSampleTypeMap[param]; ok {
			entry.Texture.SampleType = st
		}
	}
	return entry
}

// splitTypeParams splits a WGSL parameterized type into its base name and parameter string.
// For "texture_2d<f32>" returns ("texture_2d", "f32"); for "sampler" returns ("sampler", "").
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

// stripComments removes both single-line (//) and nested block (/* */) comments from WGSL source.
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

func stripLineComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	for line := range strings.SplitSeq(source, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			switch {
			case source[i] == '/' && source[i+1] == '*':
				depth++
				i++
				continue
			case source[i] == '*' && source[i+1] == '/' && depth > 0:
				depth--
				i++
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// isVertexInputStruct reports whether a struct has at least one @location field and no @builtin fields,
// which separates vertex inputs from the varyings passed to the fragment stage.
func isVertexInputStruct(ps parsedStruct) bool {
	hasLocation := false
	for _, f := range ps.fields {
		if f.isBuiltin {
			return false
		}
		if f.location >= 0 {
			hasLocation = true
		}
	}
	return hasLocation
}

// buildVertexBufferLayout converts a vertex input struct into a tightly packed vertex buffer layout.
// Returns false if any field has a type without a vertex format.
func buildVertexBufferLayout(ps parsedStruct) (wgpu.VertexBufferLayout, bool) {
	attrs := make([]wgpu.VertexAttribute, 0, len(ps.fields))
	var offset uint64

	for _, f := range ps.fields {
		info, ok := wgslVertexFormatMap[f.typeName]
		if !ok {
			return wgpu.VertexBufferLayout{}, false
		}
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         info.format,
			Offset:         offset,
			ShaderLocation: uint32(f.location),
		})
		offset += info.size
	}

	return wgpu.VertexBufferLayout{
		ArrayStride: offset,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attrs,
	}, true
}

// splitAtTopLevelCommas splits a string at commas that are not nested inside angle brackets,
// so "array<vec4<f32>, 4>" stays one piece.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
