package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgslVertexFormatMap maps WGSL vertex input types to their wgpu vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {wgpu.VertexFormatFloat32, 4},
	"vec2f":     {wgpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {wgpu.VertexFormatFloat32x2, 8},
	"vec3f":     {wgpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {wgpu.VertexFormatFloat32x3, 12},
	"vec4f":     {wgpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {wgpu.VertexFormatFloat32x4, 16},
	"u32":       {wgpu.VertexFormatUint32, 4},
	"i32":       {wgpu.VertexFormatSint32, 4},
}

// wgslSampledTextureMap maps WGSL sampled texture base names to their view dimension and multisampled flag
var wgslSampledTextureMap = map[string]sampledTextureInfo{
	"texture_1d":              {wgpu.TextureViewDimension1D, false},
	"texture_2d":              {wgpu.TextureViewDimension2D, false},
	"texture_2d_array":        {wgpu.TextureViewDimension2DArray, false},
	"texture_3d":              {wgpu.TextureViewDimension3D, false},
	"texture_multisampled_2d": {wgpu.TextureViewDimension2D, true},
}

// wgslSampleTypeMap maps WGSL scalar type parameters to their wgpu texture sample type
var wgslSampleTypeMap = map[string]wgpu.TextureSampleType{
	"f32": wgpu.TextureSampleTypeFloat,
	"i32": wgpu.TextureSampleTypeSint,
	"u32": wgpu.TextureSampleTypeUint,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field: optional attributes, name, colon, type.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name and type
	// from declarations like: @group(0) @binding(0) var<uniform> params: Params;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// ParseProgramLayout extracts the resource interface of a vertex/fragment pair: the vertex buffer
// layout of the vertex stage, the uniform block members with their byte offsets, the sampled textures
// and samplers, and the merged bind group layout descriptors.
//
// Effect programs keep every resource in bind group 0 and at most one uniform block, so both are enforced.
//
// Parameters:
//   - vertexSource: the pre-processed WGSL vertex stage
//   - fragmentSource: the pre-processed WGSL fragment stage
//
// Returns:
//   - graphics.ProgramLayout: the extracted layout
//   - error: error if a declaration cannot be laid out
func ParseProgramLayout(vertexSource, fragmentSource string) (graphics.ProgramLayout, error) {
	layout := graphics.ProgramLayout{UniformBinding: -1}
	layout.VertexLayouts = parseVertexLayouts(vertexSource)

	vertexDecls := parseResources(vertexSource)
	fragmentDecls := parseResources(fragmentSource)

	vertexGroups := buildBindGroupLayouts(vertexDecls, wgpu.ShaderStageVertex)
	fragmentGroups := buildBindGroupLayouts(fragmentDecls, wgpu.ShaderStageFragment)
	merged := mergeBindGroupLayouts(vertexGroups, fragmentGroups)
	for g := range merged {
		if g != 0 {
			return graphics.ProgramLayout{}, fmt.Errorf("resources must be declared in @group(0), found @group(%d)", g)
		}
	}
	if desc, ok := merged[0]; ok {
		layout.BindGroupLayouts = []wgpu.BindGroupLayoutDescriptor{desc}
	}

	seen := make(map[int]string)
	type declSource struct {
		decl   resourceDecl
		source string
	}
	all := make([]declSource, 0, len(vertexDecls)+len(fragmentDecls))
	for _, d := range vertexDecls {
		all = append(all, declSource{d, vertexSource})
	}
	for _, d := range fragmentDecls {
		all = append(all, declSource{d, fragmentSource})
	}

	for _, ds := range all {
		d := ds.decl
		if prev, ok := seen[d.binding]; ok {
			if prev != d.name {
				return graphics.ProgramLayout{}, fmt.Errorf("binding %d declared as both %q and %q", d.binding, prev, d.name)
			}
			continue
		}
		seen[d.binding] = d.name

		switch {
		case d.addressSpace == "uniform":
			if layout.UniformBinding >= 0 {
				return graphics.ProgramLayout{}, fmt.Errorf("more than one uniform block (%q at binding %d)", d.name, d.binding)
			}
			fields, size, err := uniformFields(d.typeName, ds.source)
			if err != nil {
				return graphics.ProgramLayout{}, fmt.Errorf("uniform block %q: %w", d.name, err)
			}
			layout.UniformBinding = d.binding
			layout.UniformSize = size
			layout.Uniforms = fields
		case d.addressSpace != "":
			return graphics.ProgramLayout{}, fmt.Errorf("unsupported address space %q for %q", d.addressSpace, d.name)
		case d.typeName == "sampler" || d.typeName == "sampler_comparison":
			layout.SamplerBindings = append(layout.SamplerBindings, d.binding)
		case strings.HasPrefix(d.typeName, "texture_"):
			layout.Textures = append(layout.Textures, graphics.TextureBinding{Name: d.name, Binding: d.binding})
		default:
			return graphics.ProgramLayout{}, fmt.Errorf("unsupported resource type %q for %q", d.typeName, d.name)
		}
	}

	sort.Ints(layout.SamplerBindings)
	return layout, nil
}

// uniformFields lays out the members of the struct bound as the uniform block.
func uniformFields(typeName, source string) ([]graphics.UniformField, int, error) {
	structs := parseStructBlocks(stripComments(source))
	known := computeStructSizes(structs)

	var target *parsedStruct
	for i := range structs {
		if structs[i].name == typeName {
			target = &structs[i]
			break
		}
	}
	if target == nil {
		return nil, 0, fmt.Errorf("struct %q is not declared", typeName)
	}

	fields, total, ok := computeFieldOffsets(*target, known)
	if !ok {
		return nil, 0, fmt.Errorf("struct %q has a member that cannot be laid out", typeName)
	}
	return fields, total, nil
}

// parseVertexLayouts extracts vertex buffer layouts from WGSL source code.
// It finds all structs that are pure vertex inputs (have @location attributes but no @builtin fields)
// and converts them into wgpu.VertexBufferLayout entries, one buffer slot per struct in declaration order.
// Structs containing unrecognized WGSL types are skipped.
//
// Parameters:
//   - source: the raw WGSL source code string
//
// Returns:
//   - []wgpu.VertexBufferLayout: vertex layouts in buffer slot order
func parseVertexLayouts(source string) []wgpu.VertexBufferLayout {
	var result []wgpu.VertexBufferLayout
	for _, ps := range parseStructBlocks(stripComments(source)) {
		if !isVertexInputStruct(ps) {
			continue
		}
		if layout, ok := buildVertexBufferLayout(ps); ok {
			result = append(result, layout)
		}
	}
	return result
}

// parseResources returns every @group/@binding variable in declaration order.
func parseResources(source string) []resourceDecl {
	cleaned := stripComments(source)
	matches := bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1)
	decls := make([]resourceDecl, 0, len(matches))
	for _, m := range matches {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		decls = append(decls, resourceDecl{
			group:        group,
			binding:      binding,
			addressSpace: strings.TrimSpace(m[3]),
			name:         strings.TrimSpace(m[4]),
			typeName:     strings.TrimSpace(m[5]),
		})
	}
	return decls
}

// buildBindGroupLayouts converts resource declarations into layout descriptors keyed by group index.
func buildBindGroupLayouts(decls []resourceDecl, visibility wgpu.ShaderStage) map[int]wgpu.BindGroupLayoutDescriptor {
	groups := make(map[int][]wgpu.BindGroupLayoutEntry)
	for _, d := range decls {
		groups[d.group] = append(groups[d.group], classifyResource(uint32(d.binding), visibility, d.addressSpace, d.typeName))
	}

	result := make(map[int]wgpu.BindGroupLayoutDescriptor, len(groups))
	for g, entries := range groups {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		result[g] = wgpu.BindGroupLayoutDescriptor{Entries: entries}
	}
	return result
}

// mergeBindGroupLayouts combines the per-stage layouts into one descriptor per group.
// A binding used by both stages keeps one entry with the union of both visibilities.
//
// Parameters:
//   - vertexLayouts: layouts parsed from the vertex stage
//   - fragmentLayouts: layouts parsed from the fragment stage
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged layouts keyed by group index
func mergeBindGroupLayouts(vertexLayouts, fragmentLayouts map[int]wgpu.BindGroupLayoutDescriptor) map[int]wgpu.BindGroupLayoutDescriptor {
	merged := make(map[int]wgpu.BindGroupLayoutDescriptor, len(vertexLayouts)+len(fragmentLayouts))
	byGroup := make(map[int]map[uint32]wgpu.BindGroupLayoutEntry)

	add := func(layouts map[int]wgpu.BindGroupLayoutDescriptor) {
		for g, desc := range layouts {
			if byGroup[g] == nil {
				byGroup[g] = make(map[uint32]wgpu.BindGroupLayoutEntry)
			}
			for _, e := range desc.Entries {
				if existing, ok := byGroup[g][e.Binding]; ok {
					existing.Visibility |= e.Visibility
					byGroup[g][e.Binding] = existing
					continue
				}
				byGroup[g][e.Binding] = e
			}
		}
	}
	add(vertexLayouts)
	add(fragmentLayouts)

	for g, entryMap := range byGroup {
		entries := make([]wgpu.BindGroupLayoutEntry, 0, len(entryMap))
		for _, e := range entryMap {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		merged[g] = wgpu.BindGroupLayoutDescriptor{Entries: entries}
	}
	return merged
}

// parseEntryPoint extracts the entry point function name for the given stage.
// Returns an empty string if no matching entry point attribute is found or the stage has no entry point attribute in WGSL.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - stage: the stage to search for
//
// Returns:
//   - string: the entry point function name, or empty string if not found
func parseEntryPoint(source string, stage graphics.ShaderStage) string {
	var re *regexp.Regexp
	switch stage {
	case graphics.StageVertex:
		re = vertexEntryRegex
	case graphics.StageFragment:
		re = fragmentEntryRegex
	default:
		return ""
	}

	if match := re.FindStringSubmatch(stripComments(source)); match != nil {
		return match[1]
	}
	return ""
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}
	return structs
}

// parseStructFields parses the body of a struct block into individual fields.
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{location: -1}
		field.isBuiltin = builtinRegex.MatchString(line)
		if m := locationRegex.FindStringSubmatch(line); m != nil {
			if loc, err := strconv.Atoi(m[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}
	return fields
}
