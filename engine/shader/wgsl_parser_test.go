package shader

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expand(t *testing.T, src string) string {
	t.Helper()
	out, err := NewPreProcessor().Process(src)
	require.NoError(t, err)
	return out
}

func TestParseProgramLayoutUniformOffsets(t *testing.T) {
	layout, err := ParseProgramLayout(expand(t, testVertex), expand(t, testFragment))
	require.NoError(t, err)

	assert.Equal(t, 0, layout.UniformBinding)
	assert.Equal(t, 112, layout.UniformSize)

	want := []graphics.UniformField{
		{Name: "uIntensity", Type: "f32", Offset: 0, Size: 4},
		{Name: "uTexelSize", Type: "vec2<f32>", Offset: 8, Size: 8},
		{Name: "uTint", Type: "vec3<f32>", Offset: 16, Size: 12},
		{Name: "uLevels", Type: "i32", Offset: 28, Size: 4},
		{Name: "uColorMatrix", Type: "mat3x3<f32>", Offset: 32, Size: 48},
		{Name: "uWeights", Type: "array<vec4<f32>, 2>", Offset: 80, Size: 32, Stride: 16},
	}
	assert.Equal(t, want, layout.Uniforms)
}

func TestParseProgramLayoutResources(t *testing.T) {
	layout, err := ParseProgramLayout(expand(t, testVertex), expand(t, testFragment))
	require.NoError(t, err)

	assert.Equal(t, []graphics.TextureBinding{{Name: "uTexture", Binding: 1}}, layout.Textures)
	assert.Equal(t, []int{2}, layout.SamplerBindings)
	assert.Equal(t, 1, layout.TextureSlot("uTexture"))
	assert.Equal(t, -1, layout.TextureSlot("uLut"))

	require.Len(t, layout.BindGroupLayouts, 1)
	entries := layout.BindGroupLayouts[0].Entries
	require.Len(t, entries, 3)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, entries[0].Buffer.Type)
	assert.Equal(t, wgpu.TextureSampleTypeFloat, entries[1].Texture.SampleType)
	assert.Equal(t, wgpu.TextureViewDimension2D, entries[1].Texture.ViewDimension)
	assert.Equal(t, wgpu.SamplerBindingTypeFiltering, entries[2].Sampler.Type)
	for _, e := range entries {
		assert.Equal(t, wgpu.ShaderStageFragment, e.Visibility)
	}
}

func TestParseProgramLayoutVertexBuffers(t *testing.T) {
	layout, err := ParseProgramLayout(expand(t, testVertex), expand(t, testFragment))
	require.NoError(t, err)

	require.Len(t, layout.VertexLayouts, 1)
	vl := layout.VertexLayouts[0]
	assert.Equal(t, uint64(16), vl.ArrayStride)
	require.Len(t, vl.Attributes, 2)
	assert.Equal(t, wgpu.VertexFormatFloat32x2, vl.Attributes[0].Format)
	assert.Equal(t, uint32(0), vl.Attributes[0].ShaderLocation)
	assert.Equal(t, uint64(8), vl.Attributes[1].Offset)
	assert.Equal(t, uint32(1), vl.Attributes[1].ShaderLocation)
}

func TestParseProgramLayoutErrors(t *testing.T) {
	vertex := expand(t, testVertex)
	tests := []struct {
		name     string
		fragment string
		wantErr  string
	}{
		{
			name:     "second group",
			fragment: "@group(1) @binding(0) var uTexture: texture_2d<f32>;",
			wantErr:  "@group(1)",
		},
		{
			name: "two uniform blocks",
			fragment: `struct A { x: f32, };
@group(0) @binding(0) var<uniform> a: A;
@group(0) @binding(1) var<uniform> b: A;`,
			wantErr: "more than one uniform block",
		},
		{
			name:     "undeclared struct",
			fragment: "@group(0) @binding(0) var<uniform> params: Missing;",
			wantErr:  `struct "Missing" is not declared`,
		},
		{
			name:     "runtime array",
			fragment: "struct P { w: array<f32>, };\n@group(0) @binding(0) var<uniform> params: P;",
			wantErr:  "cannot be laid out",
		},
		{
			name:     "storage buffer",
			fragment: "struct P { w: f32, };\n@group(0) @binding(0) var<storage, read> params: P;",
			wantErr:  "unsupported address space",
		},
		{
			name:     "binding reused",
			fragment: "@group(0) @binding(0) var a: texture_2d<f32>;\n@group(0) @binding(0) var b: texture_2d<f32>;",
			wantErr:  "binding 0 declared as both",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProgramLayout(vertex, tt.fragment)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeBindGroupLayoutsUnionsVisibility(t *testing.T) {
	v := buildBindGroupLayouts(parseResources("@group(0) @binding(0) var<uniform> params: P;"), wgpu.ShaderStageVertex)
	f := buildBindGroupLayouts(parseResources(`@group(0) @binding(0) var<uniform> params: P;
@group(0) @binding(1) var uTexture: texture_2d<f32>;`), wgpu.ShaderStageFragment)

	merged := mergeBindGroupLayouts(v, f)
	require.Len(t, merged, 1)
	entries := merged[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, entries[0].Visibility)
	assert.Equal(t, wgpu.ShaderStageFragment, entries[1].Visibility)
}

func TestParseEntryPoint(t *testing.T) {
	src := "// @fragment fn commented() {}\n@fragment\nfn fs_main() {}\n@vertex fn vs_main() {}"
	assert.Equal(t, "fs_main", parseEntryPoint(src, graphics.StageFragment))
	assert.Equal(t, "vs_main", parseEntryPoint(src, graphics.StageVertex))
	assert.Equal(t, "", parseEntryPoint(src, graphics.StageGeometry))
	assert.Equal(t, "", parseEntryPoint("fn main() {}", graphics.StageVertex))
}

func TestResolveTypeLayoutNestedStruct(t *testing.T) {
	structs := parseStructBlocks(`struct Inner { a: f32, b: f32, };
struct Outer { x: f32, inner: Inner, y: f32, };`)
	known := computeStructSizes(structs)

	fields, size, ok := computeFieldOffsets(structs[1], known)
	require.True(t, ok)
	assert.Equal(t, 0, fields[0].Offset)
	assert.Equal(t, 16, fields[1].Offset)
	assert.Equal(t, 24, fields[2].Offset)
	assert.Equal(t, 32, size)
}

func TestStripComments(t *testing.T) {
	src := "a /* one /* nested */ still */ b // tail\nc"
	assert.Equal(t, "a  b \nc\n", stripComments(src))
}
