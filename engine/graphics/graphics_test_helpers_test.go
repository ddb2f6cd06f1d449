package graphics

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testVertexSource = `
struct VertexOut {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@location(0) pos: vec2<f32>, @location(1) uv: vec2<f32>) -> VertexOut {
    var out: VertexOut;
    out.position = vec4<f32>(pos, 0.0, 1.0);
    out.uv = uv;
    return out;
}
`

const testFragmentSource = `
@group(0) @binding(0) var uTexture: texture_2d<f32>;
@group(0) @binding(1) var uSampler: sampler;

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return textureSample(uTexture, uSampler, uv);
}
`

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestContext(t *testing.T, width, height int) GraphicsContext {
	t.Helper()
	ctx := NewGraphicsContext(WithBackendType(BackendSoftware), WithLogger(quietLogger()))
	require.NoError(t, ctx.Initialize(width, height))
	t.Cleanup(ctx.Destroy)
	return ctx
}

// linkPassthrough links a program that copies uTexture to the target.
func linkPassthrough(t *testing.T, ctx GraphicsContext) ProgramHandle {
	t.Helper()
	vs, err := ctx.CompileStage(StageVertex, testVertexSource)
	require.NoError(t, err)
	fs, err := ctx.CompileStage(StageFragment, testFragmentSource)
	require.NoError(t, err)

	prog, err := ctx.LinkProgram(ProgramDescriptor{
		Label:         "passthrough",
		Stages:        []StageHandle{vs, fs},
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		Layout: ProgramLayout{
			UniformBinding:  -1,
			Textures:        []TextureBinding{{Name: "uTexture", Binding: 0}},
			SamplerBindings: []int{1},
		},
		Kernel: func(env KernelEnv) FragmentFunc {
			src := env.Texture("uTexture")
			if src == nil {
				return func(u, v float32) [4]float32 { return [4]float32{} }
			}
			return src.Sample
		},
	})
	require.NoError(t, err)
	ctx.DeleteStage(vs)
	ctx.DeleteStage(fs)
	return prog
}

func solidPixels(width, height int, px [4]uint8) []byte {
	out := make([]byte, width*height*4)
	for i := 0; i < len(out); i += 4 {
		copy(out[i:i+4], px[:])
	}
	return out
}
