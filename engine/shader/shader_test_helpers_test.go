package shader

import (
	"io"
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testVertex = `//@fx:include quad_vertex
//@fx:include quad_varying

@vertex
fn vs_main(in: QuadVertex) -> QuadVarying {
    var out: QuadVarying;
    out.position = vec4<f32>(in.position, 0.0, 1.0);
    out.uv = in.uv;
    return out;
}
`

const testFragment = `//@fx:include quad_varying

struct Params {
    uIntensity: f32,
    uTexelSize: vec2<f32>,
    uTint: vec3<f32>,
    uLevels: i32,
    uColorMatrix: mat3x3<f32>,
    uWeights: array<vec4<f32>, 2>,
};

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var uTexture: texture_2d<f32>;
@group(0) @binding(2) var uSampler: sampler;

@fragment
fn fs_main(in: QuadVarying) -> @location(0) vec4<f32> {
    let c = textureSample(uTexture, uSampler, in.uv);
    return vec4<f32>(c.rgb * params.uIntensity, c.a);
}
`

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestContext(t *testing.T, options ...graphics.GraphicsContextBuilderOption) graphics.GraphicsContext {
	t.Helper()
	opts := append([]graphics.GraphicsContextBuilderOption{
		graphics.WithBackendType(graphics.BackendSoftware),
		graphics.WithLogger(quietLogger()),
	}, options...)
	ctx := graphics.NewGraphicsContext(opts...)
	require.NoError(t, ctx.Initialize(4, 4))
	t.Cleanup(ctx.Destroy)
	return ctx
}

// scaleKernel multiplies the sampled input by uIntensity.
func scaleKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	k := env.Float("uIntensity")
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		return [4]float32{c[0] * k, c[1] * k, c[2] * k, c[3]}
	}
}

func testSource() ShaderSource {
	return ShaderSource{
		Label:    "scale",
		Vertex:   testVertex,
		Fragment: testFragment,
		Kernel:   scaleKernel,
	}
}
