package graphics

import (
	"encoding/binary"
	"image"
	"math"
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBalanced(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "balanced", src: "fn main() { let a = b[0]; }"},
		{name: "comment brackets ignored", src: "// (((\nfn main() {} /* ]]] */"},
		{name: "unclosed", src: "fn main() {\n let a = 1;\n", wantErr: "unclosed '{'"},
		{name: "mismatched", src: "fn main() {\n let a = (1];\n}", wantErr: "line 2: unexpected ']'"},
		{name: "stray close", src: ")", wantErr: "line 1: unexpected ')'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkBalanced(tt.src)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSoftwareCompileStage(t *testing.T) {
	b := newSoftwareGraphicsBackend(nil)
	require.NoError(t, b.Init(4, 4, DefaultContextConfig()))

	_, err := b.CompileStage(StageVertex, "   ")
	assert.Error(t, err)
	assert.Equal(t, ErrorInvalidValue, b.PopError())

	_, err = b.CompileStage(StageFragment, "fn main() {}")
	assert.ErrorContains(t, err, "missing @fragment")
	assert.Equal(t, ErrorInvalidOperation, b.PopError())
	assert.Equal(t, ErrorNone, b.PopError())

	h, err := b.CompileStage(StageVertex, testVertexSource)
	require.NoError(t, err)
	assert.NotZero(t, h)
}

func TestSoftwareSamplerBilinear(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	copy(img.Pix, []byte{0, 0, 0, 255, 255, 255, 255, 255})
	s := &softwareSampler{img: img}

	// texel centers return exact texels
	assert.Equal(t, [4]float32{0, 0, 0, 1}, s.Sample(0.25, 0.5))
	assert.Equal(t, [4]float32{1, 1, 1, 1}, s.Sample(0.75, 0.5))

	mid := s.Sample(0.5, 0.5)
	assert.InDelta(t, 0.5, mid[0], 1e-6)

	// clamp to edge
	assert.Equal(t, [4]float32{0, 0, 0, 1}, s.Sample(-3, 0.5))
	assert.Equal(t, [4]float32{1, 1, 1, 1}, s.Sample(4, 2))
}

func TestToUnorm8(t *testing.T) {
	nan := float32(0)
	nan = nan / nan
	assert.Equal(t, uint8(0), toUnorm8(nan))
	assert.Equal(t, uint8(0), toUnorm8(-1))
	assert.Equal(t, uint8(255), toUnorm8(2))
	assert.Equal(t, uint8(76), toUnorm8(0.299))
	assert.Equal(t, uint8(128), toUnorm8(0.5))
}

func TestKernelEnvUniforms(t *testing.T) {
	layout := ProgramLayout{
		UniformBinding: 0,
		UniformSize:    32,
		Uniforms: []UniformField{
			{Name: "uIntensity", Type: "f32", Offset: 0, Size: 4},
			{Name: "uLevels", Type: "i32", Offset: 4, Size: 4},
			{Name: "uTexelSize", Type: "vec2<f32>", Offset: 8, Size: 8},
			{Name: "uTint", Type: "vec4<f32>", Offset: 16, Size: 16},
		},
	}
	block := make([]byte, 32)
	putF32 := func(off int, v float32) {
		binary.LittleEndian.PutUint32(block[off:], math.Float32bits(v))
	}
	putF32(0, 0.75)
	block[4] = 7
	putF32(8, 0.5)
	putF32(12, 0.25)
	putF32(16, 1)
	putF32(28, 2)

	env := &kernelEnv{layout: layout, uniforms: block}
	assert.Equal(t, float32(0.75), env.Float("uIntensity"))
	assert.Equal(t, int32(7), env.Int("uLevels"))
	assert.Equal(t, [2]float32{0.5, 0.25}, env.Vec2("uTexelSize"))
	assert.Equal(t, [4]float32{1, 0, 0, 2}, env.Vec4("uTint"))
	assert.Equal(t, float32(0), env.Float("uMissing"))
	assert.Nil(t, env.Texture("uTexture"))
}

func TestSoftwareDrawWithWorkerPool(t *testing.T) {
	pool := worker.NewDynamicWorkerPool(4, 256, 1*time.Second)
	t.Cleanup(pool.Stop)
	ctx := NewGraphicsContext(WithBackendType(BackendSoftware), WithWorkerPool(pool), WithLogger(quietLogger()))
	require.NoError(t, ctx.Initialize(8, 100))
	t.Cleanup(ctx.Destroy)

	prog := linkPassthrough(t, ctx)
	quad, err := ctx.CreateQuad()
	require.NoError(t, err)

	src := ctx.CreateTexture(1, 1, TextureFormatRGBA8, []byte{9, 8, 7, 255})
	fb := ctx.CreateFramebuffer(8, 100, TextureFormatRGBA8)
	ctx.BindFramebuffer(fb)
	ctx.SetViewport(0, 0, 8, 100)
	require.NoError(t, ctx.DrawQuad(prog, quad, nil, map[int]TextureHandle{0: src}))

	got, err := ctx.ReadTexture(ctx.FramebufferTexture(fb))
	require.NoError(t, err)
	assert.Equal(t, solidPixels(8, 100, [4]uint8{9, 8, 7, 255}), got)
}
