package effect

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformFloat(t *testing.T, p shader.ShaderProgram, name string, index int) float32 {
	t.Helper()
	loc := p.UniformLocation(name)
	require.GreaterOrEqual(t, loc, 0, name)
	block := p.UniformBlock()
	off := loc + index*4
	return math.Float32frombits(binary.LittleEndian.Uint32(block[off : off+4]))
}

func assertPixelsNear(t *testing.T, want [4]uint8, pixels []byte, delta float64) {
	t.Helper()
	for i := 0; i < len(pixels); i += 4 {
		for ch := 0; ch < 4; ch++ {
			if !assert.InDelta(t, float64(want[ch]), float64(pixels[i+ch]), delta, "pixel %d channel %d", i/4, ch) {
				return
			}
		}
	}
}

func TestAllKindsCompileAndApply(t *testing.T) {
	a := newTestArena(t, 8, 8)
	for _, kind := range Kinds() {
		t.Run(kind.Name, func(t *testing.T) {
			e := newTestEffect(t, a, kind.Name)
			out := render(t, a, e, [4]uint8{128, 128, 128, 255})
			assert.Len(t, out, 8*8*4)
		})
	}
	assert.Equal(t, 11, a.Library().ShaderCount())
}

func TestEffectsOfOneKindShareAProgram(t *testing.T) {
	a := newTestArena(t, 4, 4)
	first := newTestEffect(t, a, KindInvert)
	second := newTestEffect(t, a, KindInvert, WithName("Invert2"))

	assert.Equal(t, "Invert2", second.Name())
	assert.Equal(t, 1, a.Library().ShaderCount())
	assert.True(t, first.IsValid())
	assert.True(t, second.IsValid())
}

func TestConcurrentApplyOfOneKind(t *testing.T) {
	a := newTestArena(t, 4, 4)
	ctx := a.Context()
	full := newTestEffect(t, a, KindInvert)
	none := newTestEffect(t, a, KindInvert, WithName("Invert2"))
	none.SetIntensity(0)

	px := [4]uint8{10, 20, 30, 255}
	input := ctx.CreateTexture(4, 4, graphics.TextureFormatRGBA8, solidPixels(4, 4, px))
	require.NotZero(t, input)

	passes := []struct {
		effect Effect
		want   [4]uint8
	}{
		{full, [4]uint8{245, 235, 225, 255}},
		{none, px},
	}
	mismatches := make([]int, len(passes))
	var wg sync.WaitGroup
	for i, pass := range passes {
		fb := ctx.CreateFramebuffer(4, 4, graphics.TextureFormatRGBA8)
		require.NotZero(t, fb)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				if !pass.effect.Apply(input, fb, 4, 4) {
					mismatches[i]++
					continue
				}
				out, err := ctx.ReadTexture(ctx.FramebufferTexture(fb))
				if err != nil || pixelAt(out, 4, 1, 1) != pass.want {
					mismatches[i]++
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{0, 0}, mismatches, "passes over a shared program must not see each other's uniforms")
}

func TestGrayscaleSolidRed(t *testing.T) {
	a := newTestArena(t, 64, 64)
	e := newTestEffect(t, a, KindGrayscale)
	require.Equal(t, float32(1), e.Intensity())

	out := render(t, a, e, [4]uint8{255, 0, 0, 255})
	gray := uint8(math.Floor(0.299 * 255))
	for i := 0; i < len(out); i += 4 {
		require.Equal(t, []byte{gray, gray, gray, 255}, out[i:i+4], "pixel %d", i/4)
	}
}

func TestVignetteZeroIntensityLeavesCorners(t *testing.T) {
	a := newTestArena(t, 64, 64)
	e := newTestEffect(t, a, KindVignette)
	require.True(t, e.SetParameter("radius", 1))
	e.SetIntensity(0)

	px := [4]uint8{200, 150, 100, 255}
	out := render(t, a, e, px)
	for _, c := range [][2]int{{0, 0}, {63, 0}, {0, 63}, {63, 63}} {
		assert.Equal(t, px, pixelAt(out, 64, c[0], c[1]), "corner %v", c)
	}
}

func TestVignetteDarkensCorners(t *testing.T) {
	a := newTestArena(t, 64, 64)
	e := newTestEffect(t, a, KindVignette)
	e.SetParameter("radius", 0.2)
	e.SetIntensity(1)

	out := render(t, a, e, [4]uint8{200, 200, 200, 255})
	corner := pixelAt(out, 64, 0, 0)
	center := pixelAt(out, 64, 32, 32)
	assert.Less(t, corner[0], center[0])
	assert.Equal(t, uint8(255), corner[3])
}

func TestInvert(t *testing.T) {
	a := newTestArena(t, 4, 4)
	e := newTestEffect(t, a, KindInvert)
	out := render(t, a, e, [4]uint8{10, 20, 30, 255})
	assertPixelsNear(t, [4]uint8{245, 235, 225, 255}, out, 0)
}

func TestPosterize(t *testing.T) {
	a := newTestArena(t, 4, 4)
	e := newTestEffect(t, a, KindPosterize)
	e.SetParameter("levels", 2)
	out := render(t, a, e, [4]uint8{100, 100, 100, 255})
	assertPixelsNear(t, [4]uint8{0, 0, 0, 255}, out, 0)
}

func TestNeutralDefaultsPreserveInput(t *testing.T) {
	px := [4]uint8{200, 100, 50, 255}
	for _, name := range []string{KindColorGrade, KindCurves, KindHSL, KindGaussianBlur} {
		t.Run(name, func(t *testing.T) {
			a := newTestArena(t, 8, 8)
			e := newTestEffect(t, a, name)
			out := render(t, a, e, px)
			assertPixelsNear(t, px, out, 1)
		})
	}
}

func TestColorGradeLUT(t *testing.T) {
	a := newTestArena(t, 4, 4)
	e := newTestEffect(t, a, KindColorGrade)
	lut := a.Context().CreateTexture(256, 16, graphics.TextureFormatRGBA8, solidPixels(256, 16, [4]uint8{0, 255, 0, 255}))
	require.NotZero(t, lut)
	e.SetAuxTexture(lut)
	assert.Equal(t, lut, e.AuxTexture())

	out := render(t, a, e, [4]uint8{90, 40, 200, 255})
	assertPixelsNear(t, [4]uint8{0, 255, 0, 255}, out, 0)
}

func TestGlowAddsBloom(t *testing.T) {
	a := newTestArena(t, 4, 4)
	e := newTestEffect(t, a, KindGlow)
	e.SetIntensity(0.5)
	bloom := a.Context().CreateTexture(4, 4, graphics.TextureFormatRGBA8, solidPixels(4, 4, [4]uint8{100, 100, 100, 255}))
	e.SetAuxTexture(bloom)

	out := render(t, a, e, [4]uint8{0, 0, 0, 255})
	assertPixelsNear(t, [4]uint8{50, 50, 50, 255}, out, 1)
}

func TestUniformTranslation(t *testing.T) {
	a := newTestArena(t, 4, 2)

	hsl := newTestEffect(t, a, KindHSL)
	hsl.SetParameter("hue", 1)
	hsl.SetParameter("saturation", 0)
	render(t, a, hsl, [4]uint8{1, 2, 3, 255})
	p := a.Library().GetShader(KindHSL)
	assert.InDelta(t, 180, uniformFloat(t, p, "uHue", 0), 1e-4)
	assert.InDelta(t, -1, uniformFloat(t, p, "uSaturation", 0), 1e-6)
	assert.InDelta(t, 0, uniformFloat(t, p, "uLightness", 0), 1e-6)
	assert.InDelta(t, 1, uniformFloat(t, p, "uIntensity", 0), 1e-6)

	ca := newTestEffect(t, a, KindChromaticAberration)
	ca.SetParameter("amount", 1)
	ca.SetParameter("direction", 90)
	render(t, a, ca, [4]uint8{1, 2, 3, 255})
	p = a.Library().GetShader(KindChromaticAberration)
	assert.InDelta(t, 0, uniformFloat(t, p, "uOffset", 0), 1e-6)
	assert.InDelta(t, 0.02, uniformFloat(t, p, "uOffset", 1), 1e-6)

	grade := newTestEffect(t, a, KindColorGrade)
	grade.SetParameter("temperature", 0)
	grade.SetParameter("tint", 0.75)
	render(t, a, grade, [4]uint8{1, 2, 3, 255})
	p = a.Library().GetShader(KindColorGrade)
	assert.InDelta(t, -100, uniformFloat(t, p, "uTemperature", 0), 1e-4)
	assert.InDelta(t, 50, uniformFloat(t, p, "uTint", 0), 1e-4)
	assert.InDelta(t, 0, uniformFloat(t, p, "uHasLUT", 0), 1e-6)

	blur := newTestEffect(t, a, KindGaussianBlur)
	render(t, a, blur, [4]uint8{1, 2, 3, 255})
	p = a.Library().GetShader(KindGaussianBlur)
	assert.InDelta(t, 0.25, uniformFloat(t, p, "uTexelSize", 0), 1e-6)
	assert.InDelta(t, 0.5, uniformFloat(t, p, "uTexelSize", 1), 1e-6)
}

func TestIntensityIsWrittenAfterHook(t *testing.T) {
	a := newTestArena(t, 4, 4)
	kind, ok := KindByName(KindInvert)
	require.True(t, ok)
	kind.Name = "InvertOverride"
	kind.Hook = func(p shader.ShaderProgram, s FrameState) {
		p.SetFloat("uIntensity", 0)
	}
	e := NewEffect(kind, a, WithEffectLogger(quietLogger()))
	require.True(t, e.IsValid())

	out := render(t, a, e, [4]uint8{10, 20, 30, 255})
	assertPixelsNear(t, [4]uint8{245, 235, 225, 255}, out, 0)
}

func TestDisabledEffectIsANoOp(t *testing.T) {
	a := newTestArena(t, 4, 4)
	ctx := a.Context()
	e := newTestEffect(t, a, KindInvert, WithEnabled(false))
	assert.False(t, e.Enabled())

	input := ctx.CreateTexture(4, 4, graphics.TextureFormatRGBA8, solidPixels(4, 4, [4]uint8{10, 20, 30, 255}))
	fb := ctx.CreateFramebuffer(4, 4, graphics.TextureFormatRGBA8)
	require.True(t, ctx.ClearFramebuffer(fb, 0, 0, 1, 1))

	assert.True(t, e.Apply(input, fb, 4, 4))
	out, err := ctx.ReadTexture(ctx.FramebufferTexture(fb))
	require.NoError(t, err)
	assertPixelsNear(t, [4]uint8{0, 0, 255, 255}, out, 0)

	e.SetEnabled(true)
	assert.True(t, e.Apply(input, fb, 4, 4))
	assert.Equal(t, graphics.DefaultFramebuffer, ctx.BoundFramebuffer())
}

func TestInvalidShaderApplyFails(t *testing.T) {
	a := newTestArena(t, 4, 4)
	kind, ok := KindByName(KindGrayscale)
	require.True(t, ok)
	kind.Name = "Broken"
	kind.Source.Fragment = "@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0;\n"

	e := NewEffect(kind, a, WithEffectLogger(quietLogger()))
	assert.False(t, e.IsValid())
	assert.False(t, a.Library().HasShader("Broken"))

	ctx := a.Context()
	input := ctx.CreateTexture(4, 4, graphics.TextureFormatRGBA8, solidPixels(4, 4, [4]uint8{1, 2, 3, 255}))
	fb := ctx.CreateFramebuffer(4, 4, graphics.TextureFormatRGBA8)
	assert.False(t, e.Apply(input, fb, 4, 4))

	var unavailable *EffectUnavailableError
	require.True(t, errors.As(e.Err(), &unavailable))
	assert.Equal(t, "Broken", unavailable.Effect)

	// parameters still work on an unavailable effect
	assert.True(t, e.SetParameter(IntensityParameter, 0.5))
}

func TestDebugInfo(t *testing.T) {
	e := detachedEffect(t, KindGaussianBlur)
	info := e.DebugInfo()
	assert.True(t, strings.HasPrefix(info, "Effect: GaussianBlur (GaussianBlur, Blur)\n"))
	assert.Contains(t, info, "  Available: no\n")
	assert.Contains(t, info, "  Parameters: 2\n")
	assert.Contains(t, info, "    - radius: 5.000\n")
}

func TestArenaSharesQuadAndBlank(t *testing.T) {
	a := newTestArena(t, 4, 4)
	q1, err := a.Quad()
	require.NoError(t, err)
	q2, err := a.Quad()
	require.NoError(t, err)
	assert.Equal(t, q1, q2)

	blank := a.BlankTexture()
	require.NotZero(t, blank)
	assert.Equal(t, blank, a.BlankTexture())

	before := a.Context().TextureCount()
	a.Release()
	assert.Equal(t, before-1, a.Context().TextureCount())
	assert.Zero(t, a.Library().ShaderCount())
}
