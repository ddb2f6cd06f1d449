package effect

import (
	"math"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
)

// Software kernels mirror the fragment entry points in assets/ so the software backend renders the same image.

const lutSize float32 = 16

var blurKernel = [9]float32{
	0.077847, 0.123177, 0.077847,
	0.123177, 0.195346, 0.123177,
	0.077847, 0.123177, 0.077847,
}

func colorGradeKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	lut := env.Texture("uLUT")
	intensity := env.Float("uIntensity")
	t := env.Float("uTemperature") / 100
	g := env.Float("uTint") / 100
	hasLUT := env.Float("uHasLUT")
	if lut == nil {
		hasLUT = 0
	}
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		balanced := rgba{c[0] * (1 + 0.2*t), c[1] * (1 - 0.2*g), c[2] * (1 - 0.2*t), c[3]}
		result := balanced
		if hasLUT > 0 {
			r, gg, b := clamp01(balanced[0])*(lutSize-1), clamp01(balanced[1])*(lutSize-1), clamp01(balanced[2])*(lutSize-1)
			slice := floor32(b + 0.5)
			graded := lut.Sample((slice*lutSize+r+0.5)/(lutSize*lutSize), (gg+0.5)/lutSize)
			result = mixRGB(balanced, graded, hasLUT)
		}
		return mixRGB(c, result, intensity)
	}
}

func midtone(x, m float32) float32 {
	return float32(math.Pow(float64(clamp01(x)), math.Exp2(float64(0.5-m)*2)))
}

func curvesKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	curve := env.Texture("uCurveTexture")
	intensity := env.Float("uIntensity")
	mr, mg, mb := env.Float("uRedMidtone"), env.Float("uGreenMidtone"), env.Float("uBlueMidtone")
	ml := env.Float("uLuminanceMidtone")
	hasCurves := env.Float("uHasCurves")
	if curve == nil {
		hasCurves = 0
	}
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		adj := rgba{midtone(c[0], mr), midtone(c[1], mg), midtone(c[2], mb), c[3]}
		if l := luminance(adj); l > 0 {
			k := midtone(l, ml) / l
			adj[0], adj[1], adj[2] = adj[0]*k, adj[1]*k, adj[2]*k
		}
		if hasCurves > 0 {
			curved := rgba{
				curve.Sample(adj[0], 0.5/3)[0],
				curve.Sample(adj[1], 1.5/3)[1],
				curve.Sample(adj[2], 2.5/3)[2],
				c[3],
			}
			adj = mixRGB(adj, curved, hasCurves)
		}
		adj[0], adj[1], adj[2] = clamp01(adj[0]), clamp01(adj[1]), clamp01(adj[2])
		return mixRGB(c, adj, intensity)
	}
}

func hslKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	intensity := env.Float("uIntensity")
	hue := env.Float("uHue")
	sat := env.Float("uSaturation")
	light := env.Float("uLightness")
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		h, s, l := rgbToHSL(c)
		h = fract(h + hue/360)
		s = clamp01(s + sat)
		l = clamp01(l + light)
		r, g, b := hslToRGB(h, s, l)
		return mixRGB(c, rgba{r, g, b, c[3]}, intensity)
	}
}

func gaussianBlurKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	intensity := env.Float("uIntensity")
	radius := env.Float("uRadius")
	texel := env.Vec2("uTexelSize")
	ox, oy := texel[0]*radius, texel[1]*radius
	return func(u, v float32) [4]float32 {
		var sum rgba
		for i, w := range blurKernel {
			x, y := float32(i%3-1), float32(i/3-1)
			s := src.Sample(u+x*ox, v+y*oy)
			for ch := range sum {
				sum[ch] += s[ch] * w
			}
		}
		return mixRGBA(src.Sample(u, v), sum, intensity)
	}
}

func vignetteKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	intensity := env.Float("uIntensity")
	radius := env.Float("uRadius")
	soft := max(env.Float("uSoftness"), 0.0001)
	aspect := env.Float("uAspect")
	norm := float32(math.Hypot(float64(0.5*aspect), 0.5))
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		dx, dy := (u-0.5)*aspect, v-0.5
		dist := float32(math.Hypot(float64(dx), float64(dy))) / norm
		f := 1 - smoothstep(radius-soft, radius+soft, dist)
		return mixRGB(c, rgba{c[0] * f, c[1] * f, c[2] * f, c[3]}, intensity)
	}
}

func glowKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	bloom := env.Texture("uBloomTexture")
	intensity := env.Float("uIntensity")
	threshold := env.Float("uThreshold")
	gain := env.Float("uGain")
	hasBloom := env.Float("uHasBloom")
	if bloom == nil {
		hasBloom = 0
	}
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		var boost float32
		if luminance(c) > threshold {
			boost = intensity * gain
		}
		out := rgba{c[0] + c[0]*boost, c[1] + c[1]*boost, c[2] + c[2]*boost, c[3]}
		if hasBloom > 0 {
			b := bloom.Sample(u, v)
			k := intensity * hasBloom
			out[0], out[1], out[2] = out[0]+b[0]*k, out[1]+b[1]*k, out[2]+b[2]*k
		}
		return rgba{clamp01(out[0]), clamp01(out[1]), clamp01(out[2]), out[3]}
	}
}

func chromaticAberrationKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	intensity := env.Float("uIntensity")
	offset := env.Vec2("uOffset")
	sx, sy := offset[0]*intensity, offset[1]*intensity
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		r := src.Sample(u+sx, v+sy)[0]
		b := src.Sample(u-sx, v-sy)[2]
		return rgba{mix(c[0], r, intensity), c[1], mix(c[2], b, intensity), c[3]}
	}
}

func glitchRandom(x, y float32) float32 {
	return fract(float32(math.Sin(float64(x*12.9898+y*78.233))) * 43758.5453123)
}

func glitchKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	intensity := env.Float("uIntensity")
	amount := env.Float("uAmount")
	rows := 4 + env.Float("uFrequency")*60
	t := env.Float("uTime")
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		band := floor32(v*rows) / rows
		g := glitchRandom(band+t*0.1, t)*2 - 1
		shifted := src.Sample(u+g*amount*0.1, v)
		return mixRGBA(c, shifted, intensity*float32(math.Abs(float64(g))))
	}
}

func posterizeKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	intensity := env.Float("uIntensity")
	levels := env.Float("uLevels")
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		var p rgba
		for ch := range c {
			p[ch] = floor32(c[ch]*levels) / levels
		}
		return mixRGBA(c, p, intensity)
	}
}

func invertKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	intensity := env.Float("uIntensity")
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		return mixRGB(c, rgba{1 - c[0], 1 - c[1], 1 - c[2], c[3]}, intensity)
	}
}

func grayscaleKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	intensity := env.Float("uIntensity")
	return func(u, v float32) [4]float32 {
		c := src.Sample(u, v)
		g := luminance(c)
		return mixRGB(c, rgba{g, g, g, c[3]}, intensity)
	}
}

func copyKernel(env graphics.KernelEnv) graphics.FragmentFunc {
	src := env.Texture("uTexture")
	if src == nil {
		return func(u, v float32) [4]float32 { return rgba{} }
	}
	return src.Sample
}
