package effect

import (
	"math"
)

// Rec. 601 luma weights, shared with color_utils.wgsl.
const (
	lumaR float32 = 0.299
	lumaG float32 = 0.587
	lumaB float32 = 0.114
)

type rgba = [4]float32

func luminance(c rgba) float32 {
	return c[0]*lumaR + c[1]*lumaG + c[2]*lumaB
}

func mix(a, b, t float32) float32 {
	return a + (b-a)*t
}

// mixRGB blends the color channels and keeps the alpha of a.
func mixRGB(a, b rgba, t float32) rgba {
	return rgba{mix(a[0], b[0], t), mix(a[1], b[1], t), mix(a[2], b[2], t), a[3]}
}

func mixRGBA(a, b rgba, t float32) rgba {
	return rgba{mix(a[0], b[0], t), mix(a[1], b[1], t), mix(a[2], b[2], t), mix(a[3], b[3], t)}
}

// clamp01 limits x to [0,1]; NaN maps to 0.
func clamp01(x float32) float32 {
	if x != x {
		return 0
	}
	return min(max(x, 0), 1)
}

func smoothstep(edge0, edge1, x float32) float32 {
	t := clamp01((x - edge0) / (edge1 - edge0))
	return t * t * (3 - 2*t)
}

func fract(x float32) float32 {
	return x - float32(math.Floor(float64(x)))
}

func floor32(x float32) float32 {
	return float32(math.Floor(float64(x)))
}

func rgbToHSL(c rgba) (h, s, l float32) {
	maxc := max(c[0], c[1], c[2])
	minc := min(c[0], c[1], c[2])
	l = (maxc + minc) * 0.5
	d := maxc - minc
	if d == 0 {
		return 0, 0, l
	}
	if l <= 0.5 {
		s = d / (maxc + minc)
	} else {
		s = d / (2 - maxc - minc)
	}
	switch maxc {
	case c[0]:
		h = (c[1] - c[2]) / d
		if c[1] < c[2] {
			h += 6
		}
	case c[1]:
		h = (c[2]-c[0])/d + 2
	default:
		h = (c[0]-c[1])/d + 4
	}
	return h / 6, s, l
}

func hueToRGB(p, q, t float32) float32 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

func hslToRGB(h, s, l float32) (r, g, b float32) {
	if s == 0 {
		return l, l, l
	}
	var q float32
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return hueToRGB(p, q, h+1.0/3.0), hueToRGB(p, q, h), hueToRGB(p, q, h-1.0/3.0)
}
