package graphics

import (
	"encoding/binary"
	"image"
	"math"
)

// softwareSampler samples an *image.RGBA with linear filtering and clamp-to-edge addressing.
type softwareSampler struct {
	img *image.RGBA
}

var _ Sampler = &softwareSampler{}

func (s *softwareSampler) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *softwareSampler) texel(x, y int) [4]float32 {
	i := y*s.img.Stride + x*4
	p := s.img.Pix[i : i+4 : i+4]
	return [4]float32{
		float32(p[0]) / 255,
		float32(p[1]) / 255,
		float32(p[2]) / 255,
		float32(p[3]) / 255,
	}
}

func (s *softwareSampler) Sample(u, v float32) [4]float32 {
	w, h := s.Size()
	if w == 0 || h == 0 {
		return [4]float32{}
	}

	// Texel centers sit at half-integer coordinates, as on the GPU.
	x := u*float32(w) - 0.5
	y := v*float32(h) - 0.5
	x0f := float32(math.Floor(float64(x)))
	y0f := float32(math.Floor(float64(y)))
	fx := x - x0f
	fy := y - y0f
	x0 := clampInt(int(x0f), 0, w-1)
	y0 := clampInt(int(y0f), 0, h-1)
	x1 := clampInt(int(x0f)+1, 0, w-1)
	y1 := clampInt(int(y0f)+1, 0, h-1)

	if fx == 0 && fy == 0 {
		return s.texel(x0, y0)
	}

	c00 := s.texel(x0, y0)
	c10 := s.texel(x1, y0)
	c01 := s.texel(x0, y1)
	c11 := s.texel(x1, y1)
	var out [4]float32
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*fx
		bottom := c01[i] + (c11[i]-c01[i])*fx
		out[i] = top + (bottom-top)*fy
	}
	return out
}

// kernelEnv resolves uniforms and textures of one software draw.
type kernelEnv struct {
	layout   ProgramLayout
	uniforms []byte
	samplers map[int]Sampler
	viewport Viewport
}

var _ KernelEnv = &kernelEnv{}

func (e *kernelEnv) word(name string, index int) uint32 {
	f, ok := e.layout.Uniform(name)
	if !ok {
		return 0
	}
	off := f.Offset + index*4
	if index*4 >= f.Size || off+4 > len(e.uniforms) {
		return 0
	}
	return binary.LittleEndian.Uint32(e.uniforms[off : off+4])
}

func (e *kernelEnv) Float(name string) float32 {
	return math.Float32frombits(e.word(name, 0))
}

func (e *kernelEnv) Int(name string) int32 {
	return int32(e.word(name, 0))
}

func (e *kernelEnv) Vec2(name string) [2]float32 {
	return [2]float32{
		math.Float32frombits(e.word(name, 0)),
		math.Float32frombits(e.word(name, 1)),
	}
}

func (e *kernelEnv) Vec3(name string) [3]float32 {
	return [3]float32{
		math.Float32frombits(e.word(name, 0)),
		math.Float32frombits(e.word(name, 1)),
		math.Float32frombits(e.word(name, 2)),
	}
}

func (e *kernelEnv) Vec4(name string) [4]float32 {
	return [4]float32{
		math.Float32frombits(e.word(name, 0)),
		math.Float32frombits(e.word(name, 1)),
		math.Float32frombits(e.word(name, 2)),
		math.Float32frombits(e.word(name, 3)),
	}
}

func (e *kernelEnv) Texture(name string) Sampler {
	slot := e.layout.TextureSlot(name)
	if slot < 0 {
		return nil
	}
	return e.samplers[slot]
}

func (e *kernelEnv) Viewport() Viewport {
	return e.viewport
}

// toUnorm8 converts a shader output channel to an 8-bit unsigned normalized value, rounding to nearest.
func toUnorm8(c float32) uint8 {
	if c != c || c <= 0 {
		return 0
	}
	if c >= 1 {
		return 255
	}
	return uint8(c*255 + 0.5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
