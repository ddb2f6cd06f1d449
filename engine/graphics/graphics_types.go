package graphics

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// TextureHandle identifies a texture owned by a GraphicsContext. Zero is never a valid texture.
type TextureHandle uint32

// FramebufferHandle identifies an off-screen render target owned by a GraphicsContext.
// Zero refers to the default framebuffer, which is presented to the platform surface when one exists.
type FramebufferHandle uint32

// StageHandle identifies a compiled shader stage awaiting linkage.
type StageHandle uint32

// ProgramHandle identifies a linked shader program.
type ProgramHandle uint32

// QuadHandle identifies full-screen quad geometry.
type QuadHandle uint32

// DefaultFramebuffer is the framebuffer handle of the context's own surface.
const DefaultFramebuffer FramebufferHandle = 0

// TextureFormat enumerates the color formats a texture or framebuffer can be created with.
type TextureFormat int

const (
	// TextureFormatRGBA8 is 8-bit unsigned normalized RGBA, stored linearly without sRGB conversion.
	TextureFormatRGBA8 TextureFormat = iota
	// TextureFormatBGRA8 is 8-bit unsigned normalized BGRA, the common swapchain layout.
	TextureFormatBGRA8
	// TextureFormatRGBA16F is 16-bit float RGBA, used for high precision intermediates on the GPU backend.
	TextureFormatRGBA16F
)

// String returns the format name.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8:
		return "RGBA8"
	case TextureFormatBGRA8:
		return "BGRA8"
	case TextureFormatRGBA16F:
		return "RGBA16F"
	default:
		return fmt.Sprintf("TextureFormat(%d)", int(f))
	}
}

// BytesPerPixel returns the size of one texel in bytes.
func (f TextureFormat) BytesPerPixel() int {
	if f == TextureFormatRGBA16F {
		return 8
	}
	return 4
}

func (f TextureFormat) wgpu() wgpu.TextureFormat {
	switch f {
	case TextureFormatBGRA8:
		return wgpu.TextureFormatBGRA8Unorm
	case TextureFormatRGBA16F:
		return wgpu.TextureFormatRGBA16Float
	default:
		return wgpu.TextureFormatRGBA8Unorm
	}
}

// ShaderStage identifies one programmable stage of a shader program.
type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageGeometry
)

// String returns the lower case stage name used in compile logs.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageGeometry:
		return "geometry"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ContextConfig describes the surface configuration negotiated during Initialize.
type ContextConfig struct {
	RedBits, GreenBits, BlueBits, AlphaBits int
	DepthBits, StencilBits                  int
}

// DefaultContextConfig returns the RGBA8, depth 24, stencil 8 configuration.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		RedBits:     8,
		GreenBits:   8,
		BlueBits:    8,
		AlphaBits:   8,
		DepthBits:   24,
		StencilBits: 8,
	}
}

// Capabilities describes what the initialized backend supports.
type Capabilities struct {
	// APIName is the graphics API in use, e.g. "WebGPU" or "Software".
	APIName string
	// MajorVersion and MinorVersion describe the API class. Contexts below 3.0 are rejected.
	MajorVersion, MinorVersion int
	// Renderer is a human readable adapter description.
	Renderer string
	// MaxTextureSize is the largest supported 2D texture dimension.
	MaxTextureSize int
	// MaxRenderbufferSize is the largest supported render target dimension.
	MaxRenderbufferSize int
	// MaxUniformBlockSize is the largest supported uniform block in bytes.
	MaxUniformBlockSize int
	// MaxColorAttachments is the number of color targets per render pass.
	MaxColorAttachments int
	// Extensions lists optional features the backend exposes.
	Extensions []string

	SupportsFramebuffers     bool
	SupportsFloatTextures    bool
	SupportsHalfFloatTexture bool
	SupportsDepthTexture     bool
}

// HasExtension reports whether the named extension is listed.
func (c Capabilities) HasExtension(name string) bool {
	for _, e := range c.Extensions {
		if e == name {
			return true
		}
	}
	return false
}

// Viewport is the pixel rectangle a draw rasterizes into.
type Viewport struct {
	X, Y, Width, Height int
}

// UniformField describes one member of a program's uniform block.
type UniformField struct {
	// Name is the member name as written in the shader, e.g. "uIntensity".
	Name string
	// Type is the WGSL type name, e.g. "f32" or "vec2<f32>".
	Type string
	// Offset is the byte offset of the member within the block.
	Offset int
	// Size is the byte size of the member.
	Size int
	// Stride is the element stride of array members, 0 otherwise.
	Stride int
}

// TextureBinding maps a texture variable to its binding slot.
type TextureBinding struct {
	Name    string
	Binding int
}

// ProgramLayout is the resource interface of a linked program, extracted from its source.
type ProgramLayout struct {
	// UniformBinding is the binding slot of the uniform block, or -1 when the program has none.
	UniformBinding int
	// UniformSize is the total size of the uniform block in bytes, padded to its alignment.
	UniformSize int
	// Uniforms lists the members of the uniform block in declaration order.
	Uniforms []UniformField
	// Textures lists the sampled textures in declaration order.
	Textures []TextureBinding
	// SamplerBindings lists the binding slots of sampler variables.
	SamplerBindings []int
	// BindGroupLayouts are the wgpu layout descriptors for every bind group referenced by the program.
	BindGroupLayouts []wgpu.BindGroupLayoutDescriptor
	// VertexLayouts are the vertex buffer layouts consumed by the vertex stage.
	VertexLayouts []wgpu.VertexBufferLayout
}

// Uniform looks up a uniform block member by name.
func (l ProgramLayout) Uniform(name string) (UniformField, bool) {
	for _, f := range l.Uniforms {
		if f.Name == name {
			return f, true
		}
	}
	return UniformField{}, false
}

// TextureSlot looks up the binding slot of a texture variable, returning -1 if it is not declared.
func (l ProgramLayout) TextureSlot(name string) int {
	for _, t := range l.Textures {
		if t.Name == name {
			return t.Binding
		}
	}
	return -1
}

// ProgramDescriptor describes a program to link from previously compiled stages.
type ProgramDescriptor struct {
	Label         string
	Stages        []StageHandle
	VertexEntry   string
	FragmentEntry string
	Layout        ProgramLayout
	Kernel        FragmentKernel
	TargetFormat  TextureFormat
	HasGeometry   bool
}

// DrawCall describes one full-screen draw.
type DrawCall struct {
	Program  ProgramHandle
	Quad     QuadHandle
	Target   FramebufferHandle
	Viewport Viewport
	// Uniforms is the program's uniform block contents, laid out per ProgramLayout.
	Uniforms []byte
	// Textures maps binding slots to the textures sampled by the draw.
	Textures map[int]TextureHandle
}

// Sampler returns filtered texel values at normalized texture coordinates.
type Sampler interface {
	// Sample returns the RGBA value at (u, v) with linear filtering and clamp-to-edge addressing.
	Sample(u, v float32) [4]float32
	// Size returns the sampled texture dimensions.
	Size() (int, int)
}

// KernelEnv exposes the bound state of one draw to a software fragment kernel.
type KernelEnv interface {
	Float(name string) float32
	Int(name string) int32
	Vec2(name string) [2]float32
	Vec3(name string) [3]float32
	Vec4(name string) [4]float32
	// Texture returns the sampler bound to the named texture variable, or nil if nothing is bound.
	Texture(name string) Sampler
	Viewport() Viewport
}

// FragmentFunc shades one fragment at normalized coordinates (u, v), where (0, 0) is the top-left pixel corner.
type FragmentFunc func(u, v float32) [4]float32

// FragmentKernel is the software backend's counterpart of a fragment shader. It resolves uniforms and
// samplers once per draw and returns the per-fragment function.
type FragmentKernel func(env KernelEnv) FragmentFunc
