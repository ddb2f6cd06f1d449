package graphics

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga"
)

// presentShaderSource copies the default framebuffer onto the swapchain texture.
const presentShaderSource = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@group(0) @binding(0) var uSource: texture_2d<f32>;
@group(0) @binding(1) var uSampler: sampler;

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    var positions = array<vec2<f32>, 3>(vec2<f32>(-1.0, -3.0), vec2<f32>(-1.0, 1.0), vec2<f32>(3.0, 1.0));
    var out: VertexOutput;
    let p = positions[index];
    out.position = vec4<f32>(p, 0.0, 1.0);
    out.uv = vec2<f32>((p.x + 1.0) * 0.5, (1.0 - p.y) * 0.5);
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(uSource, uSampler, in.uv);
}
`

// quadVertices are interleaved position.xy and uv pairs. UV (0, 0) is the top-left texel, matching texture row order.
var quadVertices = []float32{
	-1, 1, 0, 0,
	-1, -1, 0, 1,
	1, -1, 1, 1,
	1, 1, 1, 0,
}

var quadIndices = []uint32{0, 1, 2, 0, 2, 3}

type wgpuTexture struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
	width   int
	height  int
	format  TextureFormat
}

type wgpuFramebuffer struct {
	color     TextureHandle
	depth     *wgpu.Texture
	depthView *wgpu.TextureView
}

type wgpuStage struct {
	stage  ShaderStage
	module *wgpu.ShaderModule
}

type wgpuProgram struct {
	label            string
	layout           ProgramLayout
	bindGroupLayouts []*wgpu.BindGroupLayout
	pipelineLayout   *wgpu.PipelineLayout
	pipeline         *wgpu.RenderPipeline
	uniformBuffer    *wgpu.Buffer
}

type wgpuQuad struct {
	vertexBuffer *wgpu.Buffer
	indexBuffer  *wgpu.Buffer
	indexCount   uint32
}

// wgpuGraphicsBackend implements GraphicsBackend on a headless WebGPU device. When a surface descriptor is
// supplied the default framebuffer is presented onto that surface by Present.
type wgpuGraphicsBackend struct {
	mu sync.Mutex

	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
	samplerData          common.SamplerStagingData

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	sampler  *wgpu.Sampler

	surface         *wgpu.Surface
	surfaceFormat   wgpu.TextureFormat
	presentLayout   *wgpu.BindGroupLayout
	presentPipeline *wgpu.RenderPipeline

	depthFormat wgpu.TextureFormat
	hasDepth    bool
	hasStencil  bool

	capabilities Capabilities

	nextHandle   uint32
	defaultFB    *wgpuFramebuffer
	textures     map[TextureHandle]*wgpuTexture
	framebuffers map[FramebufferHandle]*wgpuFramebuffer
	stages       map[StageHandle]*wgpuStage
	programs     map[ProgramHandle]*wgpuProgram
	quads        map[QuadHandle]*wgpuQuad

	lastError ErrorCode
}

var _ GraphicsBackend = &wgpuGraphicsBackend{}

func newWGPUGraphicsBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, samplerData common.SamplerStagingData) *wgpuGraphicsBackend {
	return &wgpuGraphicsBackend{
		surfaceDescriptor:    surfaceDescriptor,
		forceFallbackAdapter: forceFallbackAdapter,
		samplerData:          samplerData,
		textures:             make(map[TextureHandle]*wgpuTexture),
		framebuffers:         make(map[FramebufferHandle]*wgpuFramebuffer),
		stages:               make(map[StageHandle]*wgpuStage),
		programs:             make(map[ProgramHandle]*wgpuProgram),
		quads:                make(map[QuadHandle]*wgpuQuad),
	}
}

func (b *wgpuGraphicsBackend) handle() uint32 {
	b.nextHandle++
	return b.nextHandle
}

func (b *wgpuGraphicsBackend) fail(code ErrorCode, format string, args ...any) error {
	b.lastError = code
	return newBackendError(code, format, args...)
}

func (b *wgpuGraphicsBackend) Init(width, height int, cfg ContextConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.instance = wgpu.CreateInstance(nil)
	if b.instance == nil {
		return b.fail(ErrorInternal, "failed to create WebGPU instance")
	}
	if b.surfaceDescriptor != nil {
		b.surface = b.instance.CreateSurface(b.surfaceDescriptor)
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: b.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
		PowerPreference:      wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return b.fail(ErrorContextLost, "request adapter: %v", err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "oxy-fx Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return b.fail(ErrorDeviceLost, "request device: %v", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	sd := b.samplerData.WithDefaults()
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "oxy-fx Linear Clamp Sampler",
		AddressModeU:  sd.AddressModeU,
		AddressModeV:  sd.AddressModeV,
		AddressModeW:  sd.AddressModeW,
		MagFilter:     sd.MagFilter,
		MinFilter:     sd.MinFilter,
		MipmapFilter:  sd.MipmapFilter,
		LodMinClamp:   sd.LodMinClamp,
		LodMaxClamp:   sd.LodMaxClamp,
		MaxAnisotropy: sd.MaxAnisotropy,
	})
	if err != nil {
		return b.fail(ErrorInternal, "create sampler: %v", err)
	}
	b.sampler = samp

	b.hasDepth = cfg.DepthBits > 0
	b.hasStencil = cfg.StencilBits > 0
	switch {
	case b.hasDepth && b.hasStencil:
		b.depthFormat = wgpu.TextureFormatDepth24PlusStencil8
	case b.hasDepth:
		b.depthFormat = wgpu.TextureFormatDepth24Plus
	}

	limits := a.GetLimits().Limits
	info := a.GetInfo()
	b.capabilities = Capabilities{
		APIName:                  "WebGPU",
		MajorVersion:             3,
		MinorVersion:             0,
		Renderer:                 fmt.Sprintf("%s (%s, %v)", info.Name, info.DriverDescription, info.BackendType),
		MaxTextureSize:           int(limits.MaxTextureDimension2D),
		MaxRenderbufferSize:      int(limits.MaxTextureDimension2D),
		MaxUniformBlockSize:      int(limits.MaxUniformBufferBindingSize),
		MaxColorAttachments:      8,
		Extensions:               []string{"wgsl", "render_attachment", "copy_src_readback"},
		SupportsFramebuffers:     true,
		SupportsFloatTextures:    true,
		SupportsHalfFloatTexture: true,
		SupportsDepthTexture:     b.hasDepth,
	}

	if b.surface != nil {
		if err := b.configureSurface(width, height); err != nil {
			return err
		}
	}

	fb, err := b.newFramebuffer("Default Framebuffer", width, height, TextureFormatRGBA8)
	if err != nil {
		return err
	}
	b.defaultFB = fb
	return nil
}

func (b *wgpuGraphicsBackend) configureSurface(width, height int) error {
	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		return b.fail(ErrorInvalidOperation, "surface reports no formats")
	}
	b.surfaceFormat = capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	if b.presentPipeline != nil {
		return nil
	}

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Present Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: presentShaderSource},
	})
	if err != nil {
		return b.fail(ErrorInvalidOperation, "present shader: %v", err)
	}
	defer module.Release()

	layout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Present Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return b.fail(ErrorInvalidOperation, "present bind group layout: %v", err)
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Present Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return b.fail(ErrorInvalidOperation, "present pipeline layout: %v", err)
	}
	defer pipelineLayout.Release()

	pipeline, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Present Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    b.surfaceFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		layout.Release()
		return b.fail(ErrorInvalidOperation, "present pipeline: %v", err)
	}
	b.presentLayout = layout
	b.presentPipeline = pipeline
	return nil
}

func (b *wgpuGraphicsBackend) Capabilities() Capabilities {
	return b.capabilities
}

func (b *wgpuGraphicsBackend) ResizeDefault(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fb, err := b.newFramebuffer("Default Framebuffer", width, height, TextureFormatRGBA8)
	if err != nil {
		return err
	}
	if b.defaultFB != nil {
		b.releaseFramebuffer(b.defaultFB)
	}
	b.defaultFB = fb
	if b.surface != nil {
		return b.configureSurface(width, height)
	}
	return nil
}

func (b *wgpuGraphicsBackend) newTexture(label string, width, height int, format TextureFormat, pixels []byte) (TextureHandle, error) {
	if width <= 0 || height <= 0 {
		return 0, b.fail(ErrorInvalidValue, "texture size %dx%d", width, height)
	}
	if limit := b.capabilities.MaxTextureSize; limit > 0 && (width > limit || height > limit) {
		return 0, b.fail(ErrorInvalidValue, "texture size %dx%d exceeds %d", width, height, limit)
	}

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Usage: wgpu.TextureUsageTextureBinding | wgpu.TextureUsageRenderAttachment |
			wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		Format:        format.wgpu(),
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return 0, b.fail(ErrorOutOfMemory, "create texture: %v", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return 0, b.fail(ErrorInternal, "create texture view: %v", err)
	}

	t := &wgpuTexture{texture: tex, view: view, width: width, height: height, format: format}
	if pixels != nil {
		if err := b.writeTexture(t, pixels); err != nil {
			view.Release()
			tex.Release()
			return 0, err
		}
	}
	h := TextureHandle(b.handle())
	b.textures[h] = t
	return h, nil
}

func (b *wgpuGraphicsBackend) writeTexture(t *wgpuTexture, pixels []byte) error {
	bpp := t.format.BytesPerPixel()
	if len(pixels) != t.width*t.height*bpp {
		return b.fail(ErrorInvalidValue, "pixel data is %d bytes, expected %d", len(pixels), t.width*t.height*bpp)
	}
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(t.width * bpp),
			RowsPerImage: uint32(t.height),
		},
		&wgpu.Extent3D{
			Width:              uint32(t.width),
			Height:             uint32(t.height),
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (b *wgpuGraphicsBackend) CreateTexture(width, height int, format TextureFormat, pixels []byte) (TextureHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newTexture("Texture", width, height, format, pixels)
}

func (b *wgpuGraphicsBackend) WriteTexture(tex TextureHandle, pixels []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.textures[tex]
	if !ok {
		return b.fail(ErrorInvalidValue, "unknown texture %d", tex)
	}
	return b.writeTexture(t, pixels)
}

func (b *wgpuGraphicsBackend) ReadTexture(tex TextureHandle) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.textures[tex]
	if !ok {
		return nil, b.fail(ErrorInvalidValue, "unknown texture %d", tex)
	}

	bpp := t.format.BytesPerPixel()
	rowBytes := uint32(t.width * bpp)
	// buffer copies require rows aligned to 256 bytes
	paddedRow := (rowBytes + 255) &^ 255
	size := uint64(paddedRow) * uint64(t.height)

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Readback Buffer",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, b.fail(ErrorOutOfMemory, "create readback buffer: %v", err)
	}
	defer buf.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, b.fail(ErrorInternal, "create command encoder: %v", err)
	}
	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: buf,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  paddedRow,
				RowsPerImage: uint32(t.height),
			},
		},
		&wgpu.Extent3D{
			Width:              uint32(t.width),
			Height:             uint32(t.height),
			DepthOrArrayLayers: 1,
		},
	)
	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return nil, b.fail(ErrorInvalidOperation, "finish readback: %v", err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	var status wgpu.BufferMapAsyncStatus
	if err := buf.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, b.fail(ErrorInvalidOperation, "map readback buffer: %v", err)
	}
	b.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, b.fail(ErrorInvalidOperation, "map readback buffer: status %v", status)
	}

	mapped := buf.GetMappedRange(0, uint(size))
	out := make([]byte, int(rowBytes)*t.height)
	for y := 0; y < t.height; y++ {
		copy(out[y*int(rowBytes):(y+1)*int(rowBytes)], mapped[y*int(paddedRow):])
	}
	buf.Unmap()
	return out, nil
}

func (b *wgpuGraphicsBackend) TextureSize(tex TextureHandle) (int, int, TextureFormat, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.textures[tex]
	if !ok {
		return 0, 0, 0, false
	}
	return t.width, t.height, t.format, true
}

func (b *wgpuGraphicsBackend) releaseTexture(h TextureHandle) {
	t, ok := b.textures[h]
	if !ok {
		return
	}
	t.view.Release()
	t.texture.Release()
	delete(b.textures, h)
}

func (b *wgpuGraphicsBackend) DeleteTexture(tex TextureHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseTexture(tex)
}

func (b *wgpuGraphicsBackend) newFramebuffer(label string, width, height int, format TextureFormat) (*wgpuFramebuffer, error) {
	color, err := b.newTexture(label+" Color", width, height, format, nil)
	if err != nil {
		return nil, err
	}
	fb := &wgpuFramebuffer{color: color}
	if !b.hasDepth {
		return fb, nil
	}

	depth, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label + " Depth",
		Usage:     wgpu.TextureUsageRenderAttachment,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		Format:        b.depthFormat,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		b.releaseTexture(color)
		return nil, b.fail(ErrorInvalidFramebufferOperation, "create depth attachment: %v", err)
	}
	depthView, err := depth.CreateView(nil)
	if err != nil {
		depth.Release()
		b.releaseTexture(color)
		return nil, b.fail(ErrorInvalidFramebufferOperation, "create depth view: %v", err)
	}
	fb.depth = depth
	fb.depthView = depthView
	return fb, nil
}

func (b *wgpuGraphicsBackend) releaseFramebuffer(fb *wgpuFramebuffer) {
	b.releaseTexture(fb.color)
	if fb.depthView != nil {
		fb.depthView.Release()
	}
	if fb.depth != nil {
		fb.depth.Release()
	}
}

func (b *wgpuGraphicsBackend) CreateFramebuffer(width, height int, format TextureFormat) (FramebufferHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fb, err := b.newFramebuffer("Framebuffer", width, height, format)
	if err != nil {
		return 0, err
	}
	h := FramebufferHandle(b.handle())
	b.framebuffers[h] = fb
	return h, nil
}

func (b *wgpuGraphicsBackend) framebuffer(fb FramebufferHandle) (*wgpuFramebuffer, bool) {
	if fb == DefaultFramebuffer {
		return b.defaultFB, b.defaultFB != nil
	}
	f, ok := b.framebuffers[fb]
	return f, ok
}

func (b *wgpuGraphicsBackend) FramebufferTexture(fb FramebufferHandle) TextureHandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.framebuffer(fb)
	if !ok {
		return 0
	}
	return f.color
}

func (b *wgpuGraphicsBackend) DeleteFramebuffer(fb FramebufferHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.framebuffers[fb]
	if !ok {
		return
	}
	b.releaseFramebuffer(f)
	delete(b.framebuffers, fb)
}

func (b *wgpuGraphicsBackend) CompileStage(stage ShaderStage, source string) (StageHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// naga is the compiler front end; its diagnostics become the stage's compile log.
	if _, err := naga.Compile(source); err != nil {
		return 0, b.fail(ErrorInvalidOperation, "%s stage: %v", stage, err)
	}

	s := &wgpuStage{stage: stage}
	if stage != StageGeometry {
		module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          stage.String() + " Shader Module",
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
		})
		if err != nil {
			return 0, b.fail(ErrorInvalidOperation, "%s stage: %v", stage, err)
		}
		s.module = module
	}

	h := StageHandle(b.handle())
	b.stages[h] = s
	return h, nil
}

func (b *wgpuGraphicsBackend) DeleteStage(stage StageHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.stages[stage]
	if !ok {
		return
	}
	if s.module != nil {
		s.module.Release()
	}
	delete(b.stages, stage)
}

func (b *wgpuGraphicsBackend) LinkProgram(desc ProgramDescriptor) (ProgramHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var vs, fs *wgpu.ShaderModule
	for _, h := range desc.Stages {
		s, ok := b.stages[h]
		if !ok {
			return 0, b.fail(ErrorInvalidOperation, "program %q: stage %d is not compiled", desc.Label, h)
		}
		switch s.stage {
		case StageVertex:
			vs = s.module
		case StageFragment:
			fs = s.module
		case StageGeometry:
			return 0, b.fail(ErrorInvalidOperation, "program %q: WebGPU has no geometry stage", desc.Label)
		}
	}
	if vs == nil || fs == nil {
		return 0, b.fail(ErrorInvalidOperation, "program %q: a vertex and a fragment stage are required", desc.Label)
	}

	p := &wgpuProgram{label: desc.Label, layout: desc.Layout}
	for i := range desc.Layout.BindGroupLayouts {
		layoutDesc := desc.Layout.BindGroupLayouts[i]
		layoutDesc.Label = fmt.Sprintf("%s Bind Group Layout %d", desc.Label, i)
		layout, err := b.device.CreateBindGroupLayout(&layoutDesc)
		if err != nil {
			b.releaseProgram(p)
			return 0, b.fail(ErrorInvalidOperation, "program %q: bind group layout %d: %v", desc.Label, i, err)
		}
		p.bindGroupLayouts = append(p.bindGroupLayouts, layout)
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label + " Pipeline Layout",
		BindGroupLayouts: p.bindGroupLayouts,
	})
	if err != nil {
		b.releaseProgram(p)
		return 0, b.fail(ErrorInvalidOperation, "program %q: pipeline layout: %v", desc.Label, err)
	}
	p.pipelineLayout = pipelineLayout

	var depthStencil *wgpu.DepthStencilState
	if b.hasDepth {
		depthStencil = &wgpu.DepthStencilState{
			Format:            b.depthFormat,
			DepthWriteEnabled: false,
			DepthCompare:      wgpu.CompareFunctionAlways,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	pipeline, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.Layout.VertexLayouts,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: desc.FragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    desc.TargetFormat.wgpu(),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		b.releaseProgram(p)
		return 0, b.fail(ErrorInvalidOperation, "program %q: render pipeline: %v", desc.Label, err)
	}
	p.pipeline = pipeline

	if desc.Layout.UniformSize > 0 {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label + " Uniform Buffer",
			Size:  uint64((desc.Layout.UniformSize + 15) &^ 15),
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			b.releaseProgram(p)
			return 0, b.fail(ErrorOutOfMemory, "program %q: uniform buffer: %v", desc.Label, err)
		}
		p.uniformBuffer = buf
	}

	h := ProgramHandle(b.handle())
	b.programs[h] = p
	return h, nil
}

func (b *wgpuGraphicsBackend) releaseProgram(p *wgpuProgram) {
	if p.uniformBuffer != nil {
		p.uniformBuffer.Release()
	}
	if p.pipeline != nil {
		p.pipeline.Release()
	}
	if p.pipelineLayout != nil {
		p.pipelineLayout.Release()
	}
	for _, l := range p.bindGroupLayouts {
		l.Release()
	}
}

func (b *wgpuGraphicsBackend) DeleteProgram(program ProgramHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.programs[program]
	if !ok {
		return
	}
	b.releaseProgram(p)
	delete(b.programs, program)
}

func (b *wgpuGraphicsBackend) CreateQuad() (QuadHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vertexData := make([]byte, len(quadVertices)*4)
	for i, v := range quadVertices {
		binary.LittleEndian.PutUint32(vertexData[i*4:], math.Float32bits(v))
	}
	indexData := make([]byte, len(quadIndices)*4)
	for i, v := range quadIndices {
		binary.LittleEndian.PutUint32(indexData[i*4:], v)
	}

	vb, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            "Quad Vertex Buffer",
		Size:             uint64(len(vertexData)),
		Usage:            wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return 0, b.fail(ErrorOutOfMemory, "quad vertex buffer: %v", err)
	}
	b.queue.WriteBuffer(vb, 0, vertexData)

	ib, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            "Quad Index Buffer",
		Size:             uint64(len(indexData)),
		Usage:            wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		vb.Release()
		return 0, b.fail(ErrorOutOfMemory, "quad index buffer: %v", err)
	}
	b.queue.WriteBuffer(ib, 0, indexData)

	h := QuadHandle(b.handle())
	b.quads[h] = &wgpuQuad{vertexBuffer: vb, indexBuffer: ib, indexCount: uint32(len(quadIndices))}
	return h, nil
}

func (b *wgpuGraphicsBackend) DeleteQuad(quad QuadHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.quads[quad]
	if !ok {
		return
	}
	q.vertexBuffer.Release()
	q.indexBuffer.Release()
	delete(b.quads, quad)
}

func (b *wgpuGraphicsBackend) depthAttachment(fb *wgpuFramebuffer) *wgpu.RenderPassDepthStencilAttachment {
	if fb.depthView == nil {
		return nil
	}
	att := &wgpu.RenderPassDepthStencilAttachment{
		View:            fb.depthView,
		DepthLoadOp:     wgpu.LoadOpClear,
		DepthStoreOp:    wgpu.StoreOpDiscard,
		DepthClearValue: 1.0,
	}
	if b.hasStencil {
		att.StencilLoadOp = wgpu.LoadOpClear
		att.StencilStoreOp = wgpu.StoreOpDiscard
		att.StencilClearValue = 0
	}
	return att
}

func (b *wgpuGraphicsBackend) Clear(fb FramebufferHandle, color [4]float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.framebuffer(fb)
	if !ok {
		return b.fail(ErrorInvalidFramebufferOperation, "unknown framebuffer %d", fb)
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return b.fail(ErrorInternal, "create command encoder: %v", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       b.textures[f.color].view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: float64(color[0]), G: float64(color[1]), B: float64(color[2]), A: float64(color[3])},
		}},
		DepthStencilAttachment: b.depthAttachment(f),
	})
	pass.End()
	return b.submit(encoder)
}

func (b *wgpuGraphicsBackend) submit(encoder *wgpu.CommandEncoder) error {
	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return b.fail(ErrorInvalidOperation, "finish command encoder: %v", err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuGraphicsBackend) Draw(call DrawCall) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.programs[call.Program]
	if !ok {
		return b.fail(ErrorInvalidOperation, "draw with unknown program %d", call.Program)
	}
	q, ok := b.quads[call.Quad]
	if !ok {
		return b.fail(ErrorInvalidOperation, "draw without quad geometry")
	}
	f, ok := b.framebuffer(call.Target)
	if !ok {
		return b.fail(ErrorInvalidFramebufferOperation, "draw into unknown framebuffer %d", call.Target)
	}
	target := b.textures[f.color]

	if p.uniformBuffer != nil && len(call.Uniforms) > 0 {
		b.queue.WriteBuffer(p.uniformBuffer, 0, call.Uniforms)
	}

	// a single bind group (group 0) carries the uniform block, textures and samplers of an effect program
	bindGroups := make([]*wgpu.BindGroup, 0, len(p.bindGroupLayouts))
	defer func() {
		for _, bg := range bindGroups {
			bg.Release()
		}
	}()
	for gi, layoutDesc := range p.layout.BindGroupLayouts {
		entries := make([]wgpu.BindGroupEntry, 0, len(layoutDesc.Entries))
		for _, e := range layoutDesc.Entries {
			switch {
			case e.Buffer.Type != wgpu.BufferBindingTypeUndefined:
				entries = append(entries, wgpu.BindGroupEntry{
					Binding: e.Binding,
					Buffer:  p.uniformBuffer,
					Offset:  0,
					Size:    wgpu.WholeSize,
				})
			case e.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
				entries = append(entries, wgpu.BindGroupEntry{Binding: e.Binding, Sampler: b.sampler})
			default:
				tex, ok := b.textures[call.Textures[int(e.Binding)]]
				if !ok {
					return b.fail(ErrorInvalidValue, "program %q: nothing bound at texture binding %d", p.label, e.Binding)
				}
				if tex == target {
					return b.fail(ErrorInvalidOperation, "texture at binding %d is also the render target", e.Binding)
				}
				entries = append(entries, wgpu.BindGroupEntry{Binding: e.Binding, TextureView: tex.view})
			}
		}
		bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s Bind Group %d", p.label, gi),
			Layout:  p.bindGroupLayouts[gi],
			Entries: entries,
		})
		if err != nil {
			return b.fail(ErrorInvalidOperation, "program %q: bind group %d: %v", p.label, gi, err)
		}
		bindGroups = append(bindGroups, bg)
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return b.fail(ErrorInternal, "create command encoder: %v", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       target.view,
			LoadOp:     wgpu.LoadOpLoad,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{},
		}},
		DepthStencilAttachment: b.depthAttachment(f),
	})

	vp := call.Viewport
	pass.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	pass.SetPipeline(p.pipeline)
	for i, bg := range bindGroups {
		pass.SetBindGroup(uint32(i), bg, nil)
	}
	pass.SetVertexBuffer(0, q.vertexBuffer, 0, wgpu.WholeSize)
	pass.SetIndexBuffer(q.indexBuffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	pass.DrawIndexed(q.indexCount, 1, 0, 0, 0)
	pass.End()

	return b.submit(encoder)
}

func (b *wgpuGraphicsBackend) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface == nil || b.presentPipeline == nil {
		return nil
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return b.fail(ErrorContextLost, "acquire surface texture: %v", err)
	}
	defer surfaceTexture.Release()
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return b.fail(ErrorInternal, "surface view: %v", err)
	}
	defer view.Release()

	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Present Bind Group",
		Layout: b.presentLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: b.textures[b.defaultFB.color].view},
			{Binding: 1, Sampler: b.sampler},
		},
	})
	if err != nil {
		return b.fail(ErrorInvalidOperation, "present bind group: %v", err)
	}
	defer bg.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return b.fail(ErrorInternal, "create command encoder: %v", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{A: 1},
		}},
	})
	pass.SetPipeline(b.presentPipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()
	if err := b.submit(encoder); err != nil {
		return err
	}
	b.surface.Present()
	return nil
}

func (b *wgpuGraphicsBackend) WaitIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device != nil {
		b.device.Poll(true, nil)
	}
}

func (b *wgpuGraphicsBackend) PopError() ErrorCode {
	b.mu.Lock()
	defer b.mu.Unlock()

	code := b.lastError
	b.lastError = ErrorNone
	return code
}

func (b *wgpuGraphicsBackend) MemoryUsage() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total uint64
	for _, t := range b.textures {
		total += uint64(t.width * t.height * t.format.BytesPerPixel())
	}
	depthBytes := func(fb *wgpuFramebuffer) uint64 {
		if fb.depth == nil {
			return 0
		}
		t := b.textures[fb.color]
		if t == nil {
			return 0
		}
		return uint64(t.width * t.height * 4)
	}
	for _, fb := range b.framebuffers {
		total += depthBytes(fb)
	}
	if b.defaultFB != nil {
		total += depthBytes(b.defaultFB)
	}
	return total
}

func (b *wgpuGraphicsBackend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for h, p := range b.programs {
		b.releaseProgram(p)
		delete(b.programs, h)
	}
	for h, s := range b.stages {
		if s.module != nil {
			s.module.Release()
		}
		delete(b.stages, h)
	}
	for h, q := range b.quads {
		q.vertexBuffer.Release()
		q.indexBuffer.Release()
		delete(b.quads, h)
	}
	for h, fb := range b.framebuffers {
		b.releaseFramebuffer(fb)
		delete(b.framebuffers, h)
	}
	if b.defaultFB != nil {
		b.releaseFramebuffer(b.defaultFB)
		b.defaultFB = nil
	}
	for h := range b.textures {
		b.releaseTexture(h)
	}
	if b.presentPipeline != nil {
		b.presentPipeline.Release()
		b.presentPipeline = nil
	}
	if b.presentLayout != nil {
		b.presentLayout.Release()
		b.presentLayout = nil
	}
	if b.sampler != nil {
		b.sampler.Release()
		b.sampler = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
