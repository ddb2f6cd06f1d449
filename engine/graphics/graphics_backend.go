package graphics

import "fmt"

// BackendType selects the implementation behind a GraphicsContext.
type BackendType int

const (
	// BackendWGPU renders on the GPU through WebGPU.
	BackendWGPU BackendType = iota
	// BackendSoftware rasterizes on the CPU with Go fragment kernels. It needs no GPU and is deterministic.
	BackendSoftware
)

// String returns the backend name as used in configuration files.
func (b BackendType) String() string {
	switch b {
	case BackendWGPU:
		return "wgpu"
	case BackendSoftware:
		return "software"
	default:
		return fmt.Sprintf("BackendType(%d)", int(b))
	}
}

// ParseBackendType maps a configuration string to a BackendType.
//
// Parameters:
//   - s: "wgpu", "gpu", or "software"
//
// Returns:
//   - BackendType: the parsed backend
//   - error: error if the name is unknown
func ParseBackendType(s string) (BackendType, error) {
	switch s {
	case "wgpu", "gpu", "":
		return BackendWGPU, nil
	case "software", "cpu":
		return BackendSoftware, nil
	default:
		return 0, fmt.Errorf("unknown graphics backend %q", s)
	}
}

// GraphicsBackend is the low level device abstraction the GraphicsContext drives.
// Implementations are not required to be safe for concurrent use; the context serializes access.
type GraphicsBackend interface {
	// Init creates the device and the default framebuffer of the given size.
	Init(width, height int, cfg ContextConfig) error

	// Capabilities reports what the initialized device supports.
	Capabilities() Capabilities

	// ResizeDefault reallocates the default framebuffer.
	ResizeDefault(width, height int) error

	// CreateTexture allocates a 2D texture with linear filtering, clamp-to-edge addressing and no mipmaps.
	// pixels may be nil to leave the contents zeroed.
	CreateTexture(width, height int, format TextureFormat, pixels []byte) (TextureHandle, error)

	// WriteTexture replaces the full contents of a texture.
	WriteTexture(tex TextureHandle, pixels []byte) error

	// ReadTexture copies the contents of a texture back to host memory, tightly packed.
	ReadTexture(tex TextureHandle) ([]byte, error)

	// TextureSize returns the dimensions and format of a texture.
	TextureSize(tex TextureHandle) (int, int, TextureFormat, bool)

	// DeleteTexture frees a texture. Unknown handles are ignored.
	DeleteTexture(tex TextureHandle)

	// CreateFramebuffer allocates a color texture and a depth-stencil attachment and validates completeness.
	CreateFramebuffer(width, height int, format TextureFormat) (FramebufferHandle, error)

	// FramebufferTexture returns the color texture of a framebuffer.
	FramebufferTexture(fb FramebufferHandle) TextureHandle

	// DeleteFramebuffer frees a framebuffer and its attachments.
	DeleteFramebuffer(fb FramebufferHandle)

	// CompileStage compiles one shader stage. The returned error carries the compiler log.
	CompileStage(stage ShaderStage, source string) (StageHandle, error)

	// DeleteStage frees a compiled stage.
	DeleteStage(stage StageHandle)

	// LinkProgram links compiled stages into an executable program.
	LinkProgram(desc ProgramDescriptor) (ProgramHandle, error)

	// DeleteProgram frees a program.
	DeleteProgram(program ProgramHandle)

	// CreateQuad uploads full-screen quad geometry.
	CreateQuad() (QuadHandle, error)

	// DeleteQuad frees quad geometry.
	DeleteQuad(quad QuadHandle)

	// Clear fills a framebuffer with a color.
	Clear(fb FramebufferHandle, color [4]float32) error

	// Draw submits one full-screen draw.
	Draw(call DrawCall) error

	// Present shows the default framebuffer on the platform surface, if one is attached.
	Present() error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle()

	// PopError returns and clears the asynchronous error state of the device.
	PopError() ErrorCode

	// MemoryUsage returns the bytes allocated for textures and framebuffers.
	MemoryUsage() uint64

	// Destroy frees every resource and the device itself.
	Destroy()
}
