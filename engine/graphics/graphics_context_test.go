package graphics

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeSoftware(t *testing.T) {
	ctx := newTestContext(t, 64, 32)

	assert.True(t, ctx.IsInitialized())
	assert.False(t, ctx.IsCurrent(), "initialize leaves the context released")
	assert.Equal(t, 64, ctx.Width())
	assert.Equal(t, 32, ctx.Height())
	assert.Equal(t, BackendSoftware, ctx.BackendType())

	caps := ctx.Capabilities()
	assert.GreaterOrEqual(t, caps.MajorVersion, 3)
	assert.True(t, caps.SupportsFramebuffers)
	assert.True(t, caps.HasExtension("software_kernels"))
	assert.False(t, caps.HasExtension("float32-filterable"))

	assert.Equal(t, Viewport{Width: 64, Height: 32}, ctx.Viewport())
	assert.Contains(t, ctx.GPUInfo(), "Software 3.0")
	assert.True(t, strings.HasPrefix(ctx.DebugInfo(), "Backend: software\n"))
}

func TestInitializeRejectsInvalidSize(t *testing.T) {
	ctx := NewGraphicsContext(WithBackendType(BackendSoftware), WithLogger(quietLogger()))
	err := ctx.Initialize(0, 10)
	require.Error(t, err)

	var cerr *ContextError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "configure surface", cerr.Step)
	assert.False(t, ctx.IsInitialized())
	assert.NotEmpty(t, ctx.LastError())
}

func TestInitializeRejectsShallowColor(t *testing.T) {
	cfg := DefaultContextConfig()
	cfg.AlphaBits = 0
	ctx := NewGraphicsContext(WithBackendType(BackendSoftware), WithContextConfig(cfg), WithLogger(quietLogger()))

	err := ctx.Initialize(8, 8)
	var cerr *ContextError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "choose config", cerr.Step)
}

type oldAPIBackend struct {
	*softwareGraphicsBackend
}

func (b oldAPIBackend) Capabilities() Capabilities {
	caps := b.softwareGraphicsBackend.Capabilities()
	caps.MajorVersion = 2
	return caps
}

func TestInitializeRejectsOldAPIVersion(t *testing.T) {
	ctx := NewGraphicsContext(WithBackend(oldAPIBackend{newSoftwareGraphicsBackend(nil)}), WithLogger(quietLogger()))

	err := ctx.Initialize(8, 8)
	var cerr *ContextError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "validate version", cerr.Step)
	assert.False(t, ctx.IsInitialized())
}

func TestOperationsBeforeInitialize(t *testing.T) {
	ctx := NewGraphicsContext(WithBackendType(BackendSoftware), WithLogger(quietLogger()))

	assert.False(t, ctx.MakeCurrent())
	assert.Equal(t, TextureHandle(0), ctx.CreateTexture(4, 4, TextureFormatRGBA8, nil))
	assert.Equal(t, FramebufferHandle(0), ctx.CreateFramebuffer(4, 4, TextureFormatRGBA8))
	_, err := ctx.ReadTexture(1)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, uint64(0), ctx.MemoryUsage())
}

func TestInitializeRetryBuildsFreshBackend(t *testing.T) {
	ctx := NewGraphicsContext(
		WithBackendType(BackendSoftware),
		WithBackend(oldAPIBackend{newSoftwareGraphicsBackend(nil)}),
		WithLogger(quietLogger()),
	)
	require.Error(t, ctx.Initialize(4, 4))

	require.NoError(t, ctx.Initialize(4, 4))
	t.Cleanup(ctx.Destroy)
	assert.True(t, ctx.IsInitialized())
	assert.Equal(t, 3, ctx.Capabilities().MajorVersion)
	assert.NotZero(t, ctx.CreateTexture(4, 4, TextureFormatRGBA8, nil))

	assert.Error(t, ctx.Initialize(4, 4))
	assert.True(t, ctx.IsInitialized(), "a repeated initialize keeps the live backend")
	assert.NotZero(t, ctx.CreateTexture(4, 4, TextureFormatRGBA8, nil))
}

func TestMakeCurrentRelease(t *testing.T) {
	ctx := newTestContext(t, 4, 4)

	assert.False(t, ctx.ReleaseContext())
	assert.True(t, ctx.MakeCurrent())
	assert.True(t, ctx.MakeCurrent(), "repeat from the owner")
	assert.True(t, ctx.IsCurrent())
	assert.True(t, ctx.ReleaseContext())
	assert.False(t, ctx.IsCurrent())
	assert.False(t, ctx.ReleaseContext())
}

type handoff struct {
	current, made, released bool
}

func TestContextOwnershipIsPerGoroutine(t *testing.T) {
	ctx := newTestContext(t, 4, 4)
	require.True(t, ctx.MakeCurrent())

	done := make(chan handoff)
	go func() {
		done <- handoff{current: ctx.IsCurrent(), made: ctx.MakeCurrent(), released: ctx.ReleaseContext()}
	}()
	foreign := <-done
	assert.Equal(t, handoff{}, foreign, "a second goroutine can neither take nor release the context")
	assert.Contains(t, ctx.LastError(), ErrContextBusy.Error())
	assert.True(t, ctx.IsCurrent(), "the owner keeps the context")

	require.True(t, ctx.ReleaseContext())
	go func() {
		made := ctx.MakeCurrent()
		current := ctx.IsCurrent()
		done <- handoff{current: current, made: made, released: ctx.ReleaseContext()}
	}()
	assert.Equal(t, handoff{current: true, made: true, released: true}, <-done, "released contexts hand off")
	assert.False(t, ctx.IsCurrent())
}

func TestCreateFramebufferZeroSize(t *testing.T) {
	ctx := newTestContext(t, 16, 16)
	before := ctx.MemoryUsage()

	assert.Equal(t, FramebufferHandle(0), ctx.CreateFramebuffer(0, 0, TextureFormatRGBA8))
	assert.Equal(t, FramebufferHandle(0), ctx.CreateFramebuffer(16, 0, TextureFormatRGBA8))

	assert.Equal(t, 0, ctx.FramebufferCount())
	assert.Equal(t, 0, ctx.TextureCount())
	assert.Equal(t, before, ctx.MemoryUsage())
	assert.Contains(t, ctx.LastError(), "zero-sized attachment")
}

func TestCreateFramebufferUnsupportedFormat(t *testing.T) {
	ctx := newTestContext(t, 16, 16)
	before := ctx.MemoryUsage()

	assert.Equal(t, FramebufferHandle(0), ctx.CreateFramebuffer(16, 16, TextureFormatRGBA16F))
	assert.Equal(t, 0, ctx.FramebufferCount())
	assert.Equal(t, before, ctx.MemoryUsage())
}

func TestFramebufferLifecycle(t *testing.T) {
	ctx := newTestContext(t, 8, 8)

	fb := ctx.CreateFramebuffer(8, 8, TextureFormatRGBA8)
	require.NotZero(t, fb)
	assert.Equal(t, 1, ctx.FramebufferCount())

	tex := ctx.FramebufferTexture(fb)
	require.NotZero(t, tex)
	w, h, ok := ctx.TextureSize(tex)
	require.True(t, ok)
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, h)

	ctx.BindFramebuffer(fb)
	assert.Equal(t, fb, ctx.BoundFramebuffer())

	ctx.DeleteFramebuffer(fb)
	assert.Equal(t, 0, ctx.FramebufferCount())
	assert.Equal(t, DefaultFramebuffer, ctx.BoundFramebuffer())
	assert.Equal(t, TextureHandle(0), ctx.FramebufferTexture(fb))
}

func TestTextureRoundTrip(t *testing.T) {
	ctx := newTestContext(t, 4, 4)

	pixels := solidPixels(2, 2, [4]uint8{10, 20, 30, 255})
	tex := ctx.CreateTexture(2, 2, TextureFormatRGBA8, pixels)
	require.NotZero(t, tex)
	assert.Equal(t, 1, ctx.TextureCount())

	got, err := ctx.ReadTexture(tex)
	require.NoError(t, err)
	assert.Equal(t, pixels, got)

	updated := solidPixels(2, 2, [4]uint8{1, 2, 3, 4})
	assert.True(t, ctx.UpdateTexture(tex, updated))
	got, err = ctx.ReadTexture(tex)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	assert.False(t, ctx.UpdateTexture(tex, []byte{1, 2, 3}))

	ctx.DeleteTexture(tex)
	assert.Equal(t, 0, ctx.TextureCount())
	_, err = ctx.ReadTexture(tex)
	assert.Error(t, err)
}

func TestCreateVideoFrameTexture(t *testing.T) {
	ctx := newTestContext(t, 4, 4)

	tex := ctx.CreateVideoFrameTexture(320, 180)
	require.NotZero(t, tex)
	w, h, ok := ctx.TextureSize(tex)
	require.True(t, ok)
	assert.Equal(t, 320, w)
	assert.Equal(t, 180, h)

	assert.Equal(t, TextureHandle(0), ctx.CreateVideoFrameTexture(0, 180))
}

func TestClearFramebuffer(t *testing.T) {
	ctx := newTestContext(t, 4, 4)

	fb := ctx.CreateFramebuffer(2, 2, TextureFormatRGBA8)
	require.NotZero(t, fb)
	require.True(t, ctx.ClearFramebuffer(fb, 1, 0, 0.5, 1))

	got, err := ctx.ReadTexture(ctx.FramebufferTexture(fb))
	require.NoError(t, err)
	assert.Equal(t, solidPixels(2, 2, [4]uint8{255, 0, 128, 255}), got)

	assert.False(t, ctx.ClearFramebuffer(FramebufferHandle(9999), 0, 0, 0, 1))
	assert.True(t, ctx.ClearScreen(0, 0, 0, 1))
}

func TestDrawQuadPassthrough(t *testing.T) {
	ctx := newTestContext(t, 4, 4)
	prog := linkPassthrough(t, ctx)
	quad, err := ctx.CreateQuad()
	require.NoError(t, err)

	src := ctx.CreateTexture(4, 4, TextureFormatRGBA8, solidPixels(4, 4, [4]uint8{200, 100, 50, 255}))
	fb := ctx.CreateFramebuffer(4, 4, TextureFormatRGBA8)
	require.NotZero(t, fb)

	ctx.BindFramebuffer(fb)
	ctx.SetViewport(0, 0, 4, 4)
	require.NoError(t, ctx.DrawQuad(prog, quad, nil, map[int]TextureHandle{0: src}))
	assert.True(t, ctx.CheckError("DrawQuad"))

	got, err := ctx.ReadTexture(ctx.FramebufferTexture(fb))
	require.NoError(t, err)
	assert.Equal(t, solidPixels(4, 4, [4]uint8{200, 100, 50, 255}), got)
}

func TestDrawRespectsViewport(t *testing.T) {
	ctx := newTestContext(t, 4, 4)
	prog := linkPassthrough(t, ctx)
	quad, err := ctx.CreateQuad()
	require.NoError(t, err)

	src := ctx.CreateTexture(1, 1, TextureFormatRGBA8, []byte{255, 255, 255, 255})
	fb := ctx.CreateFramebuffer(4, 4, TextureFormatRGBA8)
	require.True(t, ctx.ClearFramebuffer(fb, 0, 0, 0, 1))

	require.NoError(t, ctx.Draw(DrawCall{
		Program:  prog,
		Quad:     quad,
		Target:   fb,
		Viewport: Viewport{X: 2, Y: 0, Width: 2, Height: 4},
		Textures: map[int]TextureHandle{0: src},
	}))

	got, err := ctx.ReadTexture(ctx.FramebufferTexture(fb))
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := uint8(0)
			if x >= 2 {
				want = 255
			}
			assert.Equal(t, want, got[(y*4+x)*4], "pixel (%d,%d)", x, y)
		}
	}
}

func TestDrawRejectsFeedbackLoop(t *testing.T) {
	ctx := newTestContext(t, 4, 4)
	prog := linkPassthrough(t, ctx)
	quad, err := ctx.CreateQuad()
	require.NoError(t, err)

	fb := ctx.CreateFramebuffer(4, 4, TextureFormatRGBA8)
	ctx.BindFramebuffer(fb)
	err = ctx.DrawQuad(prog, quad, nil, map[int]TextureHandle{0: ctx.FramebufferTexture(fb)})
	assert.Error(t, err)
	assert.NotEmpty(t, ctx.LastError())
}

func TestDrawUnknownProgram(t *testing.T) {
	ctx := newTestContext(t, 4, 4)
	quad, err := ctx.CreateQuad()
	require.NoError(t, err)

	assert.Error(t, ctx.DrawQuad(ProgramHandle(12345), quad, nil, nil))
}

func TestLinkRejectsGeometryStage(t *testing.T) {
	ctx := newTestContext(t, 4, 4)

	vs, err := ctx.CompileStage(StageVertex, testVertexSource)
	require.NoError(t, err)
	fs, err := ctx.CompileStage(StageFragment, testFragmentSource)
	require.NoError(t, err)
	gs, err := ctx.CompileStage(StageGeometry, "fn passthrough() {}")
	require.NoError(t, err)

	prog, err := ctx.LinkProgram(ProgramDescriptor{
		Label:  "geometry",
		Stages: []StageHandle{vs, fs, gs},
		Kernel: func(KernelEnv) FragmentFunc { return nil },
	})
	assert.Error(t, err)
	assert.Equal(t, ProgramHandle(0), prog)
}

func TestResize(t *testing.T) {
	ctx := newTestContext(t, 4, 4)

	require.True(t, ctx.Resize(8, 6))
	assert.Equal(t, 8, ctx.Width())
	assert.Equal(t, 6, ctx.Height())
	w, h, ok := ctx.TextureSize(ctx.FramebufferTexture(DefaultFramebuffer))
	require.True(t, ok)
	assert.Equal(t, 8, w)
	assert.Equal(t, 6, h)

	assert.False(t, ctx.Resize(0, 6))
	assert.Equal(t, 8, ctx.Width())
}

func TestDestroyFreesEverything(t *testing.T) {
	ctx := NewGraphicsContext(WithBackendType(BackendSoftware), WithLogger(quietLogger()))
	require.NoError(t, ctx.Initialize(4, 4))

	ctx.CreateTexture(4, 4, TextureFormatRGBA8, nil)
	ctx.CreateFramebuffer(4, 4, TextureFormatRGBA8)
	require.NotZero(t, ctx.MemoryUsage())

	ctx.Destroy()
	assert.False(t, ctx.IsInitialized())
	assert.False(t, ctx.IsCurrent())
	assert.Equal(t, 0, ctx.TextureCount())
	assert.Equal(t, 0, ctx.FramebufferCount())
	assert.Equal(t, uint64(0), ctx.MemoryUsage())
}

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		in      string
		want    BackendType
		wantErr bool
	}{
		{"wgpu", BackendWGPU, false},
		{"", BackendWGPU, false},
		{"software", BackendSoftware, false},
		{"cpu", BackendSoftware, false},
		{"opengl", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackendType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
