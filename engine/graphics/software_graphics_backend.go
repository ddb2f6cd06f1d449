package graphics

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/anthonynsimon/bild/parallel"
)

// softwareMaxTextureSize mirrors the 2D texture limit guaranteed by WebGPU so both backends accept the same inputs.
const softwareMaxTextureSize = 8192

type softwareTexture struct {
	img    *image.RGBA
	format TextureFormat
}

type softwareFramebuffer struct {
	color TextureHandle
	depth []float32
}

type softwareStage struct {
	stage  ShaderStage
	source string
}

type softwareProgram struct {
	label  string
	layout ProgramLayout
	kernel FragmentKernel
}

// softwareGraphicsBackend rasterizes full-screen draws on the CPU. Each draw evaluates the program's
// fragment kernel at every pixel center of the viewport, fanning rows out to a worker pool.
type softwareGraphicsBackend struct {
	mu sync.Mutex

	pool worker.DynamicWorkerPool

	nextHandle uint32

	defaultFB    *softwareFramebuffer
	textures     map[TextureHandle]*softwareTexture
	framebuffers map[FramebufferHandle]*softwareFramebuffer
	stages       map[StageHandle]softwareStage
	programs     map[ProgramHandle]*softwareProgram
	quads        map[QuadHandle]struct{}

	lastError ErrorCode
}

var _ GraphicsBackend = &softwareGraphicsBackend{}

func newSoftwareGraphicsBackend(pool worker.DynamicWorkerPool) *softwareGraphicsBackend {
	return &softwareGraphicsBackend{
		pool:         pool,
		textures:     make(map[TextureHandle]*softwareTexture),
		framebuffers: make(map[FramebufferHandle]*softwareFramebuffer),
		stages:       make(map[StageHandle]softwareStage),
		programs:     make(map[ProgramHandle]*softwareProgram),
		quads:        make(map[QuadHandle]struct{}),
	}
}

// NewSoftwareGraphicsBackend creates a CPU backend for use with WithBackend, typically to wrap or decorate it.
//
// Parameters:
//   - pool: optional worker pool used to shade rows concurrently; nil shades with bild's parallel helper
//
// Returns:
//   - GraphicsBackend: the backend
func NewSoftwareGraphicsBackend(pool worker.DynamicWorkerPool) GraphicsBackend {
	return newSoftwareGraphicsBackend(pool)
}

func (b *softwareGraphicsBackend) handle() uint32 {
	b.nextHandle++
	return b.nextHandle
}

func (b *softwareGraphicsBackend) fail(code ErrorCode, format string, args ...any) error {
	b.lastError = code
	return newBackendError(code, format, args...)
}

func (b *softwareGraphicsBackend) Init(width, height int, cfg ContextConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cfg.RedBits > 8 || cfg.GreenBits > 8 || cfg.BlueBits > 8 || cfg.AlphaBits > 8 {
		return b.fail(ErrorInvalidValue, "software backend supports at most 8 bits per color channel")
	}
	fb, err := b.newFramebuffer(width, height, TextureFormatRGBA8)
	if err != nil {
		return err
	}
	b.defaultFB = fb
	return nil
}

func (b *softwareGraphicsBackend) Capabilities() Capabilities {
	return Capabilities{
		APIName:                  "Software",
		MajorVersion:             3,
		MinorVersion:             0,
		Renderer:                 "oxy-fx software rasterizer",
		MaxTextureSize:           softwareMaxTextureSize,
		MaxRenderbufferSize:      softwareMaxTextureSize,
		MaxUniformBlockSize:      64 << 10,
		MaxColorAttachments:      1,
		Extensions:               []string{"software_kernels"},
		SupportsFramebuffers:     true,
		SupportsFloatTextures:    false,
		SupportsHalfFloatTexture: false,
		SupportsDepthTexture:     false,
	}
}

func (b *softwareGraphicsBackend) ResizeDefault(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fb, err := b.newFramebuffer(width, height, TextureFormatRGBA8)
	if err != nil {
		return err
	}
	if b.defaultFB != nil {
		delete(b.textures, b.defaultFB.color)
	}
	b.defaultFB = fb
	return nil
}

func (b *softwareGraphicsBackend) newTexture(width, height int, format TextureFormat, pixels []byte) (TextureHandle, error) {
	if width <= 0 || height <= 0 {
		return 0, b.fail(ErrorInvalidValue, "texture size %dx%d", width, height)
	}
	if width > softwareMaxTextureSize || height > softwareMaxTextureSize {
		return 0, b.fail(ErrorInvalidValue, "texture size %dx%d exceeds %d", width, height, softwareMaxTextureSize)
	}
	if format != TextureFormatRGBA8 {
		return 0, b.fail(ErrorInvalidEnum, "software backend does not support format %s", format)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if pixels != nil {
		if len(pixels) != len(img.Pix) {
			return 0, b.fail(ErrorInvalidValue, "pixel data is %d bytes, expected %d", len(pixels), len(img.Pix))
		}
		copy(img.Pix, pixels)
	}
	h := TextureHandle(b.handle())
	b.textures[h] = &softwareTexture{img: img, format: format}
	return h, nil
}

func (b *softwareGraphicsBackend) CreateTexture(width, height int, format TextureFormat, pixels []byte) (TextureHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newTexture(width, height, format, pixels)
}

func (b *softwareGraphicsBackend) WriteTexture(tex TextureHandle, pixels []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.textures[tex]
	if !ok {
		return b.fail(ErrorInvalidValue, "unknown texture %d", tex)
	}
	if len(pixels) != len(t.img.Pix) {
		return b.fail(ErrorInvalidValue, "pixel data is %d bytes, expected %d", len(pixels), len(t.img.Pix))
	}
	copy(t.img.Pix, pixels)
	return nil
}

func (b *softwareGraphicsBackend) ReadTexture(tex TextureHandle) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.textures[tex]
	if !ok {
		return nil, b.fail(ErrorInvalidValue, "unknown texture %d", tex)
	}
	out := make([]byte, len(t.img.Pix))
	copy(out, t.img.Pix)
	return out, nil
}

func (b *softwareGraphicsBackend) TextureSize(tex TextureHandle) (int, int, TextureFormat, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.textures[tex]
	if !ok {
		return 0, 0, 0, false
	}
	r := t.img.Bounds()
	return r.Dx(), r.Dy(), t.format, true
}

func (b *softwareGraphicsBackend) DeleteTexture(tex TextureHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.textures, tex)
}

func (b *softwareGraphicsBackend) newFramebuffer(width, height int, format TextureFormat) (*softwareFramebuffer, error) {
	color, err := b.newTexture(width, height, format, nil)
	if err != nil {
		return nil, err
	}
	fb := &softwareFramebuffer{color: color, depth: make([]float32, width*height)}
	for i := range fb.depth {
		fb.depth[i] = 1
	}

	// completeness: the color attachment and depth plane must agree in size
	t := b.textures[color]
	if t.img.Bounds().Dx()*t.img.Bounds().Dy() != len(fb.depth) {
		delete(b.textures, color)
		return nil, b.fail(ErrorInvalidFramebufferOperation, "incomplete framebuffer attachments")
	}
	return fb, nil
}

func (b *softwareGraphicsBackend) CreateFramebuffer(width, height int, format TextureFormat) (FramebufferHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fb, err := b.newFramebuffer(width, height, format)
	if err != nil {
		return 0, err
	}
	h := FramebufferHandle(b.handle())
	b.framebuffers[h] = fb
	return h, nil
}

func (b *softwareGraphicsBackend) framebuffer(fb FramebufferHandle) (*softwareFramebuffer, bool) {
	if fb == DefaultFramebuffer {
		return b.defaultFB, b.defaultFB != nil
	}
	f, ok := b.framebuffers[fb]
	return f, ok
}

func (b *softwareGraphicsBackend) FramebufferTexture(fb FramebufferHandle) TextureHandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.framebuffer(fb)
	if !ok {
		return 0
	}
	return f.color
}

func (b *softwareGraphicsBackend) DeleteFramebuffer(fb FramebufferHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.framebuffers[fb]
	if !ok {
		return
	}
	delete(b.textures, f.color)
	delete(b.framebuffers, fb)
}

func (b *softwareGraphicsBackend) CompileStage(stage ShaderStage, source string) (StageHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if strings.TrimSpace(source) == "" {
		return 0, b.fail(ErrorInvalidValue, "%s stage: empty source", stage)
	}
	if err := checkBalanced(source); err != nil {
		return 0, b.fail(ErrorInvalidOperation, "%s stage: %v", stage, err)
	}
	switch stage {
	case StageVertex:
		if !strings.Contains(source, "@vertex") {
			return 0, b.fail(ErrorInvalidOperation, "vertex stage: missing @vertex entry point")
		}
	case StageFragment:
		if !strings.Contains(source, "@fragment") {
			return 0, b.fail(ErrorInvalidOperation, "fragment stage: missing @fragment entry point")
		}
	}
	h := StageHandle(b.handle())
	b.stages[h] = softwareStage{stage: stage, source: source}
	return h, nil
}

func (b *softwareGraphicsBackend) DeleteStage(stage StageHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.stages, stage)
}

func (b *softwareGraphicsBackend) LinkProgram(desc ProgramDescriptor) (ProgramHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var hasVertex, hasFragment bool
	for _, s := range desc.Stages {
		st, ok := b.stages[s]
		if !ok {
			return 0, b.fail(ErrorInvalidOperation, "program %q: stage %d is not compiled", desc.Label, s)
		}
		switch st.stage {
		case StageVertex:
			hasVertex = true
		case StageFragment:
			hasFragment = true
		case StageGeometry:
			return 0, b.fail(ErrorInvalidOperation, "program %q: geometry stages are not supported by the software backend", desc.Label)
		}
	}
	if !hasVertex || !hasFragment {
		return 0, b.fail(ErrorInvalidOperation, "program %q: a vertex and a fragment stage are required", desc.Label)
	}
	if desc.Kernel == nil {
		return 0, b.fail(ErrorInvalidOperation, "program %q: no software kernel attached", desc.Label)
	}

	h := ProgramHandle(b.handle())
	b.programs[h] = &softwareProgram{label: desc.Label, layout: desc.Layout, kernel: desc.Kernel}
	return h, nil
}

func (b *softwareGraphicsBackend) DeleteProgram(program ProgramHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.programs, program)
}

func (b *softwareGraphicsBackend) CreateQuad() (QuadHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := QuadHandle(b.handle())
	b.quads[h] = struct{}{}
	return h, nil
}

func (b *softwareGraphicsBackend) DeleteQuad(quad QuadHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.quads, quad)
}

func (b *softwareGraphicsBackend) Clear(fb FramebufferHandle, color [4]float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.framebuffer(fb)
	if !ok {
		return b.fail(ErrorInvalidFramebufferOperation, "unknown framebuffer %d", fb)
	}
	px := [4]uint8{toUnorm8(color[0]), toUnorm8(color[1]), toUnorm8(color[2]), toUnorm8(color[3])}
	pix := b.textures[f.color].img.Pix
	for i := 0; i < len(pix); i += 4 {
		copy(pix[i:i+4], px[:])
	}
	for i := range f.depth {
		f.depth[i] = 1
	}
	return nil
}

func (b *softwareGraphicsBackend) Draw(call DrawCall) error {
	b.mu.Lock()
	prog, ok := b.programs[call.Program]
	if !ok {
		err := b.fail(ErrorInvalidOperation, "draw with unknown program %d", call.Program)
		b.mu.Unlock()
		return err
	}
	if _, ok := b.quads[call.Quad]; !ok {
		err := b.fail(ErrorInvalidOperation, "draw without quad geometry")
		b.mu.Unlock()
		return err
	}
	f, ok := b.framebuffer(call.Target)
	if !ok {
		err := b.fail(ErrorInvalidFramebufferOperation, "draw into unknown framebuffer %d", call.Target)
		b.mu.Unlock()
		return err
	}
	target := b.textures[f.color].img
	samplers := make(map[int]Sampler, len(call.Textures))
	for slot, tex := range call.Textures {
		t, ok := b.textures[tex]
		if !ok {
			err := b.fail(ErrorInvalidValue, "draw samples unknown texture %d at binding %d", tex, slot)
			b.mu.Unlock()
			return err
		}
		if t.img == target {
			err := b.fail(ErrorInvalidOperation, "texture %d is both sampled and rendered to", tex)
			b.mu.Unlock()
			return err
		}
		samplers[slot] = &softwareSampler{img: t.img}
	}
	b.mu.Unlock()

	vp := call.Viewport
	bounds := target.Bounds()
	clip := image.Rect(vp.X, vp.Y, vp.X+vp.Width, vp.Y+vp.Height).Intersect(bounds)
	if clip.Empty() || vp.Width <= 0 || vp.Height <= 0 {
		return nil
	}

	frag := prog.kernel(&kernelEnv{
		layout:   prog.layout,
		uniforms: call.Uniforms,
		samplers: samplers,
		viewport: vp,
	})
	if frag == nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.fail(ErrorInvalidOperation, "program %q produced no fragment function", prog.label)
	}

	shadeRows := func(start, end int) {
		for y := clip.Min.Y + start; y < clip.Min.Y+end; y++ {
			v := (float32(y-vp.Y) + 0.5) / float32(vp.Height)
			row := target.Pix[y*target.Stride:]
			for x := clip.Min.X; x < clip.Max.X; x++ {
				u := (float32(x-vp.X) + 0.5) / float32(vp.Width)
				c := frag(u, v)
				i := x * 4
				row[i] = toUnorm8(c[0])
				row[i+1] = toUnorm8(c[1])
				row[i+2] = toUnorm8(c[2])
				row[i+3] = toUnorm8(c[3])
			}
		}
	}

	b.dispatchRows(clip.Dy(), shadeRows)
	return nil
}

// dispatchRows splits rows [0, rows) into bands and shades them concurrently, returning once all bands are done.
func (b *softwareGraphicsBackend) dispatchRows(rows int, fn func(start, end int)) {
	if b.pool == nil {
		parallel.Line(rows, fn)
		return
	}

	const band = 32
	var wg sync.WaitGroup
	id := 0
	for start := 0; start < rows; start += band {
		end := min(start+band, rows)
		wg.Add(1)
		s, e := start, end
		b.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				fn(s, e)
				return nil, nil
			},
		})
		id++
	}
	wg.Wait()
}

func (b *softwareGraphicsBackend) Present() error {
	return nil
}

func (b *softwareGraphicsBackend) WaitIdle() {}

func (b *softwareGraphicsBackend) PopError() ErrorCode {
	b.mu.Lock()
	defer b.mu.Unlock()

	code := b.lastError
	b.lastError = ErrorNone
	return code
}

func (b *softwareGraphicsBackend) MemoryUsage() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total uint64
	for _, t := range b.textures {
		total += uint64(len(t.img.Pix))
	}
	for _, f := range b.framebuffers {
		total += uint64(len(f.depth) * 4)
	}
	if b.defaultFB != nil {
		total += uint64(len(b.defaultFB.depth) * 4)
	}
	return total
}

func (b *softwareGraphicsBackend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.textures = make(map[TextureHandle]*softwareTexture)
	b.framebuffers = make(map[FramebufferHandle]*softwareFramebuffer)
	b.stages = make(map[StageHandle]softwareStage)
	b.programs = make(map[ProgramHandle]*softwareProgram)
	b.quads = make(map[QuadHandle]struct{})
	b.defaultFB = nil
}

// checkBalanced reports the first unbalanced bracket in WGSL source, ignoring comments.
func checkBalanced(source string) error {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	var stack []rune
	line := 1
	inLine, inBlock := false, false
	runes := []rune(source)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			line++
			inLine = false
			continue
		}
		if inLine {
			continue
		}
		if inBlock {
			if r == '*' && i+1 < len(runes) && runes[i+1] == '/' {
				inBlock = false
				i++
			}
			continue
		}
		if r == '/' && i+1 < len(runes) {
			if runes[i+1] == '/' {
				inLine = true
				i++
				continue
			}
			if runes[i+1] == '*' {
				inBlock = true
				i++
				continue
			}
		}
		switch r {
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Errorf("line %d: unexpected %q", line, r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("line %d: unclosed %q", line, stack[len(stack)-1])
	}
	return nil
}
