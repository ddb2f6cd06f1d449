package graphics

import (
	"sync"
)

type framebufferKey struct {
	width, height int
	format        TextureFormat
}

// FramebufferPool recycles intermediate framebuffers between passes of an effect chain.
// Framebuffers are keyed by size and format; a checked-out framebuffer belongs to the caller until it is checked back in.
type FramebufferPool struct {
	mu sync.Mutex

	ctx   GraphicsContext
	idle  map[framebufferKey][]FramebufferHandle
	owned map[FramebufferHandle]framebufferKey
	busy  map[FramebufferHandle]struct{}
}

// NewFramebufferPool creates an empty pool that allocates through ctx.
//
// Parameters:
//   - ctx: the GraphicsContext that owns the pooled framebuffers
//
// Returns:
//   - *FramebufferPool: the new pool
func NewFramebufferPool(ctx GraphicsContext) *FramebufferPool {
	return &FramebufferPool{
		ctx:   ctx,
		idle:  make(map[framebufferKey][]FramebufferHandle),
		owned: make(map[FramebufferHandle]framebufferKey),
		busy:  make(map[FramebufferHandle]struct{}),
	}
}

// Checkout returns an idle framebuffer of the requested size and format, creating one when none is idle.
//
// Parameters:
//   - width: the framebuffer width in pixels
//   - height: the framebuffer height in pixels
//   - format: the color attachment format
//
// Returns:
//   - FramebufferHandle: the framebuffer, or 0 if allocation failed
func (p *FramebufferPool) Checkout(width, height int, format TextureFormat) FramebufferHandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := framebufferKey{width: width, height: height, format: format}
	if list := p.idle[key]; len(list) > 0 {
		fb := list[len(list)-1]
		p.idle[key] = list[:len(list)-1]
		p.busy[fb] = struct{}{}
		return fb
	}

	fb := p.ctx.CreateFramebuffer(width, height, format)
	if fb == 0 {
		return 0
	}
	p.owned[fb] = key
	p.busy[fb] = struct{}{}
	return fb
}

// Checkin returns a framebuffer to the idle list. Framebuffers the pool did not create, or that are already idle, are ignored.
//
// Parameters:
//   - fb: the framebuffer to return
func (p *FramebufferPool) Checkin(fb FramebufferHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.owned[fb]
	if !ok {
		return
	}
	if _, busy := p.busy[fb]; !busy {
		return
	}
	delete(p.busy, fb)
	p.idle[key] = append(p.idle[key], fb)
}

// InUse returns the number of checked-out framebuffers.
func (p *FramebufferPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.busy)
}

// Size returns the number of framebuffers owned by the pool, idle or not.
func (p *FramebufferPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.owned)
}

// ReleaseAll deletes every framebuffer the pool created, including checked-out ones.
func (p *FramebufferPool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for fb := range p.owned {
		p.ctx.DeleteFramebuffer(fb)
	}
	p.idle = make(map[framebufferKey][]FramebufferHandle)
	p.owned = make(map[FramebufferHandle]framebufferKey)
	p.busy = make(map[FramebufferHandle]struct{})
}
