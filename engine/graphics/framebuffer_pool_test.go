package graphics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramebufferPoolReuse(t *testing.T) {
	ctx := newTestContext(t, 8, 8)
	pool := NewFramebufferPool(ctx)

	a := pool.Checkout(8, 8, TextureFormatRGBA8)
	b := pool.Checkout(8, 8, TextureFormatRGBA8)
	require.NotZero(t, a)
	require.NotZero(t, b)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, pool.InUse())

	pool.Checkin(a)
	assert.Equal(t, 1, pool.InUse())

	c := pool.Checkout(8, 8, TextureFormatRGBA8)
	assert.Equal(t, a, c)
	assert.Equal(t, 2, pool.Size())
	assert.Equal(t, 2, ctx.FramebufferCount())
}

func TestFramebufferPoolKeysBySize(t *testing.T) {
	ctx := newTestContext(t, 8, 8)
	pool := NewFramebufferPool(ctx)

	a := pool.Checkout(8, 8, TextureFormatRGBA8)
	pool.Checkin(a)

	b := pool.Checkout(4, 4, TextureFormatRGBA8)
	require.NotZero(t, b)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, pool.Size())
}

func TestFramebufferPoolCheckinIgnoresForeign(t *testing.T) {
	ctx := newTestContext(t, 8, 8)
	pool := NewFramebufferPool(ctx)

	foreign := ctx.CreateFramebuffer(8, 8, TextureFormatRGBA8)
	pool.Checkin(foreign)
	assert.Equal(t, 0, pool.Size())

	a := pool.Checkout(8, 8, TextureFormatRGBA8)
	pool.Checkin(a)
	pool.Checkin(a)
	b := pool.Checkout(8, 8, TextureFormatRGBA8)
	c := pool.Checkout(8, 8, TextureFormatRGBA8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, b, c)
}

func TestFramebufferPoolFailedCheckout(t *testing.T) {
	ctx := newTestContext(t, 8, 8)
	pool := NewFramebufferPool(ctx)

	assert.Equal(t, FramebufferHandle(0), pool.Checkout(0, 8, TextureFormatRGBA8))
	assert.Equal(t, 0, pool.Size())
	assert.Equal(t, 0, pool.InUse())
}

func TestFramebufferPoolReleaseAll(t *testing.T) {
	ctx := newTestContext(t, 8, 8)
	pool := NewFramebufferPool(ctx)

	pool.Checkout(8, 8, TextureFormatRGBA8)
	pool.Checkin(pool.Checkout(4, 4, TextureFormatRGBA8))
	require.Equal(t, 2, ctx.FramebufferCount())

	pool.ReleaseAll()
	assert.Equal(t, 0, ctx.FramebufferCount())
	assert.Equal(t, 0, pool.Size())
	assert.Equal(t, 0, pool.InUse())
}
