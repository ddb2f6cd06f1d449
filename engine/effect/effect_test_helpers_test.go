package effect

import (
	"io"
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestArena initializes a software context of the given size and an arena on top of it.
func newTestArena(t *testing.T, width, height int) Arena {
	t.Helper()
	ctx := graphics.NewGraphicsContext(
		graphics.WithBackendType(graphics.BackendSoftware),
		graphics.WithLogger(quietLogger()),
	)
	require.NoError(t, ctx.Initialize(width, height))
	a := NewArena(ctx, WithArenaLogger(quietLogger()))
	t.Cleanup(func() {
		a.Release()
		ctx.Destroy()
	})
	return a
}

func newTestEffect(t *testing.T, a Arena, kindName string, options ...EffectBuilderOption) Effect {
	t.Helper()
	kind, ok := KindByName(kindName)
	require.True(t, ok, kindName)
	opts := append([]EffectBuilderOption{WithEffectLogger(quietLogger())}, options...)
	e := NewEffect(kind, a, opts...)
	require.True(t, e.IsValid(), "%s did not compile: %v", kindName, e.Err())
	return e
}

func solidPixels(width, height int, px [4]uint8) []byte {
	out := make([]byte, width*height*4)
	for i := 0; i < len(out); i += 4 {
		copy(out[i:i+4], px[:])
	}
	return out
}

// render applies e to a solid input of the arena's size and returns the output pixels.
func render(t *testing.T, a Arena, e Effect, px [4]uint8) []byte {
	t.Helper()
	ctx := a.Context()
	w, h := ctx.Width(), ctx.Height()
	input := ctx.CreateTexture(w, h, graphics.TextureFormatRGBA8, solidPixels(w, h, px))
	require.NotZero(t, input)
	fb := ctx.CreateFramebuffer(w, h, graphics.TextureFormatRGBA8)
	require.NotZero(t, fb)

	require.True(t, e.Apply(input, fb, w, h), "apply failed: %v", e.Err())

	out, err := ctx.ReadTexture(ctx.FramebufferTexture(fb))
	require.NoError(t, err)
	require.Len(t, out, w*h*4)
	return out
}

func pixelAt(pixels []byte, width, x, y int) [4]uint8 {
	i := (y*width + x) * 4
	return [4]uint8{pixels[i], pixels[i+1], pixels[i+2], pixels[i+3]}
}
