package engine

import (
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/compositor"
	"github.com/Carmen-Shannon/oxy-fx/engine/config"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWindow drives the engine without a platform window.
type fakeWindow struct {
	onUpdate  func()
	onResize  func(width, height int)
	onScroll  func(delta float32)
	onKeyDown func(keyCode uint32)
	onDrop    func(paths []string)

	closed     chan struct{}
	closeOnce  sync.Once
	closeCalls atomic.Int32
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{closed: make(chan struct{})}
}

func (w *fakeWindow) SetUpdateCallback(callback func())                 { w.onUpdate = callback }
func (w *fakeWindow) SetResizeCallback(callback func(width, height int)) { w.onResize = callback }
func (w *fakeWindow) SetScrollCallback(callback func(delta float32))     { w.onScroll = callback }
func (w *fakeWindow) SetKeyDownCallback(callback func(keyCode uint32))   { w.onKeyDown = callback }
func (w *fakeWindow) SetDropCallback(callback func(paths []string))      { w.onDrop = callback }
func (w *fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor         { return nil }
func (w *fakeWindow) Width() int                                         { return 8 }
func (w *fakeWindow) Height() int                                        { return 6 }

func (w *fakeWindow) IsRunning() bool {
	select {
	case <-w.closed:
		return false
	default:
		return true
	}
}

func (w *fakeWindow) RequestClose() {
	w.closeOnce.Do(func() { close(w.closed) })
}

func (w *fakeWindow) Close() error {
	w.closeCalls.Add(1)
	return nil
}

func (w *fakeWindow) ProcessMessages() {
	for w.IsRunning() {
		if w.onUpdate != nil {
			w.onUpdate()
		}
		time.Sleep(time.Millisecond)
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() config.RenderConfig {
	cfg := config.Default()
	cfg.RenderWidth, cfg.RenderHeight = 8, 6
	cfg.OutputWidth, cfg.OutputHeight = 8, 6
	cfg.Backend = "software"
	return cfg
}

func newTestEngine(t *testing.T, options ...EngineBuilderOption) (*engine, *fakeWindow) {
	t.Helper()
	w := newFakeWindow()
	opts := append([]EngineBuilderOption{
		WithWindow(w),
		WithConfig(testConfig()),
		WithLogger(quietLogger()),
		WithRenderFrameLimit(200),
	}, options...)
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Quit()
		e.Run()
	})
	return e.(*engine), w
}

// runAsync runs the engine on another goroutine and returns a channel closed when Run returns.
func runAsync(e Engine) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()
	return done
}

func TestNewEngineRegistersEveryKindDisabled(t *testing.T) {
	e, _ := newTestEngine(t)
	c := e.Compositor()
	require.NotNil(t, c)

	assert.Equal(t, compositor.StateInitialized, c.State())
	assert.Equal(t, effect.KindNames(), c.EffectNames())
	for _, name := range c.EffectNames() {
		assert.False(t, c.Effect(name).Enabled(), name)
	}
	assert.False(t, c.ProfilingEnabled())
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	_, err := NewEngine(WithWindow(newFakeWindow()), WithConfig(config.RenderConfig{}), WithLogger(quietLogger()))
	assert.Error(t, err)
}

func TestDefaultKeyBindings(t *testing.T) {
	bindings := DefaultKeyBindings()
	names := effect.KindNames()

	assert.Len(t, bindings, 11)
	assert.Equal(t, names[0], bindings[common.Key1])
	assert.Equal(t, names[9], bindings[common.Key0])
	assert.Equal(t, names[10], bindings[common.KeyG])
}

func TestKeysToggleEffects(t *testing.T) {
	e, w := newTestEngine(t, WithKeyBinding(common.KeyR, effect.KindInvert))
	c := e.Compositor()
	first := effect.KindNames()[0]

	w.onKeyDown(common.Key1)
	assert.True(t, c.Effect(first).Enabled())
	w.onKeyDown(common.Key1)
	assert.False(t, c.Effect(first).Enabled())

	w.onKeyDown(common.KeyR)
	assert.True(t, c.Effect(effect.KindInvert).Enabled(), "custom binding replaces the stats reset key")

	w.onKeyDown(common.KeyG)
	grayscale := c.Effect(effect.KindNames()[10])
	assert.True(t, grayscale.Enabled())

	w.onKeyDown(common.KeyBackspace)
	for _, name := range c.EffectNames() {
		assert.False(t, c.Effect(name).Enabled(), name)
	}

	w.onKeyDown(common.KeyP)
	assert.True(t, c.ProfilingEnabled())
	w.onKeyDown(common.KeyP)
	assert.False(t, c.ProfilingEnabled())

	assert.False(t, e.ToggleEffect("Sepia"))
}

func TestScrollAdjustsSelectedIntensity(t *testing.T) {
	e, w := newTestEngine(t)
	c := e.Compositor()

	w.onScroll(1)
	assert.InDelta(t, 0.5, c.Effect(effect.KindVignette).Intensity(), 1e-6, "nothing selected yet")

	require.True(t, e.ToggleEffect(effect.KindVignette))
	w.onScroll(-2)
	assert.InDelta(t, 0.4, c.Effect(effect.KindVignette).Intensity(), 1e-6)

	w.onKeyDown(common.KeyUp)
	assert.InDelta(t, 0.45, c.Effect(effect.KindVignette).Intensity(), 1e-6)

	for i := 0; i < 30; i++ {
		w.onKeyDown(common.KeyUp)
	}
	assert.InDelta(t, 1, c.Effect(effect.KindVignette).Intensity(), 1e-6, "clamped")
}

func TestPresetOptionEnablesEffects(t *testing.T) {
	e, _ := newTestEngine(t, WithPreset(config.Preset{
		Name:    "mono",
		Effects: []config.PresetEffect{{Kind: effect.KindGrayscale}},
	}), WithProfiling(true))
	c := e.Compositor()

	assert.True(t, c.Effect(effect.KindGrayscale).Enabled())
	assert.True(t, c.ProfilingEnabled())
}

func TestRunRendersSourceUntilQuit(t *testing.T) {
	e, w := newTestEngine(t)
	c := e.Compositor()

	var ticks atomic.Int32
	e.SetTickCallback(func(float32) { ticks.Add(1) })
	e.SetTickRate(500)

	e.SetSource(common.NewSolidTextureStagingData(4, 3, [4]uint8{40, 80, 120, 255}))
	done := runAsync(e)

	require.Eventually(t, func() bool {
		return c.Stats().FramesRendered > 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return ticks.Load() > 0 }, 2*time.Second, 5*time.Millisecond)

	e.Quit()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
	assert.Equal(t, compositor.StateShutDown, c.State())
	assert.Nil(t, e.Compositor())
	assert.Equal(t, int32(1), w.closeCalls.Load())
}

func TestWindowCloseStopsRun(t *testing.T) {
	e, w := newTestEngine(t)
	done := runAsync(e)

	w.RequestClose()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the window closed")
	}
	assert.Equal(t, int32(1), w.closeCalls.Load())
}

func TestLoadSourceDecodesOnWorkerPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.png")
	require.NoError(t, common.NewSolidTextureStagingData(4, 4, [4]uint8{200, 100, 50, 255}).SavePNG(path))

	e, w := newTestEngine(t)
	c := e.Compositor()

	e.LoadSource(filepath.Join(t.TempDir(), "missing.png"))
	w.onDrop([]string{path})
	done := runAsync(e)
	defer func() {
		e.Quit()
		<-done
	}()

	require.Eventually(t, func() bool {
		return c.Stats().FramesRendered > 0
	}, 2*time.Second, 5*time.Millisecond)

	px, err := c.ReadPixels(c.Context().FramebufferTexture(graphics.DefaultFramebuffer))
	require.NoError(t, err)
	require.Len(t, px, 8*6*4)
	assert.Equal(t, []byte{200, 100, 50, 255}, px[:4])
}
