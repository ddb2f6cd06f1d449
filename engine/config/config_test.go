package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1920, cfg.RenderWidth)
	assert.Equal(t, 1080, cfg.RenderHeight)
	assert.Equal(t, 1920, cfg.OutputWidth)
	assert.Equal(t, 1080, cfg.OutputHeight)
	assert.True(t, cfg.UseMultisampling)
	assert.Equal(t, 4, cfg.SampleCount)
	assert.True(t, cfg.EnableCache)
	assert.False(t, cfg.EnableProfiling)
	assert.NoError(t, cfg.Validate())

	bt, err := cfg.BackendType()
	require.NoError(t, err)
	assert.Equal(t, graphics.BackendWGPU, bt)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RenderConfig)
		ok     bool
	}{
		{"default", func(*RenderConfig) {}, true},
		{"zero render width", func(c *RenderConfig) { c.RenderWidth = 0 }, false},
		{"negative output", func(c *RenderConfig) { c.OutputHeight = -1 }, false},
		{"bad sample count", func(c *RenderConfig) { c.SampleCount = 3 }, false},
		{"sample count ignored without msaa", func(c *RenderConfig) { c.UseMultisampling = false; c.SampleCount = 3 }, true},
		{"unknown backend", func(c *RenderConfig) { c.Backend = "vulkan" }, false},
		{"software backend", func(c *RenderConfig) { c.Backend = "software" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "render.toml", `
render_width = 1280
render_height = 720
enable_profiling = true
backend = "software"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.RenderWidth)
	assert.Equal(t, 720, cfg.RenderHeight)
	assert.True(t, cfg.EnableProfiling)
	assert.Equal(t, "software", cfg.Backend)
	assert.Equal(t, 1920, cfg.OutputWidth, "omitted fields keep defaults")
	assert.Equal(t, 4, cfg.SampleCount)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "render.yaml", `
render_width: 640
render_height: 360
use_multisampling: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.RenderWidth)
	assert.Equal(t, 360, cfg.RenderHeight)
	assert.False(t, cfg.UseMultisampling)
	assert.True(t, cfg.EnableCache)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "render.json", `{}`))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "failed to open")

	_, err = Load(writeFile(t, "render.toml", "render_width = \"wide\"\n"))
	assert.ErrorContains(t, err, "failed to decode")

	_, err = Load(writeFile(t, "render.toml", "bogus = 1\n"))
	assert.ErrorContains(t, err, "failed to decode")

	_, err = Load(writeFile(t, "render.yml", "render_width: 0\n"))
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoadPresets(t *testing.T) {
	path := writeFile(t, "presets.yaml", `
presets:
  - name: cinematic
    effects:
      - kind: ColorGrade
        parameters:
          temperature: 0.6
      - kind: Vignette
        intensity: 0.4
        parameters:
          radius: 0.8
      - kind: GaussianBlur
        name: SoftFocus
        enabled: false
`)
	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 1)

	p := presets[0]
	assert.Equal(t, "cinematic", p.Name)
	require.Len(t, p.Effects, 3)
	assert.Equal(t, "ColorGrade", p.Effects[0].EffectName())
	assert.Equal(t, float32(0.6), p.Effects[0].Parameters["temperature"])
	assert.True(t, p.Effects[0].IsEnabled())
	require.NotNil(t, p.Effects[1].Intensity)
	assert.Equal(t, float32(0.4), *p.Effects[1].Intensity)
	assert.Equal(t, "SoftFocus", p.Effects[2].EffectName())
	assert.False(t, p.Effects[2].IsEnabled())
}

func TestLoadPresetsTOML(t *testing.T) {
	path := writeFile(t, "presets.toml", `
[[presets]]
name = "mono"

[[presets.effects]]
kind = "Grayscale"

[[presets.effects]]
kind = "Posterize"
[presets.effects.parameters]
levels = 8.0
`)
	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 1)
	require.Len(t, presets[0].Effects, 2)
	assert.Equal(t, float32(8), presets[0].Effects[1].Parameters["levels"])
}

func TestPresetValidate(t *testing.T) {
	p := Preset{Name: "dup", Effects: []PresetEffect{{Kind: "Invert"}, {Kind: "Invert"}}}
	assert.ErrorContains(t, p.Validate(), "duplicate effect name")

	p = Preset{Name: "nokind", Effects: []PresetEffect{{Name: "x"}}}
	assert.ErrorContains(t, p.Validate(), "has no kind")

	p = Preset{Effects: nil}
	assert.ErrorContains(t, p.Validate(), "no name")
}
