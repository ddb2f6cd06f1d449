// Package config loads render configuration and effect chain presets from TOML or YAML files.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// RenderConfig is consumed wholesale when a renderer initializes. Changing the resolution requires a
// shutdown and a new initialization.
type RenderConfig struct {
	RenderWidth      int    `toml:"render_width" yaml:"render_width"`
	RenderHeight     int    `toml:"render_height" yaml:"render_height"`
	OutputWidth      int    `toml:"output_width" yaml:"output_width"`
	OutputHeight     int    `toml:"output_height" yaml:"output_height"`
	UseMultisampling bool   `toml:"use_multisampling" yaml:"use_multisampling"`
	SampleCount      int    `toml:"sample_count" yaml:"sample_count"`
	EnableCache      bool   `toml:"enable_cache" yaml:"enable_cache"`
	EnableProfiling  bool   `toml:"enable_profiling" yaml:"enable_profiling"`
	Backend          string `toml:"backend" yaml:"backend"`
}

// Default returns the 1080p configuration with 4x multisampling, caching on and profiling off.
func Default() RenderConfig {
	return RenderConfig{
		RenderWidth:      1920,
		RenderHeight:     1080,
		OutputWidth:      1920,
		OutputHeight:     1080,
		UseMultisampling: true,
		SampleCount:      4,
		EnableCache:      true,
		EnableProfiling:  false,
		Backend:          "wgpu",
	}
}

// BackendType resolves the Backend name.
//
// Returns:
//   - graphics.BackendType: the backend
//   - error: error if the name is unknown
func (c RenderConfig) BackendType() (graphics.BackendType, error) {
	return graphics.ParseBackendType(c.Backend)
}

// Validate reports every invalid field of the configuration.
//
// Returns:
//   - error: nil, or the joined field errors
func (c RenderConfig) Validate() error {
	var errs []error
	if c.RenderWidth <= 0 || c.RenderHeight <= 0 {
		errs = append(errs, fmt.Errorf("render size %dx%d must be positive", c.RenderWidth, c.RenderHeight))
	}
	if c.OutputWidth <= 0 || c.OutputHeight <= 0 {
		errs = append(errs, fmt.Errorf("output size %dx%d must be positive", c.OutputWidth, c.OutputHeight))
	}
	if c.UseMultisampling {
		switch c.SampleCount {
		case 1, 2, 4, 8, 16:
		default:
			errs = append(errs, fmt.Errorf("sample count %d must be a power of two up to 16", c.SampleCount))
		}
	}
	if _, err := c.BackendType(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// decoder is satisfied by both the TOML and YAML decoders.
type decoder interface {
	Decode(v any) error
}

// decoderFunc creates a decoder reading from r.
type decoderFunc func(r io.Reader) decoder

func tomlDecoder(r io.Reader) decoder {
	return toml.NewDecoder(r).DisallowUnknownFields()
}

func yamlDecoder(r io.Reader) decoder {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	return d
}

// decoderFor picks the decoder by file extension.
func decoderFor(path string) (decoderFunc, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return tomlDecoder, nil
	case ".yaml", ".yml":
		return yamlDecoder, nil
	default:
		return nil, fmt.Errorf("unsupported config format %q, expected .toml, .yaml or .yml", filepath.Ext(path))
	}
}

// open decodes the file at path into v.
func open(v any, path string) error {
	df, err := decoderFor(path)
	if err != nil {
		return err
	}
	fp, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer fp.Close()

	if err := df(bufio.NewReader(fp)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

// Load reads a RenderConfig from a .toml, .yaml or .yml file. Fields the file omits keep their defaults.
//
// Parameters:
//   - path: the config file path
//
// Returns:
//   - RenderConfig: the loaded, validated configuration
//   - error: error if the file cannot be read, decoded or validated
func Load(path string) (RenderConfig, error) {
	cfg := Default()
	if err := open(&cfg, path); err != nil {
		return RenderConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return RenderConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
