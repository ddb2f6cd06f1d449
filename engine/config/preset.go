package config

import (
	"errors"
	"fmt"
)

// PresetEffect configures one effect of a chain preset.
type PresetEffect struct {
	// Kind is the effect kind name, e.g. "Vignette".
	Kind string `toml:"kind" yaml:"kind"`
	// Name identifies the effect in the chain and defaults to Kind.
	Name    string `toml:"name" yaml:"name"`
	Enabled *bool  `toml:"enabled" yaml:"enabled"`
	// Intensity is applied when set.
	Intensity  *float32           `toml:"intensity" yaml:"intensity"`
	Parameters map[string]float32 `toml:"parameters" yaml:"parameters"`
}

// EffectName returns Name, or Kind when Name is empty.
func (p PresetEffect) EffectName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Kind
}

// IsEnabled reports whether the effect should be enabled. Effects are enabled unless the preset says otherwise.
func (p PresetEffect) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Preset is a named, ordered effect chain.
type Preset struct {
	Name    string         `toml:"name" yaml:"name"`
	Effects []PresetEffect `toml:"effects" yaml:"effects"`
}

// Validate checks that every effect has a kind and that effect names are unique.
//
// Returns:
//   - error: nil, or the joined errors
func (p Preset) Validate() error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, errors.New("preset has no name"))
	}
	seen := make(map[string]bool, len(p.Effects))
	for i, e := range p.Effects {
		if e.Kind == "" {
			errs = append(errs, fmt.Errorf("effect %d has no kind", i))
			continue
		}
		name := e.EffectName()
		if seen[name] {
			errs = append(errs, fmt.Errorf("duplicate effect name %q", name))
		}
		seen[name] = true
	}
	return errors.Join(errs...)
}

// presetFile is the on-disk layout: a list of presets under "presets".
type presetFile struct {
	Presets []Preset `toml:"presets" yaml:"presets"`
}

// LoadPresets reads every preset from a .toml, .yaml or .yml file.
//
// Parameters:
//   - path: the preset file path
//
// Returns:
//   - []Preset: the presets in file order
//   - error: error if the file cannot be read or a preset is invalid
func LoadPresets(path string) ([]Preset, error) {
	var f presetFile
	if err := open(&f, path); err != nil {
		return nil, err
	}
	for _, p := range f.Presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid preset %q in %s: %w", p.Name, path, err)
		}
	}
	return f.Presets, nil
}
