// Package control exposes compositors through a string-keyed surface suited to a host application: renderers are
// addressed by handle, effects and parameters by name. Names are interned to handles on first lookup.
package control

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/engine/compositor"
	"github.com/Carmen-Shannon/oxy-fx/engine/config"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/profiler"
	"github.com/sirupsen/logrus"
)

// RendererHandle identifies a compositor owned by a Registry. Zero is never valid.
type RendererHandle int64

// EffectHandle is the interned form of an effect name.
type EffectHandle uint32

// ParameterHandle is the interned form of a parameter name.
type ParameterHandle uint32

// ErrUnknownRenderer is returned for a handle the registry does not hold.
var ErrUnknownRenderer = errors.New("unknown renderer")

type rendererEntry struct {
	comp    compositor.Compositor
	cfg     config.RenderConfig
	effects map[EffectHandle]effect.Effect
}

// Registry owns a set of compositors. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	internMu sync.Mutex

	logger            logrus.FieldLogger
	compositorOptions []compositor.CompositorBuilderOption

	next      RendererHandle
	renderers map[RendererHandle]*rendererEntry

	effectIDs   map[string]EffectHandle
	effectNames []string
	paramIDs    map[string]ParameterHandle
	paramNames  []string
}

// NewRegistry creates an empty Registry.
//
// Parameters:
//   - options: functional options for registry configuration
//
// Returns:
//   - *Registry: the new registry
func NewRegistry(options ...RegistryBuilderOption) *Registry {
	r := &Registry{
		logger:    logrus.StandardLogger(),
		renderers: make(map[RendererHandle]*rendererEntry),
		effectIDs: make(map[string]EffectHandle),
		paramIDs:  make(map[string]ParameterHandle),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Registry) log(function string) *logrus.Entry {
	return r.logger.WithFields(logrus.Fields{"function": function})
}

// EffectHandle returns the handle of an effect name, interning it on first lookup. Handles start at 1.
// Name-keyed operations resolve through a non-interning lookup, so unknown names never grow the table.
func (r *Registry) EffectHandle(name string) EffectHandle {
	r.internMu.Lock()
	defer r.internMu.Unlock()
	if h, ok := r.effectIDs[name]; ok {
		return h
	}
	r.effectNames = append(r.effectNames, name)
	h := EffectHandle(len(r.effectNames))
	r.effectIDs[name] = h
	return h
}

// ParameterHandle returns the handle of a parameter name, interning it on first lookup. Handles start at 1.
func (r *Registry) ParameterHandle(name string) ParameterHandle {
	r.internMu.Lock()
	defer r.internMu.Unlock()
	if h, ok := r.paramIDs[name]; ok {
		return h
	}
	r.paramNames = append(r.paramNames, name)
	h := ParameterHandle(len(r.paramNames))
	r.paramIDs[name] = h
	return h
}

// lookupEffectHandle resolves a name without interning it.
func (r *Registry) lookupEffectHandle(name string) (EffectHandle, bool) {
	r.internMu.Lock()
	defer r.internMu.Unlock()
	h, ok := r.effectIDs[name]
	return h, ok
}

// EffectName resolves an effect handle, returning false for a handle that was never issued.
func (r *Registry) EffectName(h EffectHandle) (string, bool) {
	r.internMu.Lock()
	defer r.internMu.Unlock()
	if h == 0 || int(h) > len(r.effectNames) {
		return "", false
	}
	return r.effectNames[h-1], true
}

// ParameterName resolves a parameter handle, returning false for a handle that was never issued.
func (r *Registry) ParameterName(h ParameterHandle) (string, bool) {
	r.internMu.Lock()
	defer r.internMu.Unlock()
	if h == 0 || int(h) > len(r.paramNames) {
		return "", false
	}
	return r.paramNames[h-1], true
}

// effectState is what survives a resize of an effect.
type effectState struct {
	name       string
	kind       string
	enabled    bool
	intensity  float32
	parameters map[string]float32
}

// build initializes a compositor for cfg and registers one effect per state, in order.
func (r *Registry) build(cfg config.RenderConfig, states []effectState) (*rendererEntry, error) {
	opts := append([]compositor.CompositorBuilderOption{compositor.WithLogger(r.logger)}, r.compositorOptions...)
	comp := compositor.NewCompositor(opts...)
	if err := comp.Initialize(cfg); err != nil {
		return nil, err
	}

	entry := &rendererEntry{comp: comp, cfg: cfg, effects: make(map[EffectHandle]effect.Effect, len(states))}
	for _, s := range states {
		e, err := comp.NewEffect(s.kind, effect.WithName(s.name), effect.WithEnabled(s.enabled))
		if err != nil {
			comp.Shutdown()
			return nil, err
		}
		for name, v := range s.parameters {
			e.SetParameter(name, v)
		}
		e.SetIntensity(s.intensity)
		comp.AddEffect(e)
		entry.effects[r.EffectHandle(s.name)] = e
	}
	return entry, nil
}

// CreateRenderer initializes a compositor for cfg and registers one disabled effect of every kind, named after
// the kind.
//
// Parameters:
//   - cfg: the render configuration
//
// Returns:
//   - RendererHandle: the handle of the new renderer
//   - error: error if the compositor fails to initialize
func (r *Registry) CreateRenderer(cfg config.RenderConfig) (RendererHandle, error) {
	var states []effectState
	for _, kind := range effect.Kinds() {
		defaults := make(map[string]float32, len(kind.Parameters))
		intensity := float32(1)
		for _, def := range kind.Parameters {
			defaults[def.Name] = def.Default
			if def.Name == effect.IntensityParameter {
				intensity = def.Default
			}
		}
		states = append(states, effectState{
			name:       kind.Name,
			kind:       kind.Name,
			intensity:  intensity,
			parameters: defaults,
		})
	}
	entry, err := r.build(cfg, states)
	if err != nil {
		return 0, fmt.Errorf("failed to create renderer: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	r.renderers[h] = entry
	r.log("CreateRenderer").WithFields(logrus.Fields{"renderer": h, "effects": len(entry.effects)}).Info("renderer created")
	return h, nil
}

// DestroyRenderer shuts the renderer down and forgets its handle.
//
// Returns:
//   - bool: false if the handle is unknown
func (r *Registry) DestroyRenderer(h RendererHandle) bool {
	r.mu.Lock()
	entry, ok := r.renderers[h]
	delete(r.renderers, h)
	r.mu.Unlock()
	if !ok {
		return false
	}
	entry.comp.Shutdown()
	return true
}

// Close destroys every renderer.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.renderers
	r.renderers = make(map[RendererHandle]*rendererEntry)
	r.mu.Unlock()
	for _, entry := range entries {
		entry.comp.Shutdown()
	}
}

// Resize replaces the renderer's compositor with one at the new render and output size. Effect order, enabled
// state, intensity and parameters carry over; auxiliary textures belong to the old context and do not.
//
// Parameters:
//   - h: the renderer
//   - width: the new width in pixels
//   - height: the new height in pixels
//
// Returns:
//   - error: error if the handle is unknown or the new compositor fails to initialize, in which case the old one
//     keeps running
func (r *Registry) Resize(h RendererHandle, width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.renderers[h]
	if !ok {
		return ErrUnknownRenderer
	}
	cfg := entry.cfg
	cfg.RenderWidth, cfg.RenderHeight = width, height
	cfg.OutputWidth, cfg.OutputHeight = width, height
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("failed to resize renderer %d: %w", h, err)
	}

	var states []effectState
	for _, name := range entry.comp.EffectNames() {
		e := entry.comp.Effect(name)
		states = append(states, effectState{
			name:       name,
			kind:       e.Kind().Name,
			enabled:    e.Enabled(),
			intensity:  e.Intensity(),
			parameters: e.Parameters(),
		})
	}

	next, err := r.build(cfg, states)
	if err != nil {
		return fmt.Errorf("failed to resize renderer %d: %w", h, err)
	}
	entry.comp.Shutdown()
	r.renderers[h] = next
	r.log("Resize").WithFields(logrus.Fields{"renderer": h, "width": width, "height": height}).Info("renderer resized")
	return nil
}

func (r *Registry) entry(h RendererHandle) (*rendererEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.renderers[h]
	return entry, ok
}

func (r *Registry) effect(h RendererHandle, name string) (effect.Effect, bool) {
	entry, ok := r.entry(h)
	if !ok {
		return nil, false
	}
	eh, ok := r.lookupEffectHandle(name)
	if !ok {
		return nil, false
	}
	e, ok := entry.effects[eh]
	return e, ok
}

// Renderer returns the compositor behind a handle.
func (r *Registry) Renderer(h RendererHandle) (compositor.Compositor, bool) {
	entry, ok := r.entry(h)
	if !ok {
		return nil, false
	}
	return entry.comp, true
}

// ApplyEffect enables the named effect.
//
// Returns:
//   - bool: false if the renderer or the effect is unknown
func (r *Registry) ApplyEffect(h RendererHandle, name string) bool {
	e, ok := r.effect(h, name)
	if !ok {
		r.log("ApplyEffect").WithFields(logrus.Fields{"renderer": h, "effect": name}).Warn("effect not found")
		return false
	}
	e.SetEnabled(true)
	return true
}

// RemoveEffect disables the named effect. The effect stays registered and can be enabled again.
//
// Returns:
//   - bool: false if the renderer or the effect is unknown
func (r *Registry) RemoveEffect(h RendererHandle, name string) bool {
	e, ok := r.effect(h, name)
	if !ok {
		return false
	}
	e.SetEnabled(false)
	return true
}

// SetEffectParameter sets a parameter of the named effect. The value is clamped to the parameter range.
//
// Parameters:
//   - h: the renderer
//   - effectName: the effect name
//   - param: the parameter name
//   - value: the new value
//
// Returns:
//   - bool: false if the renderer, the effect or the parameter is unknown
func (r *Registry) SetEffectParameter(h RendererHandle, effectName, param string, value float32) bool {
	e, ok := r.effect(h, effectName)
	if !ok {
		return false
	}
	if !e.HasParameter(param) {
		// records the ParameterError on the effect without interning the name
		return e.SetParameter(param, value)
	}
	eh, _ := r.lookupEffectHandle(effectName)
	return r.SetParameterByHandle(h, eh, r.ParameterHandle(param), value)
}

// SetParameterByHandle is SetEffectParameter for callers holding interned handles.
func (r *Registry) SetParameterByHandle(h RendererHandle, eh EffectHandle, ph ParameterHandle, value float32) bool {
	entry, ok := r.entry(h)
	if !ok {
		return false
	}
	e, ok := entry.effects[eh]
	if !ok {
		return false
	}
	param, ok := r.ParameterName(ph)
	if !ok {
		return false
	}
	return e.SetParameter(param, value)
}

// ClearEffects disables every effect of the renderer.
func (r *Registry) ClearEffects(h RendererHandle) {
	entry, ok := r.entry(h)
	if !ok {
		return
	}
	for _, e := range entry.effects {
		e.SetEnabled(false)
	}
}

// RenderToTexture runs the renderer's chain over input.
//
// Returns:
//   - graphics.TextureHandle: the result, or 0 if the renderer is unknown or cannot render
func (r *Registry) RenderToTexture(h RendererHandle, input graphics.TextureHandle) graphics.TextureHandle {
	entry, ok := r.entry(h)
	if !ok {
		return 0
	}
	return entry.comp.RenderToTexture(input)
}

// AvailableEffects returns the names of every effect kind.
func (r *Registry) AvailableEffects() []string {
	return effect.KindNames()
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// EffectParameters describes the parameters of an effect kind as "name|min|max|default" strings.
//
// Parameters:
//   - name: the effect kind name
//
// Returns:
//   - []string: one entry per parameter in definition order, or nil for an unknown kind
func (r *Registry) EffectParameters(name string) []string {
	kind, ok := effect.KindByName(name)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(kind.Parameters))
	for _, def := range kind.Parameters {
		out = append(out, def.Name+"|"+formatFloat(def.Min)+"|"+formatFloat(def.Max)+"|"+formatFloat(def.Default))
	}
	return out
}

// Statistics returns the render stats of the renderer.
func (r *Registry) Statistics(h RendererHandle) (profiler.RenderStats, bool) {
	entry, ok := r.entry(h)
	if !ok {
		return profiler.RenderStats{}, false
	}
	return entry.comp.Stats(), true
}

// GPUInfo returns the adapter description of the renderer.
func (r *Registry) GPUInfo(h RendererHandle) string {
	entry, ok := r.entry(h)
	if !ok {
		return "Renderer not initialized"
	}
	return entry.comp.GPUInfo()
}

// ApplyPreset makes the preset the active chain: every effect is disabled, then each preset effect is reset to
// its defaults, configured and moved to the end of the chain in preset order. Preset effects whose name differs
// from their kind are created on first use.
//
// Parameters:
//   - h: the renderer
//   - preset: the preset to apply
//
// Returns:
//   - error: error if the handle is unknown or the preset is invalid; unknown parameters are reported as
//     *effect.ParameterError after the rest of the preset has been applied
func (r *Registry) ApplyPreset(h RendererHandle, preset config.Preset) error {
	if err := preset.Validate(); err != nil {
		return fmt.Errorf("invalid preset: %w", err)
	}
	for _, pe := range preset.Effects {
		if _, ok := effect.KindByName(pe.Kind); !ok {
			return fmt.Errorf("preset %q: unknown effect kind %q", preset.Name, pe.Kind)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.renderers[h]
	if !ok {
		return ErrUnknownRenderer
	}

	for _, e := range entry.effects {
		e.SetEnabled(false)
	}

	var errs []error
	for _, pe := range preset.Effects {
		name := pe.EffectName()
		eh := r.EffectHandle(name)
		e, ok := entry.effects[eh]
		if ok && e.Kind().Name != pe.Kind {
			return fmt.Errorf("preset %q: effect %q is a %s, not a %s", preset.Name, name, e.Kind().Name, pe.Kind)
		}
		if !ok {
			created, err := entry.comp.NewEffect(pe.Kind, effect.WithName(name), effect.WithEnabled(false))
			if err != nil {
				return fmt.Errorf("preset %q: %w", preset.Name, err)
			}
			e = created
			entry.effects[eh] = e
		}

		e.ResetParameters()
		if pe.Intensity != nil {
			e.SetIntensity(*pe.Intensity)
		}
		for param, v := range pe.Parameters {
			if !e.SetParameter(param, v) {
				errs = append(errs, &effect.ParameterError{Effect: name, Parameter: param})
			}
		}
		e.SetEnabled(pe.IsEnabled())

		entry.comp.RemoveEffect(name)
		entry.comp.AddEffect(e)
	}
	r.log("ApplyPreset").WithFields(logrus.Fields{"renderer": h, "preset": preset.Name}).Info("preset applied")
	return errors.Join(errs...)
}
