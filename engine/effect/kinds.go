package effect

import (
	_ "embed"
	"math"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/shader"
)

var (
	//go:embed assets/effect_vertex.wgsl
	effectVertexSource string

	//go:embed assets/color_grade.wgsl
	colorGradeSource string

	//go:embed assets/curves.wgsl
	curvesSource string

	//go:embed assets/hsl.wgsl
	hslSource string

	//go:embed assets/gaussian_blur.wgsl
	gaussianBlurSource string

	//go:embed assets/vignette.wgsl
	vignetteSource string

	//go:embed assets/glow.wgsl
	glowSource string

	//go:embed assets/chromatic_aberration.wgsl
	chromaticAberrationSource string

	//go:embed assets/glitch.wgsl
	glitchSource string

	//go:embed assets/posterize.wgsl
	posterizeSource string

	//go:embed assets/invert.wgsl
	invertSource string

	//go:embed assets/grayscale.wgsl
	grayscaleSource string

	//go:embed assets/copy.wgsl
	copySource string
)

// Built-in kind names.
const (
	KindColorGrade          = "ColorGrade"
	KindCurves              = "Curves"
	KindHSL                 = "HSL"
	KindGaussianBlur        = "GaussianBlur"
	KindVignette            = "Vignette"
	KindGlow                = "Glow"
	KindChromaticAberration = "ChromaticAberration"
	KindGlitch              = "Glitch"
	KindPosterize           = "Posterize"
	KindInvert              = "Invert"
	KindGrayscale           = "Grayscale"

	// KindCopy is the pass-through used to present a chain result. It is not listed by Kinds.
	KindCopy = "Copy"
)

// maximum UV displacement of chromatic aberration at amount 1
const chromaticShiftScale = 0.02

func kindSource(label, fragment string, kernel graphics.FragmentKernel) shader.ShaderSource {
	return shader.ShaderSource{
		Label:    label,
		Vertex:   effectVertexSource,
		Fragment: fragment,
		Kernel:   kernel,
	}
}

func floatParam(name, uniform string, def, lo, hi float32) ParameterDefinition {
	return ParameterDefinition{Name: name, UniformName: uniform, Default: def, Min: lo, Max: hi, Type: ParameterFloat}
}

func intensityParam(def float32) ParameterDefinition {
	return floatParam(IntensityParameter, "uIntensity", def, 0, 1)
}

// signed maps a normalized control value in [0,1] to [-scale, scale].
func signed(p, scale float32) float32 {
	return (p*2 - 1) * scale
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func colorGradeHook(p shader.ShaderProgram, s FrameState) {
	p.SetFloat("uTemperature", signed(s.Parameters["temperature"], 100))
	p.SetFloat("uTint", signed(s.Parameters["tint"], 100))
	p.SetFloat("uHasLUT", flag(s.HasAux))
}

func curvesHook(p shader.ShaderProgram, s FrameState) {
	p.SetFloat("uHasCurves", flag(s.HasAux))
}

func hslHook(p shader.ShaderProgram, s FrameState) {
	p.SetFloat("uHue", signed(s.Parameters["hue"], 180))
	p.SetFloat("uSaturation", signed(s.Parameters["saturation"], 1))
	p.SetFloat("uLightness", signed(s.Parameters["lightness"], 1))
}

func gaussianBlurHook(p shader.ShaderProgram, s FrameState) {
	p.SetVec2("uTexelSize", 1/float32(s.Width), 1/float32(s.Height))
}

func vignetteHook(p shader.ShaderProgram, s FrameState) {
	p.SetFloat("uAspect", float32(s.Width)/float32(s.Height))
}

func glowHook(p shader.ShaderProgram, s FrameState) {
	p.SetFloat("uGain", 1+s.Parameters["spread"]*2)
	p.SetFloat("uHasBloom", flag(s.HasAux))
}

func chromaticAberrationHook(p shader.ShaderProgram, s FrameState) {
	amount := float64(s.Parameters["amount"])
	rad := float64(s.Parameters["direction"]) * math.Pi / 180
	p.SetVec2("uOffset",
		float32(math.Cos(rad)*amount*chromaticShiftScale),
		float32(math.Sin(rad)*amount*chromaticShiftScale),
	)
}

func glitchHook(p shader.ShaderProgram, s FrameState) {
	p.SetFloat("uTime", s.Time)
}

var builtinKinds = []Kind{
	{
		Name:     KindColorGrade,
		Category: CategoryColor,
		Parameters: []ParameterDefinition{
			intensityParam(1),
			floatParam("temperature", "uTemperature", 0.5, 0, 1),
			floatParam("tint", "uTint", 0.5, 0, 1),
		},
		Hook:       colorGradeHook,
		AuxTexture: "uLUT",
		Source:     kindSource(KindColorGrade, colorGradeSource, colorGradeKernel),
	},
	{
		Name:     KindCurves,
		Category: CategoryColor,
		Parameters: []ParameterDefinition{
			intensityParam(1),
			floatParam("redMidtone", "uRedMidtone", 0.5, 0, 1),
			floatParam("greenMidtone", "uGreenMidtone", 0.5, 0, 1),
			floatParam("blueMidtone", "uBlueMidtone", 0.5, 0, 1),
			floatParam("luminanceMidtone", "uLuminanceMidtone", 0.5, 0, 1),
		},
		Hook:       curvesHook,
		AuxTexture: "uCurveTexture",
		Source:     kindSource(KindCurves, curvesSource, curvesKernel),
	},
	{
		Name:     KindHSL,
		Category: CategoryColor,
		Parameters: []ParameterDefinition{
			intensityParam(1),
			floatParam("hue", "uHue", 0.5, 0, 1),
			floatParam("saturation", "uSaturation", 0.5, 0, 1),
			floatParam("lightness", "uLightness", 0.5, 0, 1),
		},
		Hook:   hslHook,
		Source: kindSource(KindHSL, hslSource, hslKernel),
	},
	{
		Name:     KindGaussianBlur,
		Category: CategoryBlur,
		Parameters: []ParameterDefinition{
			intensityParam(1),
			floatParam("radius", "uRadius", 5, 0.5, 50),
		},
		Hook:   gaussianBlurHook,
		Source: kindSource(KindGaussianBlur, gaussianBlurSource, gaussianBlurKernel),
	},
	{
		Name:     KindVignette,
		Category: CategoryLight,
		Parameters: []ParameterDefinition{
			intensityParam(0.5),
			floatParam("radius", "uRadius", 0.5, 0.2, 1),
			floatParam("softness", "uSoftness", 0.3, 0, 1),
		},
		Hook:   vignetteHook,
		Source: kindSource(KindVignette, vignetteSource, vignetteKernel),
	},
	{
		Name:     KindGlow,
		Category: CategoryLight,
		Parameters: []ParameterDefinition{
			intensityParam(0.5),
			floatParam("threshold", "uThreshold", 0.5, 0, 1),
			floatParam("spread", "uSpread", 0.3, 0, 1),
		},
		Hook:       glowHook,
		AuxTexture: "uBloomTexture",
		Source:     kindSource(KindGlow, glowSource, glowKernel),
	},
	{
		Name:     KindChromaticAberration,
		Category: CategoryDistortion,
		Parameters: []ParameterDefinition{
			intensityParam(0.5),
			floatParam("amount", "uAmount", 0.3, 0, 1),
			{Name: "direction", UniformName: "uDirection", Default: 0, Min: 0, Max: 360, Type: ParameterAngle},
		},
		Hook:   chromaticAberrationHook,
		Source: kindSource(KindChromaticAberration, chromaticAberrationSource, chromaticAberrationKernel),
	},
	{
		Name:     KindGlitch,
		Category: CategoryDistortion,
		Parameters: []ParameterDefinition{
			intensityParam(0.5),
			floatParam("amount", "uAmount", 0.3, 0, 1),
			floatParam("frequency", "uFrequency", 0.5, 0, 1),
		},
		Hook:   glitchHook,
		Source: kindSource(KindGlitch, glitchSource, glitchKernel),
	},
	{
		Name:     KindPosterize,
		Category: CategoryArtistic,
		Parameters: []ParameterDefinition{
			intensityParam(1),
			floatParam("levels", "uLevels", 128, 2, 256),
		},
		Source: kindSource(KindPosterize, posterizeSource, posterizeKernel),
	},
	{
		Name:       KindInvert,
		Category:   CategoryArtistic,
		Parameters: []ParameterDefinition{intensityParam(1)},
		Source:     kindSource(KindInvert, invertSource, invertKernel),
	},
	{
		Name:       KindGrayscale,
		Category:   CategoryArtistic,
		Parameters: []ParameterDefinition{intensityParam(1)},
		Source:     kindSource(KindGrayscale, grayscaleSource, grayscaleKernel),
	},
}

var copyKind = Kind{
	Name:       KindCopy,
	Category:   CategoryComposite,
	Parameters: []ParameterDefinition{intensityParam(1)},
	Source:     kindSource(KindCopy, copySource, copyKernel),
}

// CopyKind returns the pass-through kind that samples its input unchanged.
func CopyKind() Kind {
	return copyKind
}
