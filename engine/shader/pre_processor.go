package shader

import (
	_ "embed"
	"fmt"
	"strings"
)

var (
	//go:embed assets/quad_vertex.wgsl
	quadVertexSource string

	//go:embed assets/quad_varying.wgsl
	quadVaryingSource string

	//go:embed assets/color_utils.wgsl
	colorUtilsSource string
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	snippets map[AnnotationArg]string
	included []Annotation
}

// PreProcessor expands //@fx: directives in WGSL source.
type PreProcessor interface {
	// Process replaces every //@fx:include directive with the snippet it names. A snippet is expanded
	// at most once per call; repeated includes of the same snippet become empty lines.
	//
	// Parameters:
	//   - source: the raw WGSL source
	//
	// Returns:
	//   - string: the expanded source
	//   - error: error if a directive is malformed or names an unknown snippet
	Process(source string) (string, error)

	// Included returns the include directives expanded by the most recent Process call, in source order.
	Included() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the built-in snippets registered.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		snippets: map[AnnotationArg]string{
			AnnotationArgQuadVertex:  quadVertexSource,
			AnnotationArgQuadVarying: quadVaryingSource,
			AnnotationArgColorUtils:  colorUtilsSource,
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.included = p.included[:0]
	seen := make(map[AnnotationArg]bool)

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			key := a.Args[0]
			snippet, ok := p.snippets[key]
			if !ok {
				return "", fmt.Errorf("line %d: snippet %q is not registered", i+1, key)
			}
			if seen[key] {
				out = append(out, "")
				continue
			}
			seen[key] = true
			out = append(out, strings.TrimRight(snippet, "\n"))
			p.included = append(p.included, *a)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Included() []Annotation {
	return p.included
}
