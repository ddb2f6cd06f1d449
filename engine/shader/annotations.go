// annotations.go defines the //@fx: directives understood by the WGSL pre-processor.
// Directives are single-line WGSL comments, so sources stay valid WGSL before expansion.
package shader

import (
	"fmt"
	"slices"
	"strings"
)

// annotationPrefix is the marker that identifies a directive within a WGSL comment line.
const annotationPrefix = "@fx:"

// AnnotationType identifies the kind of directive parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the WGSL source of a registered snippet at the directive site.
	//
	// Syntax: //@fx:include <snippet>
	//
	// Example: //@fx:include color_utils
	AnnotationTypeInclude AnnotationType = "include"
)

// Annotation is one parsed directive.
type Annotation struct {
	Type AnnotationType
	// Args holds the directive arguments; for include, [0] is the snippet key.
	Args []AnnotationArg
	// Line is the 1-based source line of the directive.
	Line int
}

// AnnotationArg is a typed directive argument.
type AnnotationArg string

const (
	// AnnotationArgQuadVertex is the QuadVertex input struct of the full-screen quad.
	AnnotationArgQuadVertex AnnotationArg = "quad_vertex"
	// AnnotationArgQuadVarying is the QuadVarying struct passed from the vertex to the fragment stage.
	AnnotationArgQuadVarying AnnotationArg = "quad_varying"
	// AnnotationArgColorUtils is the luminance and RGB/HSL conversion helpers.
	AnnotationArgColorUtils AnnotationArg = "color_utils"
)

var validSnippets = []AnnotationArg{
	AnnotationArgQuadVertex,
	AnnotationArgQuadVarying,
	AnnotationArgColorUtils,
}

// parseAnnotation parses one source line. Lines without the directive prefix return nil, nil.
//
// Parameters:
//   - line: the raw WGSL source line
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed directive, or nil if the line is not one
//   - error: error if the directive is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @fx directive", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @fx:include requires exactly one argument", lineNum)
		}
		if !slices.Contains(validSnippets, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown snippet %q in @fx:include", lineNum, args[1])
		}
		return &Annotation{
			Type: AnnotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @fx directive %q", lineNum, args[0])
	}
}
