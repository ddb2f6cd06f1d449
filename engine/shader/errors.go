package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
)

// Fallback messages recorded when a stage fails without producing a log.
const (
	msgVertexCompileFailed   = "Failed to compile vertex shader"
	msgFragmentCompileFailed = "Failed to compile fragment shader"
	msgGeometryCompileFailed = "Failed to compile geometry shader"
	msgLinkFailed            = "Failed to link shader program"
)

// CompileError reports a stage that failed to pre-process or compile.
type CompileError struct {
	Label string
	Stage graphics.ShaderStage
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shader %q: %s stage: %s", e.Label, e.Stage, e.Log)
}

// LinkError reports compiled stages that could not be combined into a program.
type LinkError struct {
	Label string
	Log   string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("shader %q: link: %s", e.Label, e.Log)
}

func compileFallback(stage graphics.ShaderStage) string {
	switch stage {
	case graphics.StageVertex:
		return msgVertexCompileFailed
	case graphics.StageFragment:
		return msgFragmentCompileFailed
	default:
		return msgGeometryCompileFailed
	}
}
