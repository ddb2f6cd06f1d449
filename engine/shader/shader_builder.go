package shader

import "github.com/sirupsen/logrus"

// ShaderProgramBuilderOption is a functional option applied to a shaderProgram during construction via NewShaderProgram.
type ShaderProgramBuilderOption func(*shaderProgram)

// WithLogger sets the logger used for compile, link and uniform warnings.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - ShaderProgramBuilderOption: a function that applies the logger option to a shaderProgram
func WithLogger(logger logrus.FieldLogger) ShaderProgramBuilderOption {
	return func(s *shaderProgram) {
		s.logger = logger
	}
}

// WithPreProcessor replaces the default directive pre-processor.
//
// Parameters:
//   - pp: the PreProcessor applied to every stage before compilation
//
// Returns:
//   - ShaderProgramBuilderOption: a function that applies the pre-processor option to a shaderProgram
func WithPreProcessor(pp PreProcessor) ShaderProgramBuilderOption {
	return func(s *shaderProgram) {
		s.pp = pp
	}
}

// ShaderLibraryBuilderOption is a functional option applied to a shaderLibrary during construction via NewShaderLibrary.
type ShaderLibraryBuilderOption func(*shaderLibrary)

// WithLibraryLogger sets the logger used by the library and every program it creates.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - ShaderLibraryBuilderOption: a function that applies the logger option to a shaderLibrary
func WithLibraryLogger(logger logrus.FieldLogger) ShaderLibraryBuilderOption {
	return func(l *shaderLibrary) {
		l.logger = logger
	}
}
