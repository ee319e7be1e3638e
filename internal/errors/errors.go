// Package errors provides structured error types and exit codes for the
// PTO testing pipeline.
package errors

import (
	"fmt"
)

// Exit codes returned to the shell.
const (
	ExitSuccess     = 0 // Success
	ExitTestFailure = 1 // A test failed or a pipeline stage aborted
	ExitConfigError = 2 // Configuration error (bad flags, invalid config)
	ExitEnvError    = 3 // Environment error (collaborator toolchain missing, etc.)
)

// Kind identifies the pipeline stage that produced an error.
// Kinds are ordered by pipeline stage; an earlier kind always means the
// later stages never ran.
type Kind int

const (
	KindTensorSpec Kind = iota // malformed or duplicate tensor specs
	KindCodegen                // IR construction or generator failure
	KindCompile                // external toolchain non-zero exit
	KindBind                   // backend rejected the compiled artifacts
	KindRuntime                // backend fault during execution
	KindTimeout                // execution exceeded the wall-clock budget
	KindValidation             // shape/dtype/tolerance mismatch
	KindConfig                 // bad configuration before the pipeline starts
	KindEnvironment            // collaborator installation not found
)

// String returns the stage tag used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindTensorSpec:
		return "tensor-spec"
	case KindCodegen:
		return "codegen"
	case KindCompile:
		return "compile"
	case KindBind:
		return "bind"
	case KindRuntime:
		return "runtime"
	case KindTimeout:
		return "timeout"
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	case KindEnvironment:
		return "environment"
	default:
		return "unknown"
	}
}

// PipelineError is the error type surfaced by every pipeline stage.
// Test identifies the test case, Stage carries an optional sub-stage tag
// (e.g. the generator name for codegen errors).
type PipelineError struct {
	Kind    Kind
	Test    string
	Stage   string
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	prefix := e.Kind.String()
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s/%s", prefix, e.Stage)
	}
	if e.Test != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Test, prefix, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the shell exit code for this error.
func (e *PipelineError) ExitCode() int {
	switch e.Kind {
	case KindConfig:
		return ExitConfigError
	case KindEnvironment:
		return ExitEnvError
	default:
		return ExitTestFailure
	}
}

// TensorSpec creates a tensor-spec error.
func TensorSpec(test, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindTensorSpec, Test: test, Message: fmt.Sprintf(format, args...)}
}

// Codegen creates a codegen error tagged with the generator that failed.
func Codegen(test, generator string, cause error) *PipelineError {
	return &PipelineError{Kind: KindCodegen, Test: test, Stage: generator, Message: causeMessage(cause), Cause: cause}
}

// Codegenf creates a codegen error from a formatted message.
func Codegenf(test, generator, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindCodegen, Test: test, Stage: generator, Message: fmt.Sprintf(format, args...)}
}

// Compile creates a compile error.
func Compile(test string, cause error) *PipelineError {
	return &PipelineError{Kind: KindCompile, Test: test, Message: causeMessage(cause), Cause: cause}
}

// Bind creates a bind error.
func Bind(test string, cause error) *PipelineError {
	return &PipelineError{Kind: KindBind, Test: test, Message: causeMessage(cause), Cause: cause}
}

// Runtime creates a runtime error.
func Runtime(test string, cause error) *PipelineError {
	return &PipelineError{Kind: KindRuntime, Test: test, Message: causeMessage(cause), Cause: cause}
}

// Timeout creates a timeout error. Timeouts are fatal and never retried.
func Timeout(test string, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindTimeout, Test: test, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error for a specific output tensor.
func Validation(test, tensor, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindValidation, Test: test, Stage: tensor, Message: fmt.Sprintf(format, args...)}
}

// Config creates a configuration error.
func Config(format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// Environment creates an environment error.
func Environment(format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindEnvironment, Message: fmt.Sprintf(format, args...)}
}

// GetExitCode returns the exit code for an arbitrary error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if pe, ok := err.(*PipelineError); ok {
		return pe.ExitCode()
	}
	return ExitTestFailure
}

func causeMessage(cause error) string {
	if cause == nil {
		return "unknown failure"
	}
	return cause.Error()
}
