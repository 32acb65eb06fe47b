// Package engineerr provides the leveled, coded error type surfaced by the
// engine core. It mirrors the teacher's internal/errors package shape
// (ErrorLevel + coded CompilerError) but drops the source-snippet renderer,
// which is a parser/diagnostics concern outside this module's scope.
package engineerr

import "fmt"

// Level is the severity of an EngineError.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Fatal   Level = "fatal"
)

// Kind identifies the ECMAScript-visible error category, per spec §4.2/§7.
type Kind string

const (
	KindReference      Kind = "ReferenceError"
	KindType           Kind = "TypeError"
	KindRange          Kind = "RangeError"
	KindSyntax         Kind = "SyntaxError"
	KindSecurity       Kind = "SecurityError"
	KindExecutionLimit Kind = "ExecutionLimitExceeded"
	KindInternal       Kind = "InternalError"
)

// EngineError is the single error type returned or stashed in the context's
// current-error slot. It never embeds presentation logic (color, carets);
// that belongs at the CLI boundary (cmd/aerojs-cli), same split the teacher
// keeps between internal/errors and main.go.
type EngineError struct {
	Level   Level
	Kind    Kind
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// New builds a plain Error-level EngineError of the given kind.
func New(kind Kind, format string, args ...interface{}) *EngineError {
	return &EngineError{Level: Error, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error-level EngineError that carries an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *EngineError {
	return &EngineError{Level: Error, Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Internal builds a Fatal-level internal error. Per spec §7 these are only
// ever fatal when raised by the *executor*; compiler-side internal errors
// use Warning level (see CompileWarning below) and never stop the script.
func Internal(format string, args ...interface{}) *EngineError {
	return &EngineError{Level: Fatal, Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// CompileWarning builds a Warning-level internal error for a discarded
// compile job (optimizer pass failure, allocator exhaustion, ...). These are
// always non-fatal to the running script per spec §7.
func CompileWarning(format string, args ...interface{}) *EngineError {
	return &EngineError{Level: Warning, Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Reference, Type, Range, Syntax and Security are convenience constructors
// for the common user-visible error kinds.
func Reference(format string, args ...interface{}) *EngineError { return New(KindReference, format, args...) }
func TypeErr(format string, args ...interface{}) *EngineError    { return New(KindType, format, args...) }
func RangeErr(format string, args ...interface{}) *EngineError   { return New(KindRange, format, args...) }
func Syntax(format string, args ...interface{}) *EngineError     { return New(KindSyntax, format, args...) }
func Security(format string, args ...interface{}) *EngineError   { return New(KindSecurity, format, args...) }

// ExecutionLimitExceeded is raised, non-recoverably within the offending
// call, when a context's instruction counter crosses its configured limit.
func ExecutionLimitExceeded(limit uint64) *EngineError {
	return &EngineError{
		Level:   Error,
		Kind:    KindExecutionLimit,
		Message: fmt.Sprintf("execution limit of %d instructions exceeded", limit),
	}
}
