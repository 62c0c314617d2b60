package tool

import "errors"

// Failure kinds surfaced by the registry and executor. They are matched with
// errors.Is and reported as ErrorKind values inside an Execution.
var (
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrLoadFailure       = errors.New("tool load failed")
	ErrValidation        = errors.New("input validation error")
	ErrCallable          = errors.New("execution error")
)

// ErrorKind classifies an execution-layer failure.
type ErrorKind string

const (
	KindUnknownTool       ErrorKind = "unknown_tool"
	KindLoadFailure       ErrorKind = "load_failure"
	KindValidationFailure ErrorKind = "validation_failure"
	KindCallableFailure   ErrorKind = "callable_failure"
)

// KindOf maps an error produced by this package to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownTool):
		return KindUnknownTool
	case errors.Is(err, ErrLoadFailure):
		return KindLoadFailure
	case errors.Is(err, ErrValidation):
		return KindValidationFailure
	default:
		return KindCallableFailure
	}
}
