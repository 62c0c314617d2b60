package tool

import (
	"fmt"
	"time"
)

// FailureCode classifies a failure reported by the tool itself, as opposed to
// an execution-layer failure.
type FailureCode string

const (
	CodeNotFound       FailureCode = "not_found"
	CodeUnauthorized   FailureCode = "unauthorized"
	CodeForbidden      FailureCode = "forbidden"
	CodeInvalidRequest FailureCode = "invalid_request"
	CodeRateLimited    FailureCode = "rate_limited"
	CodeRemoteError    FailureCode = "remote_error"
	CodeNetwork        FailureCode = "network"
	CodeTimeout        FailureCode = "timeout"
	CodeConfiguration  FailureCode = "configuration"
)

// Result is the outcome a tool reports about its own work. Success carries
// Data; failure carries Error and Code.
type Result struct {
	Success bool        `json:"success"`
	Data    any         `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    FailureCode `json:"code,omitempty"`
}

// Succeed wraps a domain value in a successful Result.
func Succeed(data any) *Result {
	return &Result{Success: true, Data: data}
}

// Fail builds a tool-reported failure.
func Fail(code FailureCode, format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...), Code: code}
}

// Execution is the uniform envelope returned by Executor.Execute. Success
// reports whether the executor did its job; the tool's own verdict is in
// Result.Success.
type Execution struct {
	ToolName string        `json:"tool_name"`
	Success  bool          `json:"execution_success"`
	Result   *Result       `json:"tool_result,omitempty"`
	Error    string        `json:"error_message,omitempty"`
	Kind     ErrorKind     `json:"error_kind,omitempty"`
	Duration time.Duration `json:"-"`
}

// Succeeded reports whether both the executor and the tool succeeded.
func (e Execution) Succeeded() bool {
	return e.Success && e.Result != nil && e.Result.Success
}

// FailureMessage returns the most specific failure text available, or "" when
// the execution fully succeeded.
func (e Execution) FailureMessage() string {
	if !e.Success {
		return e.Error
	}
	if e.Result != nil && !e.Result.Success {
		return e.Result.Error
	}
	return ""
}

func failedExecution(name string, err error) Execution {
	return Execution{
		ToolName: name,
		Success:  false,
		Error:    err.Error(),
		Kind:     KindOf(err),
	}
}
