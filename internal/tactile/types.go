// Package tactile is the execution layer: it takes validated spreadsheet commands and
// performs them on the automation surface, one at a time, turning every failure into a
// structured result.
//
// Design Principles:
//   - Validation before contact: a malformed command never reaches the surface
//   - Isolation: one failing command never aborts its siblings
//   - Structured output: every command yields exactly one ExecutionResult
package tactile

import (
	"errors"
	"fmt"
)

// Status is the outcome of a single command.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusWarning Status = "warning"
)

// ExecutionResult is the outcome of dispatching one command.
// Error is set only when Status is StatusError.
type ExecutionResult struct {
	// Type is the command type as extracted.
	Type string `json:"type,omitempty"`

	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`

	// Data carries read results, e.g. the matrix returned by get_data.
	Data any `json:"data,omitempty"`

	Error string `json:"error,omitempty"`
}

// Succeeded reports whether the command took effect. Warnings count as success:
// the command ran, with a lenient default applied.
func (r ExecutionResult) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusWarning
}

// Success builds a success result.
func Success(message string, data any) ExecutionResult {
	return ExecutionResult{Status: StatusSuccess, Message: message, Data: data}
}

// Warning builds a warning result.
func Warning(message string, data any) ExecutionResult {
	return ExecutionResult{Status: StatusWarning, Message: message, Data: data}
}

// Failure builds an error result from err.
func Failure(err error) ExecutionResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ExecutionResult{Status: StatusError, Error: msg}
}

// ErrExecution marks handler-level failures on the automation surface.
var ErrExecution = errors.New("execution failed")

// ExecutionError is a handler failure for one command.
type ExecutionError struct {
	Type string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("error executing %s command: %v", e.Type, e.Err)
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }
