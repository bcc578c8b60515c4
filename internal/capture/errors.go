package capture

import (
	"fmt"
)

// ErrorCode classifies capture errors.
type ErrorCode string

// ErrorCode constants for capture errors.
const (
	CodeAlreadyAcquired        ErrorCode = "ALREADY_ACQUIRED"
	CodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	CodeFormatUnsupported      ErrorCode = "FORMAT_UNSUPPORTED"
	CodeBackendResourceFailure ErrorCode = "BACKEND_RESOURCE_FAILURE"
	CodeOutOfMemory            ErrorCode = "OUT_OF_MEMORY"
	CodeCaptureTerminalError   ErrorCode = "CAPTURE_TERMINAL_ERROR"
)

// Sentinels for errors.Is.
var (
	ErrAlreadyAcquired        = &Error{Code: CodeAlreadyAcquired, Message: "source already acquired"}
	ErrInvalidStateTransition = &Error{Code: CodeInvalidStateTransition, Message: "invalid state transition"}
	ErrFormatUnsupported      = &Error{Code: CodeFormatUnsupported, Message: "no compatible format"}
	ErrBackendResourceFailure = &Error{Code: CodeBackendResourceFailure, Message: "backend resource failure"}
	ErrOutOfMemory            = &Error{Code: CodeOutOfMemory, Message: "out of memory"}
	ErrCaptureTerminalError   = &Error{Code: CodeCaptureTerminalError, Message: "capture terminated"}
)

// Error represents an error in the capture package.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Cause   error          `json:"cause,omitempty"`
}

// NewError creates a new capture error.
func NewError(code ErrorCode, message string, context map[string]any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// NewErrorWithCause creates a new capture error with a cause.
func NewErrorWithCause(code ErrorCode, message string, cause error, context map[string]any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: context,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any capture error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HasCode checks if the error matches a specific code.
func (e *Error) HasCode(code ErrorCode) bool {
	return e.Code == code
}

func invalidState(op string, state State) *Error {
	return NewError(CodeInvalidStateTransition, op+" not allowed while "+state.String(),
		map[string]any{"operation": op, "state": state.String()})
}
