// Package errors provides the structured error type shared by the livedown
// packages, along with sentinel values callers can match with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeLifecycle  ErrorType = "lifecycle"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeMissingPath         = "ERR_MISSING_PATH"
	ErrCodeDocumentUnavailable = "ERR_DOCUMENT_UNAVAILABLE"
	ErrCodeReadFailed          = "ERR_READ_FAILED"
	ErrCodeWatchFailed         = "ERR_WATCH_FAILED"
	ErrCodeBind                = "ERR_BIND"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeSessionStopped      = "ERR_SESSION_STOPPED"
	ErrCodeConfigInvalid       = "ERR_CONFIG_INVALID"
	ErrCodeShutdown            = "ERR_SHUTDOWN"
)

// Sentinel errors. They compare equal (via errors.Is) to any LivedownError
// carrying the same type and code, whatever its message or cause.
var (
	ErrMissingPath         = &LivedownError{Type: ErrorTypeValidation, Code: ErrCodeMissingPath, Message: "document path is required"}
	ErrDocumentUnavailable = &LivedownError{Type: ErrorTypeIO, Code: ErrCodeDocumentUnavailable, Message: "document cannot be opened"}
	ErrBind                = &LivedownError{Type: ErrorTypeNetwork, Code: ErrCodeBind, Message: "listener cannot bind"}
	ErrInvalidState        = &LivedownError{Type: ErrorTypeLifecycle, Code: ErrCodeInvalidState, Message: "invalid lifecycle transition"}
	ErrSessionStopped      = &LivedownError{Type: ErrorTypeLifecycle, Code: ErrCodeSessionStopped, Message: "session is not running"}
)

// LivedownError is a structured error type with context.
type LivedownError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *LivedownError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *LivedownError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *LivedownError) Is(target error) bool {
	var t *LivedownError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *LivedownError) WithContext(key string, value interface{}) *LivedownError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath attaches the document path the error concerns.
func (e *LivedownError) WithPath(path string) *LivedownError {
	e.Path = path

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *LivedownError {
	return &LivedownError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *LivedownError {
	return &LivedownError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *LivedownError {
	return &LivedownError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewLifecycleError creates an error for an operation issued in the wrong state.
func NewLifecycleError(code, message string) *LivedownError {
	return &LivedownError{
		Type:    ErrorTypeLifecycle,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *LivedownError {
	return &LivedownError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var le *LivedownError
	if errors.As(err, &le) {
		return le.Recoverable
	}

	return false
}
