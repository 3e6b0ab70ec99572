package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a LivedownError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *LivedownError {
	if err == nil {
		return nil
	}

	// Preserve path and context of an already structured cause
	var le *LivedownError
	if errors.As(err, &le) {
		return &LivedownError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       le,
			Context:     le.Context,
			Path:        le.Path,
			Recoverable: le.Recoverable,
		}
	}

	return &LivedownError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation,
	}
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *LivedownError {
	le := Wrap(err, ErrorTypeIO, code, message)
	if le != nil {
		le.Recoverable = false
	}
	return le
}

// WrapNetwork wraps an error as a network error
func WrapNetwork(err error, code, message string) *LivedownError {
	le := Wrap(err, ErrorTypeNetwork, code, message)
	if le != nil {
		le.Recoverable = false
	}
	return le
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *LivedownError {
	le := Wrap(err, ErrorTypeConfig, code, message)
	if le != nil {
		le.Recoverable = false
	}
	return le
}

// ReadError reports a failed read of the watched document. It is recoverable:
// the next filesystem event is another chance to read it.
func ReadError(path string, cause error) *LivedownError {
	le := Wrap(cause, ErrorTypeIO, ErrCodeReadFailed, "failed to read document")
	if le == nil {
		return nil
	}
	le.Recoverable = true
	return le.WithPath(path)
}

// DocumentUnavailable reports a document that cannot be opened at start.
func DocumentUnavailable(path string, cause error) *LivedownError {
	le := WrapIO(cause, ErrCodeDocumentUnavailable, "document cannot be opened")
	if le == nil {
		return nil
	}
	return le.WithPath(path)
}

// BindError reports a listener that could not bind its address.
func BindError(addr string, cause error) *LivedownError {
	le := WrapNetwork(cause, ErrCodeBind, "listener cannot bind")
	if le == nil {
		return nil
	}
	return le.WithContext("addr", addr)
}

// GetErrorContext extracts context information from a LivedownError
func GetErrorContext(err error) map[string]interface{} {
	var le *LivedownError
	if errors.As(err, &le) {
		context := make(map[string]interface{})
		for k, v := range le.Context {
			context[k] = v
		}
		if le.Path != "" {
			context["path"] = le.Path
		}
		context["type"] = string(le.Type)
		context["code"] = le.Code
		context["recoverable"] = le.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// HasErrorCode checks if any error in the chain has the specified code
func HasErrorCode(err error, code string) bool {
	for err != nil {
		if le, ok := err.(*LivedownError); ok && le.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// CombineErrors joins the non-nil errors, returning nil when there are none
func CombineErrors(errs ...error) error {
	var collected []error
	for _, err := range errs {
		if err != nil {
			collected = append(collected, err)
		}
	}
	switch len(collected) {
	case 0:
		return nil
	case 1:
		return collected[0]
	}
	return errors.Join(collected...)
}
