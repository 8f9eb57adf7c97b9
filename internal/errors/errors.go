package errors

import (
	"errors"
	"fmt"
)

// CoreError is the structured error type for the pipeline.
// It provides context for error handling, logging, and user presentation.
type CoreError struct {
	// Code is the unique error code (e.g., "ERR_403_QUERY_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Dependency, Transport, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrapped chains.
func (e *CoreError) Is(target error) bool {
	if t, ok := target.(*CoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *CoreError) WithSuggestion(suggestion string) *CoreError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CoreError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CoreError {
	return &CoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CoreError from an existing error.
// The error's message becomes the CoreError message.
func Wrap(code string, err error) *CoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CoreError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// DependencyError creates an unreachable-collaborator error.
func DependencyError(code, message string, cause error) *CoreError {
	return New(code, message, cause)
}

// TransportError creates a retryable network-level error.
func TransportError(message string, cause error) *CoreError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(code, message string) *CoreError {
	return New(code, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CoreError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error (anywhere in the chain) is retryable.
func IsRetryable(err error) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsValidation checks if an error is a validation rejection.
func IsValidation(err error) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Category == CategoryValidation
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code; empty if not a CoreError.
func GetCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category; empty if not a CoreError.
func GetCategory(err error) Category {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}
