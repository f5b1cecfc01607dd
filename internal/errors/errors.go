package errors

import (
	stderrors "errors"
	"fmt"
)

// MedragError is the structured error type for medrag.
// It carries enough context for logging, degradation decisions and CLI output.
type MedragError struct {
	// Code is the unique error code (e.g., "ERR_311_EMBEDDING_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
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
func (e *MedragError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MedragError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, &MedragError{Code: ...}) works
// anywhere in a chain.
func (e *MedragError) Is(target error) bool {
	if t, ok := target.(*MedragError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *MedragError) WithDetail(key, value string) *MedragError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *MedragError) WithSuggestion(suggestion string) *MedragError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MedragError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *MedragError {
	return &MedragError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MedragError from an existing error.
// The error's message becomes the MedragError message.
func Wrap(code string, err error) *MedragError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is checks against the retrieval taxonomy.
var (
	ErrEmbeddingUnavailable = &MedragError{Code: ErrCodeEmbeddingUnavailable}
	ErrIndexUnavailable     = &MedragError{Code: ErrCodeIndexUnavailable}
	ErrRetrievalUnavailable = &MedragError{Code: ErrCodeRetrievalUnavailable}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *MedragError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *MedragError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *MedragError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *MedragError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *MedragError {
	return New(ErrCodeInternal, message, cause)
}

// EmbeddingUnavailable reports a failed, timed out or degenerate provider call.
func EmbeddingUnavailable(message string, cause error) *MedragError {
	return New(ErrCodeEmbeddingUnavailable, message, cause).
		WithSuggestion("check the embedding provider configuration and API key")
}

// IndexUnavailable reports an unreachable or failing vector store.
func IndexUnavailable(message string, cause error) *MedragError {
	return New(ErrCodeIndexUnavailable, message, cause).
		WithSuggestion("check that the vector store is running and reachable")
}

// RetrievalUnavailable reports a query that could not be served at all.
func RetrievalUnavailable(message string, cause error) *MedragError {
	return New(ErrCodeRetrievalUnavailable, message, cause)
}

// As returns the first MedragError in err's chain.
func As(err error) (*MedragError, bool) {
	var me *MedragError
	if stderrors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if me, ok := As(err); ok {
		return me.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if me, ok := As(err); ok {
		return me.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a MedragError.
// Returns empty string if there is none in the chain.
func GetCode(err error) string {
	if me, ok := As(err); ok {
		return me.Code
	}
	return ""
}

// GetCategory extracts the category from a MedragError.
func GetCategory(err error) Category {
	if me, ok := As(err); ok {
		return me.Category
	}
	return ""
}

// HasCode reports whether any MedragError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if me, ok := err.(*MedragError); ok && me.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
