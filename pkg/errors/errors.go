package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures produced by the pipeline stages.
type ErrorType string

const (
	ErrorTypeStoreUnavailable ErrorType = "store_unavailable"
	ErrorTypeDuplicateKey     ErrorType = "duplicate_key"
	ErrorTypePageFetch        ErrorType = "page_fetch_failed"
	ErrorTypeMediaUnavailable ErrorType = "media_unavailable"
	ErrorTypeMediaTooLarge    ErrorType = "media_too_large"
	ErrorTypeMediaCorrupt     ErrorType = "media_corrupt"
	ErrorTypeRateLimit        ErrorType = "publish_rate_limited"
	ErrorTypeUnauthorized     ErrorType = "publish_unauthorized"
	ErrorTypeServerError      ErrorType = "publish_server_error"
	ErrorTypeNetwork          ErrorType = "network"
	ErrorTypeUnknown          ErrorType = "unknown"
)

// Error carries a failure classification alongside the message and, for
// HTTP-originated failures, the status code.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// New creates a typed error.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// WithCode creates a typed error that records the HTTP status code.
func WithCode(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Message: message, Code: code}
}

// TypeOf extracts the error type from err, unwrapping as needed.
// Errors without a type report ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given error type.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// IsRetryable reports whether an error of the given type is worth retrying.
func IsRetryable(t ErrorType) bool {
	switch t {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeMediaCorrupt:
		return true
	default:
		return false
	}
}

// IsAbort reports whether the error type invalidates the whole run rather
// than a single item. Credential and store problems affect every item, so
// continuing would be pointless.
func IsAbort(t ErrorType) bool {
	return t == ErrorTypeStoreUnavailable || t == ErrorTypeUnauthorized
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable failure.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // network error, no response
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
