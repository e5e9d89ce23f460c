package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Domain errors
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeValidationError ErrorCode = "VALIDATION_ERROR"

	// Parameter and template errors. Permanent for the current context.
	ErrCodeMissingParameter    ErrorCode = "MISSING_PARAMETER"
	ErrCodeMissingContextValue ErrorCode = "MISSING_CONTEXT_VALUE"
	ErrCodeLookupNotFound      ErrorCode = "LOOKUP_NOT_FOUND"
	ErrCodeAmbiguousLookup     ErrorCode = "AMBIGUOUS_LOOKUP"

	// Dispatch errors
	ErrCodeUnknownPlugin     ErrorCode = "UNKNOWN_PLUGIN"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrCodeTransportError    ErrorCode = "TRANSPORT_ERROR"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
	ErrCodeCancelled         ErrorCode = "CANCELLED"
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// Infrastructure errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Status  int // HTTP status code

	// RetryAfter is set for RATE_LIMITED errors.
	RetryAfter time.Duration
	// UpstreamStatus is the status code returned by a downstream system, if any.
	UpstreamStatus int
	// NotSent marks dispatch failures that happened before the request left
	// the process, such as a refused connection.
	NotSent bool
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Detail is the message shown to callers. Transport, timeout and malformed
// response errors carry their cause, since the message alone only names the call.
func (e *AppError) Detail() string {
	if e.Err == nil {
		return e.Message
	}
	switch e.Code {
	case ErrCodeTransportError, ErrCodeTimeout, ErrCodeMalformedResponse:
		return e.Message + ": " + causeText(e.Err)
	}
	return e.Message
}

// causeText prefers the innermost AppError's detail over its coded Error()
func causeText(err error) string {
	var inner *AppError
	if stderrors.As(err, &inner) {
		return inner.Detail()
	}
	return err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Status:  getHTTPStatus(code),
	}
}

// WrapError wraps an existing error with an error code and message
func WrapError(code ErrorCode, message string, err error) *AppError {
	return NewAppError(code, message, err)
}

// MissingParameter is returned when a template placeholder has no value.
func MissingParameter(name string) *AppError {
	return NewAppError(ErrCodeMissingParameter, fmt.Sprintf("no value for placeholder '${%s}'", name), nil)
}

// MissingContextValue is returned when the execution context lacks a required key.
func MissingContextValue(key string) *AppError {
	return NewAppError(ErrCodeMissingContextValue, fmt.Sprintf("context value '%s' is not set", key), nil)
}

// RateLimited builds a RATE_LIMITED error carrying the wait before the next allowed request.
func RateLimited(key string, wait time.Duration) *AppError {
	e := NewAppError(ErrCodeRateLimited, fmt.Sprintf("rate limit for '%s' exceeded, retry in %s", key, wait.Round(time.Second)), nil)
	e.RetryAfter = wait
	return e
}

// Transport builds a TRANSPORT_ERROR, optionally carrying the upstream HTTP status.
func Transport(message string, upstreamStatus int, err error) *AppError {
	e := NewAppError(ErrCodeTransportError, message, err)
	e.UpstreamStatus = upstreamStatus
	return e
}

// NotDispatched builds a TRANSPORT_ERROR for a request that never reached
// the target. A rate-limit slot taken for it can be given back.
func NotDispatched(message string, err error) *AppError {
	e := Transport(message, 0, err)
	e.NotSent = true
	return e
}

// WasNotSent reports whether err marks a request that was never dispatched
func WasNotSent(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.NotSent
}

// getHTTPStatus maps error codes to HTTP status codes
func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeLookupNotFound:
		return http.StatusNotFound
	case ErrCodeValidationError, ErrCodeMissingParameter, ErrCodeMissingContextValue:
		return http.StatusBadRequest
	case ErrCodeAmbiguousLookup:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeTransportError, ErrCodeMalformedResponse:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeCancelled:
		return 499
	case ErrCodeUnknownPlugin, ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus returns the HTTP status a transport should answer with for code
func HTTPStatus(code ErrorCode) int {
	return getHTTPStatus(code)
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or
// INTERNAL_ERROR when there is none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// IsTransient reports whether retrying the same request later may succeed.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case ErrCodeRateLimited, ErrCodeTransportError, ErrCodeTimeout:
		return true
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeNotFound || code == ErrCodeLookupNotFound
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return CodeOf(err) == ErrCodeValidationError
}

// Annotate prefixes the message of err with context while keeping its code.
// Non-AppErrors are wrapped with fmt.Errorf.
func Annotate(err error, prefix string) error {
	if err == nil {
		return nil
	}
	appErr, ok := AsAppError(err)
	if !ok {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	annotated := *appErr
	annotated.Message = prefix + ": " + appErr.Message
	return &annotated
}
