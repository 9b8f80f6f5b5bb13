package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Base error types
var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrTimeout          = errors.New("timeout")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConnectionFailed = errors.New("connection failed")
	ErrDecodeFailed     = errors.New("decode failed")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeAPI        ErrorType = "api"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeDecode     ErrorType = "decode"
)

// FetchError is a structured error for sheet fetch operations. A refresh
// cycle fails as a whole when any of its fetches returns one.
type FetchError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "fetch_values", "open_workbook")
	Sheet      string // Sheet kind or range the operation targeted
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Timestamp  time.Time
}

func (e *FetchError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Sheet, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *FetchError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrUnauthorized, ErrForbidden:
		return e.Type == ErrorTypeAuth
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	case ErrDecodeFailed:
		return e.Type == ErrorTypeDecode
	}

	return errors.Is(e.Err, target)
}

// NewFetchError creates a new FetchError
func NewFetchError(errorType ErrorType, op, sheet string, err error) *FetchError {
	return &FetchError{
		Type:      errorType,
		Op:        op,
		Sheet:     sheet,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithStatusCode adds HTTP status code to the error and refines the type
// for statuses that map onto a base error.
func (e *FetchError) WithStatusCode(code int) *FetchError {
	e.StatusCode = code
	switch {
	case code == 401 || code == 403:
		e.Type = ErrorTypeAuth
	case code == 404:
		e.Type = ErrorTypeNotFound
	case code == 408 || code == 504:
		e.Type = ErrorTypeTimeout
	}
	return e
}

// WrapConnectionError wraps a transport error with context
func WrapConnectionError(op, sheet string, err error) error {
	return NewFetchError(ErrorTypeConnection, op, sheet, err)
}

// WrapAPIError wraps a non-success upstream response with context
func WrapAPIError(op, sheet string, err error, statusCode int) error {
	return NewFetchError(ErrorTypeAPI, op, sheet, err).WithStatusCode(statusCode)
}

// WrapDecodeError wraps a payload that could not be turned into a table
func WrapDecodeError(op, sheet string, err error) error {
	return NewFetchError(ErrorTypeDecode, op, sheet, err)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.Type == ErrorTypeAuth {
			return true
		}
		if fetchErr.StatusCode == 401 || fetchErr.StatusCode == 403 {
			return true
		}
	}

	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "forbidden") ||
		strings.Contains(errMsg, "api key not valid")
}

// SheetOf returns the sheet recorded on a FetchError anywhere in the chain.
func SheetOf(err error) string {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Sheet
	}
	return ""
}
