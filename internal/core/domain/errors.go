package domain

import (
	"errors"
	"fmt"
)

// DomainError is a storage-level error carrying a stable error code.
//
// Codes have the form ZR-<AREA>-<NNNN>, where the numeric part mirrors the
// HTTP status the request layer should answer with.
type DomainError struct {
	Code    string // Error code (e.g., "ZR-KEY-4001")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Request Errors (KEY / VAL / REQ)
// ============================================================================

var (
	// ErrInvalidKey indicates the key failed validation. Details carry the rule.
	ErrInvalidKey = NewDomainError("ZR-KEY-4001", "invalid key")

	// ErrValueTooLarge indicates the value exceeds MaxValueSize.
	ErrValueTooLarge = NewDomainError("ZR-VAL-4130", "value too large")

	// ErrInvalidArgument indicates a malformed request argument.
	ErrInvalidArgument = NewDomainError("ZR-REQ-4000", "invalid argument")

	// ErrKeyNotFound indicates the requested key does not exist.
	ErrKeyNotFound = NewDomainError("ZR-KEY-4040", "key not found")

	// ErrUnsupported indicates the active backend does not offer the operation.
	ErrUnsupported = NewDomainError("ZR-REQ-4001", "operation not supported by backend")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternal indicates an unexpected internal failure.
	ErrInternal = NewDomainError("ZR-SYS-5000", "internal error")

	// ErrStorageIO indicates the durable medium failed; the operation did not take effect.
	ErrStorageIO = NewDomainError("ZR-SYS-5001", "storage i/o error")

	// ErrEngineClosed indicates the engine has been closed.
	ErrEngineClosed = NewDomainError("ZR-SYS-5030", "storage engine closed")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("ZR-SYS-4290", "too many requests")
)
