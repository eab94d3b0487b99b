package errors

import (
	"errors"
	"fmt"
)

var (
	// Session errors
	ErrSessionNotFound        = errors.New("payment session not found")
	ErrSessionActive          = errors.New("a payment session is already active for this order")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOrderReferenceRequired = errors.New("order reference is required")
	ErrOrderReferenceChanged  = errors.New("order reference cannot change during a session")
	ErrRetryNotAllowed        = errors.New("payment cannot be retried in its current state")
	ErrPaymentTimeout         = errors.New("no payment confirmation received in time")

	// Order errors
	ErrOrderNotFound = errors.New("order not found")

	// Upstream errors
	ErrUpstreamUnavailable = errors.New("storefront backend unavailable")
	ErrUpstreamRejected    = errors.New("request rejected by storefront backend")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Is lets callers match any ValidationError with errors.Is(err, ErrValidationFailed).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// TransportError is a failed call to the storefront backend: either the request never
// completed (Err set) or it completed with a non-2xx status (StatusCode set).
// Message carries the server supplied error text when there was one.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUpstreamRejected
}

// NewTransportError creates a new transport error
func NewTransportError(op string, statusCode int, message string, err error) *TransportError {
	return &TransportError{
		Op:         op,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}
