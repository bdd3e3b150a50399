package core

import (
	"errors"
	"fmt"
)

// ValidationError represents a malformed envelope or configuration value.
// Requests that produce one are rejected before anything is enqueued and are
// never retried.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is the validation error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// TransportError represents a failure of a single transport to deliver an
// envelope. Transports never return generic errors: every delivery failure
// is wrapped so the coordinator can tell "try the fallback" apart from
// "the input itself is broken".
type TransportError struct {
	// Transport is the name of the transport that failed.
	Transport string

	// Code is a short machine-readable failure class.
	Code string

	// Message is the failure detail.
	Message string

	// StatusCode is the HTTP status code for API-based transports, zero
	// otherwise.
	StatusCode int

	// Temporary marks failures that are likely to succeed on a later
	// attempt (connection resets, 5xx responses, rate limits).
	Temporary bool

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport %s error [%s] (status: %d): %s",
			e.Transport, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transport %s error [%s]: %s", e.Transport, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a transport error for a non-recoverable failure.
func NewTransportError(transport, code, message string) *TransportError {
	return &TransportError{
		Transport: transport,
		Code:      code,
		Message:   message,
	}
}

// NewTemporaryTransportError creates a transport error for a failure that a
// later attempt may recover from.
func NewTemporaryTransportError(transport, code, message string, cause error) *TransportError {
	return &TransportError{
		Transport: transport,
		Code:      code,
		Message:   message,
		Temporary: true,
		Cause:     cause,
	}
}

// DeliveryFailedError means both the primary and the fallback transport
// failed for one delivery attempt. It is the only error shape the retry
// scheduler ever sees; raw transport errors stay inside the coordinator.
type DeliveryFailedError struct {
	// Primary is the error from the primary transport.
	Primary error

	// Fallback is the error from the fallback transport.
	Fallback error
}

// Error implements the error interface.
func (e *DeliveryFailedError) Error() string {
	return fmt.Sprintf("delivery failed: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

// Unwrap returns both underlying errors for errors.Is/As traversal.
func (e *DeliveryFailedError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDeliveryFailed reports whether err is (or wraps) a DeliveryFailedError.
func IsDeliveryFailed(err error) bool {
	var dfe *DeliveryFailedError
	return errors.As(err, &dfe)
}

// IsTemporary reports whether err is a transport error marked temporary.
func IsTemporary(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Temporary
	}
	return false
}
