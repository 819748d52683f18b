package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// Mint admission denials. Each reason is its own code so errors.Is can tell them apart.
	CodeNoActivePhase      Code = "no_active_phase"
	CodeWalletLocked       Code = "wallet_locked"
	CodeCapacityExceeded   Code = "capacity_exceeded"
	CodeNotAllowlisted     Code = "not_allowlisted"
	CodeNoAllowanceLeft    Code = "no_allowance_left"
	CodeWalletLimitReached Code = "wallet_limit_reached"

	CodeProviderUnavailable Code = "provider_unavailable"
	CodeConfiguration       Code = "configuration_error"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsAdmissionDenial reports whether the error is a user-correctable admission denial.
func IsAdmissionDenial(err error) bool {
	switch CodeOf(err) {
	case CodeNoActivePhase, CodeWalletLocked, CodeCapacityExceeded,
		CodeNotAllowlisted, CodeNoAllowanceLeft, CodeWalletLimitReached:
		return true
	default:
		return false
	}
}
