// Package vaulterr defines the error taxonomy shared by the vault core.
// Primitives (derivation, encryption) return these as hard errors; the
// service layer converts them into result structs for UI-facing callers.
package vaulterr

import (
	"errors"
	"fmt"
)

// Code classifies a vault error.
type Code string

const (
	CodeValidation       Code = "validation"
	CodeNotAvailable     Code = "not_available"
	CodeNotConfigured    Code = "not_configured"
	CodeNotAuthenticated Code = "not_authenticated"
	CodeAuthCancelled    Code = "authentication_cancelled"
	CodeAuthFailed       Code = "authentication_failed"
	CodeTimeout          Code = "timeout"
	CodeIntegrity        Code = "integrity"
	CodeStorage          Code = "storage"
)

// Error carries a taxonomy code, a non-sensitive reason and an optional cause.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error with the given code and reason.
func New(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// Wrap attaches a taxonomy code to an underlying error.
func Wrap(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf extracts the taxonomy code from err, or empty when err carries none.
func CodeOf(err error) Code {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Recoverable reports whether a retry with the same inputs can succeed.
// Integrity failures signal tampering or a wrong key and are terminal.
func (e *Error) Recoverable() bool {
	switch e.Code {
	case CodeIntegrity, CodeValidation:
		return false
	default:
		return true
	}
}
