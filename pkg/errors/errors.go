// Package errors provides structured error types for docsnap.
//
// Every failure the codec reports carries a machine-readable Code so that
// callers can tell a malformed payload from a registry mistake without
// matching on message text:
//
//   - NON_STRING_KEY, UNSUPPORTED_VALUE: the flattener met a value it cannot represent
//   - UNSUPPORTED_CODEC, MALFORMED_TAG, UNRESOLVED_REFERENCE: a stored snapshot is bad
//   - UNKNOWN_TYPE, INVALID_REGISTRATION: the type registry is missing or misconfigured
//   - MIGRATION_STEP_MISSING: a versioned type cannot bridge two schema versions
//   - INVALID_CONFIG, NOT_FOUND, STORAGE: the surrounding storage layer
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnknownType, "unknown type %q", name)
//	if errors.Is(err, errors.ErrCodeUnknownType) {
//	    // register the type and retry
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStorage, origErr, "insert into %s", coll)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Flattening errors
	ErrCodeNonStringKey     Code = "NON_STRING_KEY"
	ErrCodeUnsupportedValue Code = "UNSUPPORTED_VALUE"

	// Payload errors
	ErrCodeUnsupportedCodec    Code = "UNSUPPORTED_CODEC"
	ErrCodeMalformedTag        Code = "MALFORMED_TAG"
	ErrCodeUnresolvedReference Code = "UNRESOLVED_REFERENCE"

	// Registry errors
	ErrCodeUnknownType         Code = "UNKNOWN_TYPE"
	ErrCodeInvalidRegistration Code = "INVALID_REGISTRATION"

	// Schema evolution errors
	ErrCodeMigrationStepMissing Code = "MIGRATION_STEP_MISSING"
	ErrCodeMigrationFailed      Code = "MIGRATION_FAILED"
	ErrCodeRestoreFailed        Code = "RESTORE_FAILED"

	// Storage errors
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeNotFound      Code = "NOT_FOUND"
	ErrCodeStorage       Code = "STORAGE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// MigrationStepError describes a hole in a type's version chain.
// It is returned both when a type is registered with a gapped chain and
// when stored data sits outside the range the chain covers.
type MigrationStepError struct {
	TypeName string
	From     int // version the missing step would start from
	To       int // version the missing step would produce
}

// Error implements the error interface.
func (e *MigrationStepError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeMigrationStepMissing, e.detail())
}

func (e *MigrationStepError) detail() string {
	direction := "upgrade"
	if e.From > e.To {
		direction = "downgrade"
	}
	return fmt.Sprintf("no %s step for %s from version %d to %d", direction, e.TypeName, e.From, e.To)
}

// Code returns the error code for this error type.
func (e *MigrationStepError) Code() Code {
	return ErrCodeMigrationStepMissing
}

// Unwrap exposes an *Error carrying the same code so Is and GetCode work
// on MigrationStepError values too.
func (e *MigrationStepError) Unwrap() error {
	return &Error{Code: ErrCodeMigrationStepMissing, Message: e.detail()}
}
