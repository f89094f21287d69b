// Package errors provides structured error types for the persist engine.
//
// Every failure the engine reports carries a machine-readable [Code] so that
// callers (editor front ends, the CLI, the HTTP API) can tell a broken schema
// apart from a broken document without parsing messages.
//
// # Error Codes
//
// The three engine codes mirror the points at which an archive can fail:
//   - SCHEMA_ERROR: raised while building a schema (invalid root, reference on a
//     primitive, a cycle through non-reference members). Always fatal.
//   - TYPE_MISMATCH: raised by Write when the instance does not match the root type.
//   - SERIALIZATION_ERROR: raised by Write or Read for unresolved references,
//     unknown discriminators, malformed documents and codec conflicts.
//
// General codes (INVALID_*, NOT_FOUND, CONFLICT, INTERNAL_ERROR, UNSUPPORTED) are used by the
// supporting packages: stores, caches, the CLI and the HTTP API.
//
// # Usage
//
//	err := errors.Schema("root must be a complex type")
//	if errors.Is(err, errors.ErrCodeSchema) {
//	    // Handle schema error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeSerialization, origErr, "decode %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Engine errors
	ErrCodeSchema        Code = "SCHEMA_ERROR"
	ErrCodeTypeMismatch  Code = "TYPE_MISMATCH"
	ErrCodeSerialization Code = "SERIALIZATION_ERROR"

	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidName   Code = "INVALID_NAME"
	ErrCodeInvalidKey    Code = "INVALID_KEY"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"
	ErrCodeConflict     Code = "CONFLICT"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
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

// Schema creates a SCHEMA_ERROR.
func Schema(format string, args ...any) *Error {
	return New(ErrCodeSchema, format, args...)
}

// TypeMismatch creates a TYPE_MISMATCH error.
func TypeMismatch(format string, args ...any) *Error {
	return New(ErrCodeTypeMismatch, format, args...)
}

// Serialization creates a SERIALIZATION_ERROR.
func Serialization(format string, args ...any) *Error {
	return New(ErrCodeSerialization, format, args...)
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
// The outermost *Error wins, so a wrapped error reports its wrapper's code.
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
