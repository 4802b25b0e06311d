// Package domainerrors provides coded errors for registry operations.
//
// Every public operation fails with exactly one code from the closed set
// below. Stores return sentinel errors (pkg/platform/sentinel); services
// translate them into coded errors so transport layers can map codes to
// statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a failure class.
type Code string

const (
	// Operation outcomes.
	CodeNotAuthorized      Code = "not_authorized"
	CodeNotFound           Code = "not_found"
	CodeAlreadyExists      Code = "already_exists"
	CodeInvalidRecipient   Code = "invalid_recipient"
	CodeCredentialExpired  Code = "credential_expired"
	CodeCredentialRevoked  Code = "credential_revoked"
	CodeTransferNotAllowed Code = "transfer_not_allowed"
	CodeEmptyMetadata      Code = "empty_metadata"
	CodeIndexOverflow      Code = "index_overflow"

	// Ambient codes for trust-boundary and infrastructure failures.
	CodeInvalidInput Code = "invalid_input"
	CodeInternal     Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			break
		}
	}
	return false
}

// CodeOf extracts the outermost code, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
