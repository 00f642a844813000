package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeUnavailable Code = 12
	CodeBlocked     Code = 16

	// Reward workflow taxonomy.
	CodeConnection   Code = 20
	CodeQuery        Code = 21
	CodeEstimation   Code = 22
	CodeSubmission   Code = 23
	CodeConfirmation Code = 24
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	cErr, ok := As(err)
	return ok && cErr.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeName returns the envelope error type for a code.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeUnavailable:
		return "rpc_unavailable"
	case CodeBlocked:
		return "command_blocked"
	case CodeConnection:
		return "connection_error"
	case CodeQuery:
		return "query_error"
	case CodeEstimation:
		return "estimation_error"
	case CodeSubmission:
		return "submission_error"
	case CodeConfirmation:
		return "confirmation_error"
	default:
		return "internal_error"
	}
}
