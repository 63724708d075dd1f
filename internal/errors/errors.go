package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess      Code = 0
	CodeInternal     Code = 1
	CodeUsage        Code = 2
	CodeConfig       Code = 3
	CodeUnavailable  Code = 12
	CodeUnknownChain Code = 13
	CodeBlocked      Code = 16
	CodeDuplicateKey Code = 20
	CodeNotFound     Code = 21
	CodeDecryption   Code = 22
	CodeSigner       Code = 23
)

// Error is a typed error that carries a stable error code.
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

// Is reports whether any typed error in err's chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		cliErr, ok := As(err)
		if !ok {
			return false
		}
		if cliErr.Code == code {
			return true
		}
		err = cliErr.Cause
	}
	return false
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

// TypeName is the stable string form of a code used in rendered envelopes.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeConfig:
		return "config_error"
	case CodeUnavailable:
		return "backend_unavailable"
	case CodeUnknownChain:
		return "unknown_chain"
	case CodeBlocked:
		return "command_blocked"
	case CodeDuplicateKey:
		return "duplicate_key"
	case CodeNotFound:
		return "not_found"
	case CodeDecryption:
		return "decryption_error"
	case CodeSigner:
		return "signer_error"
	default:
		return "internal_error"
	}
}
