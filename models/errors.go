package models

import (
	"errors"
	"fmt"
)

// Code classifies every failure the engine can surface. Public entry points
// return either a domain value or an *Error carrying one of these codes;
// nothing panics across the boundary.
type Code string

const (
	CodeAborted            Code = "aborted"
	CodeInvalidRequest     Code = "invalid_request"
	CodeSameNetwork        Code = "same_network"
	CodeNoBaseTokenFound   Code = "no_base_token_found"
	CodeRoutesNotFound     Code = "routes_not_found"
	CodeSimulationFailed   Code = "simulation_failed"
	CodeInternalError      Code = "internal_error"
	CodeTransactionPrepare Code = "transaction_prepare_error"
	CodeExtensionInit      Code = "extension_init_error"
	CodeExtension          Code = "extension_error"
)

// Error is the typed result surfaced across the public boundary. The wrapped
// cause, when present, preserves the original downstream message for
// diagnostics.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// WrapError converts an unexpected downstream failure into a typed error,
// preserving the cause.
func WrapError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code of a typed error, defaulting to InternalError for
// anything untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalError
}
