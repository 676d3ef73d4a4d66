package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for boundary response shaping.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindAlreadyExists      ErrorKind = "already_exists"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindConfiguration      ErrorKind = "configuration"
	KindUpstream           ErrorKind = "upstream"
	KindUnknown            ErrorKind = "unknown"
)

// Error carries a kind alongside a human-readable message and an
// optional wrapped cause.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an Error of the given kind.
func E(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef builds an Error with a formatted message.
func Ef(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr attaches a kind and message to an underlying cause.
func WrapErr(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of err, walking the wrap chain. Errors that
// never passed through this package report KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
