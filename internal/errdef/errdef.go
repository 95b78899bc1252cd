package errdef

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the CLI and HTTP boundaries.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindAlreadyExists Kind = "already_exists"
	KindStateConflict Kind = "state_conflict"
	KindSpawn         Kind = "spawn_error"
	KindIO            Kind = "io_error"
	KindDB            Kind = "db_error"
	KindAuth          Kind = "auth_error"
	KindTimeout       Kind = "timeout"
	KindInternal      Kind = "internal"
)

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a tagged error without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error. A nil cause yields nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func AlreadyExists(format string, args ...any) *Error {
	return New(KindAlreadyExists, format, args...)
}

func StateConflict(format string, args ...any) *Error {
	return New(KindStateConflict, format, args...)
}

// KindOf returns the Kind attached to err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
