package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation   = errors.New("invalid request")
	ErrUnauthorized = errors.New("not allowed")
	ErrConflict     = errors.New("already done")
	ErrNotFound     = errors.New("not found")
	ErrTransient    = errors.New("store unavailable")
)

type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorized(op, msg string) error {
	return &Error{Kind: ErrUnauthorized, Op: op, Msg: msg}
}

func Conflict(op, msg string) error {
	return &Error{Kind: ErrConflict, Op: op, Msg: msg}
}

func NotFound(op, msg string) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: msg}
}

func Transient(op string, err error) error {
	return &Error{Kind: ErrTransient, Op: op, Msg: ErrTransient.Error(), Err: err}
}

// Message returns the text safe to show to a player.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		return e.Kind.Error()
	}
	return "something went wrong"
}
