package models

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories the HTTP boundary knows how to
// render. Anything that was never classified is KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidName
	KindInvalidEmail
	KindEmailAlreadyExists
	KindUserNotFound
	KindDatabase
	KindEnv
)

func (k Kind) String() string {
	switch k {
	case KindInvalidName:
		return "invalid name"
	case KindInvalidEmail:
		return "invalid email"
	case KindEmailAlreadyExists:
		return "email already exists"
	case KindUserNotFound:
		return "user not found"
	case KindDatabase:
		return "database error"
	case KindEnv:
		return "environment error"
	default:
		return "internal error"
	}
}

// Error is a classified failure. Op names the operation that failed and Err,
// when present, is the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

var (
	ErrInvalidName        = &Error{Kind: KindInvalidName}
	ErrInvalidEmail       = &Error{Kind: KindInvalidEmail}
	ErrEmailAlreadyExists = &Error{Kind: KindEmailAlreadyExists}
	ErrUserNotFound       = &Error{Kind: KindUserNotFound}
	ErrDatabase           = &Error{Kind: KindDatabase}
	ErrEnv                = &Error{Kind: KindEnv}
)

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind, so errors.Is(err, ErrUserNotFound) holds for any
// UserNotFound error regardless of Op or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
