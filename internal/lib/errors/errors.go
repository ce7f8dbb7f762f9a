package errors

import (
	"errors"
	"fmt"
)

// HttpError is the JSON body returned for every failed request.
type HttpError struct {
	Reason string `json:"reason"`
}

func NewHttpError(reason string) HttpError {
	return HttpError{Reason: reason}
}

type Kind int

const (
	KindValidation Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindPrecondition
	KindConflict
)

// Error is a domain failure carrying a kind for HTTP mapping and a
// human-readable reason naming the violated rule.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, reason string) error {
	return &Error{Kind: kind, Reason: reason}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, reason string, err error) error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf reports the kind of err if it is (or wraps) a domain Error.
func KindOf(err error) (Kind, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
