// Package apperr defines the error kinds shared by the settlement pipeline and
// its collaborators. A Kind doubles as a sentinel, so callers can write
// errors.Is(err, apperr.MintFailed) regardless of how deep the error is wrapped.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidArgument           Kind = "invalid argument"
	NotFound                  Kind = "not found"
	Conflict                  Kind = "conflict"
	GatewayError              Kind = "gateway error"
	GatewayTimeout            Kind = "gateway timeout"
	PaymentVerificationFailed Kind = "payment verification failed"
	MintFailed                Kind = "mint failed"
	MintTimeout               Kind = "mint timeout"
	Unauthenticated           Kind = "unauthenticated"
)

func (k Kind) Error() string { return string(k) }

// Retryable reports whether the same call may succeed later without the
// caller changing its input.
func (k Kind) Retryable() bool {
	switch k {
	case GatewayError, GatewayTimeout, MintFailed, MintTimeout:
		return true
	}
	return false
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
