// Package apperror defines the error kinds shared by the store, the gateway
// and the HTTP boundary.
//
// Callers compare by kind, never by message:
//
//	if errors.Is(err, apperror.ErrNotFound) { ... }
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindNotFound
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation    = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrAuthorization = &Error{Kind: KindAuthorization, Message: "not authorized"}
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
	ErrTransient     = &Error{Kind: KindTransient, Message: "temporarily unavailable"}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so wrapped errors match the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...any) error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps an infrastructure failure. The message is safe to show to
// a caller, the cause is kept for logs only.
func Transient(message string, cause error) error {
	return &Error{Kind: KindTransient, Message: message, Err: cause}
}

// KindOf returns the kind of err, or KindTransient for errors that carry no
// kind. Unknown failures are treated as infrastructure problems.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// PublicMessage returns text that can be sent to the caller. Transient
// failures never expose their cause.
func PublicMessage(err error, fallback string) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindTransient {
		return fallback
	}
	return e.Message
}
