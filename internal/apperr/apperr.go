// Package apperr carries the error taxonomy shared by the messaging
// core. Services classify failures into one of five kinds; handlers map
// each kind to an HTTP status without inspecting error text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	// KindUnknown is the zero value for errors this package did not wrap.
	KindUnknown Kind = iota
	// KindValidation marks malformed or missing caller input.
	KindValidation
	// KindAuthorization marks a caller lacking the required relationship or role.
	KindAuthorization
	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound
	// KindConflict marks state that already satisfies or precludes the change.
	KindConflict
	// KindTransient marks storage or gateway failures not attributable to the caller.
	KindTransient
)

// Error pairs a kind with a message and an optional wrapped cause.
type Error struct {
	Kind Kind
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

// Validation builds a KindValidation error.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Authorization builds a KindAuthorization error.
func Authorization(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Transient wraps an infrastructure failure.
func Transient(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransient, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind recorded on err, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
