// Package apperr defines the error-kind vocabulary shared by every
// component of the federation engine, so handlers at the HTTP boundary can
// map a failure to the right status code without inspecting strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds the federation engine raises. It is never
// the concrete error type itself — wrap a cause with New (or one of the
// per-kind constructors) and match with Is against the Kind constants below.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindFetch          Kind = "fetch"
	KindUnsolicited    Kind = "unsolicited_message"
	KindStorage        Kind = "storage"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// behavior (retry, 4xx, swallow) without parsing messages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// AuthorURI is set on UnsolicitedMessage so the caller can record the
	// offending author for future filtering.
	AuthorURI string

	// Reason further classifies a Fetch error (NotFound/TimedOut/TooLarge/
	// UnsupportedMediaType/AuthorityMismatch), matching spec.md 4.C's
	// FetchError variants without needing a Kind per variant.
	Reason string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string, cause error) *Error {
	return New(KindValidation, message, cause)
}

func Authentication(message string, cause error) *Error {
	return New(KindAuthentication, message, cause)
}

func NotFound(message string, cause error) *Error {
	return New(KindNotFound, message, cause)
}

func Conflict(message string, cause error) *Error {
	return New(KindConflict, message, cause)
}

func Fetch(message string, cause error) *Error {
	return New(KindFetch, message, cause)
}

// FetchReason builds a Fetch error carrying one of spec.md 4.C's named
// variants (NotFound, TimedOut, TooLarge, UnsupportedMediaType,
// AuthorityMismatch) for callers that branch on the specific failure mode.
func FetchReason(reason, message string, cause error) *Error {
	e := New(KindFetch, message, cause)
	e.Reason = reason
	return e
}

func Storage(message string, cause error) *Error {
	return New(KindStorage, message, cause)
}

// Unsolicited builds the anti-spam rejection carrying the offending
// author id, per spec S4.
func Unsolicited(authorURI string) *Error {
	return &Error{Kind: KindUnsolicited, Message: "unsolicited message", AuthorURI: authorURI}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
