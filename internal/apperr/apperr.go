// Package apperr defines the runtime's closed error-kind taxonomy (spec §7)
// and a typed wrapper that is both errors.Is and errors.As compatible.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of error categories every component-facing
// error must fall into. Transport edges and the admin REST surface map Kind
// to an HTTP status / outbound frame error code; nothing else should invent
// a new category.
type Kind string

const (
	Validation    Kind = "validation"     // malformed or out-of-contract input
	NotFound      Kind = "not_found"      // referenced entity does not exist
	AlreadyExists Kind = "already_exists" // caller tried to create an entity that already exists (e.g. a non-deleted session id, a duplicate approval request_id)
	PolicyDenied  Kind = "policy_denied"  // approval policy or access control refused the action
	Upstream      Kind = "upstream"       // an external collaborator (LLM provider, MCP server) failed
	Storage       Kind = "storage"        // persistence layer failed to read or write
	Protocol      Kind = "protocol"       // a wire contract was violated (bad frame, bad envelope)
	Timeout       Kind = "timeout"        // an operation exceeded its deadline
	Cancellation  Kind = "cancellation"   // an operation was cancelled by its caller
)

// Error is the runtime's standard error shape: a Kind plus a wrapped cause.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "store.AppendMessage"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, apperr.ErrNotFound) style checks via the Kind sentinels
// below, or compare two *Error values directly.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an *Error of the given kind, wrapping cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// KindOf extracts the Kind of err, if err is (or wraps) an *Error; ok is
// false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// sentinel returns a zero-cause *Error of kind, usable as an errors.Is
// target: errors.Is(err, apperr.ErrNotFound) — see Error.Is.
func sentinel(k Kind) *Error { return &Error{Kind: k} }

// Sentinels for errors.Is comparisons, e.g. errors.Is(err, apperr.ErrNotFound).
var (
	ErrValidation    = sentinel(Validation)
	ErrNotFound      = sentinel(NotFound)
	ErrAlreadyExists = sentinel(AlreadyExists)
	ErrPolicyDenied  = sentinel(PolicyDenied)
	ErrUpstream     = sentinel(Upstream)
	ErrStorage      = sentinel(Storage)
	ErrProtocol     = sentinel(Protocol)
	ErrTimeout      = sentinel(Timeout)
	ErrCancellation = sentinel(Cancellation)
)
