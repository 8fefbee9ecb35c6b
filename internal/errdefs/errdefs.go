// Package errdefs defines the error taxonomy shared across the data store.
// Every error crossing a package boundary is classified with a Kind so that
// callers can decide between failing, retrying, and surfacing a conflict
// without string matching.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling.
type Kind string

const (
	// KindUnknown is the zero classification for wrapped foreign errors.
	KindUnknown Kind = "UNKNOWN"

	// KindNotFound signals a missing branch, node, or schema entry.
	KindNotFound Kind = "NOT_FOUND"

	// KindBranchExists signals a branch create with a name already in use.
	KindBranchExists Kind = "BRANCH_EXISTS"

	// KindInvalidBranchName signals a branch name outside the allowed grammar.
	KindInvalidBranchName Kind = "INVALID_BRANCH_NAME"

	// KindSchemaMismatch signals a payload referencing an unknown kind,
	// attribute, or relationship.
	KindSchemaMismatch Kind = "SCHEMA_MISMATCH"

	// KindValidation signals malformed input values.
	KindValidation Kind = "VALIDATION_ERROR"

	// KindMergeConflict signals both sides changed the same entity; the
	// error Details carry the conflict list.
	KindMergeConflict Kind = "MERGE_CONFLICT"

	// KindSchemaConflict signals incompatible schema changes between a
	// branch and its parent.
	KindSchemaConflict Kind = "SCHEMA_CONFLICT"

	// KindConflict signals an optimistic concurrency collision. Safe to
	// retry once.
	KindConflict Kind = "CONFLICT"

	// KindTransient signals a recoverable infrastructure failure (timeouts,
	// connection resets). Retried with backoff.
	KindTransient Kind = "TRANSIENT"

	// KindFatal signals corruption or an unrecoverable invariant breach.
	KindFatal Kind = "FATAL"
)

// Error is the concrete error type carrying a Kind, an optional cause, and
// optional structured details (e.g. a merge conflict list).
type Error struct {
	kind    Kind
	msg     string
	cause   error
	details interface{}
}

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil err returns nil.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, cause: err}
}

// Wrapf classifies an existing error with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: err}
}

// WithDetails attaches structured details and returns the same error.
func (e *Error) WithDetails(details interface{}) *Error {
	e.details = details
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Details returns the structured details attached to the error, if any.
func (e *Error) Details() interface{} {
	return e.details
}

// KindOf walks the error chain and returns the first classification found,
// or KindUnknown when the chain carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// DetailsOf walks the error chain and returns the first structured details
// attached, or nil.
func DetailsOf(err error) interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.details
	}
	return nil
}

// IsKind reports whether the error chain carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether the error is a missing-entity error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsBranchExists reports whether the error is a duplicate branch name.
func IsBranchExists(err error) bool { return IsKind(err, KindBranchExists) }

// IsInvalidBranchName reports whether the error is a rejected branch name.
func IsInvalidBranchName(err error) bool { return IsKind(err, KindInvalidBranchName) }

// IsSchemaMismatch reports whether the error references an unknown schema entry.
func IsSchemaMismatch(err error) bool { return IsKind(err, KindSchemaMismatch) }

// IsValidation reports whether the error is malformed input.
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsMergeConflict reports whether the error is a merge conflict.
func IsMergeConflict(err error) bool { return IsKind(err, KindMergeConflict) }

// IsSchemaConflict reports whether the error is a schema conflict.
func IsSchemaConflict(err error) bool { return IsKind(err, KindSchemaConflict) }

// IsConflict reports whether the error is an optimistic concurrency collision.
func IsConflict(err error) bool { return IsKind(err, KindConflict) }

// IsTransient reports whether the error is retryable infrastructure failure.
func IsTransient(err error) bool { return IsKind(err, KindTransient) }

// IsFatal reports whether the error is unrecoverable.
func IsFatal(err error) bool { return IsKind(err, KindFatal) }
