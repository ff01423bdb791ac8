package search

import (
	"context"
	"errors"
	"fmt"
)

// Code discriminates error kinds surfaced by the discovery core.
type Code string

// Error codes.
const (
	CodeInvalidRequest  Code = "InvalidRequest"
	CodeQueryEmpty      Code = "QueryEmpty"
	CodeIndexNotReady   Code = "IndexNotReady"
	CodeModelMismatch   Code = "ModelMismatch"
	CodeEmbeddingFailed Code = "EmbeddingFailed"
	CodeOverloaded      Code = "Overloaded"
	CodeCancelled       Code = "Cancelled"
	CodeNotFound        Code = "NotFound"
	CodeInternal        Code = "Internal"
)

// retryableCodes marks which error kinds a caller may retry.
var retryableCodes = map[Code]bool{
	CodeIndexNotReady:   true,
	CodeModelMismatch:   true,
	CodeEmbeddingFailed: true,
	CodeOverloaded:      true,
	CodeInternal:        true,
}

// Error is the discriminated error envelope for the discovery core.
// A query never partially succeeds: either a complete envelope is returned
// or an Error is.
type Error struct {
	code    Code
	message string
	cause   error
}

// NewError creates an Error with the given code and message.
func NewError(code Code, message string, cause error) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.code == t.code
	}
	return false
}

// Code returns the error code.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable message.
func (e *Error) Message() string { return e.message }

// Retryable reports whether the caller may retry the operation.
func (e *Error) Retryable() bool { return retryableCodes[e.code] }

// ErrInvalidRequest creates an InvalidRequest error.
func ErrInvalidRequest(message string) *Error {
	return NewError(CodeInvalidRequest, message, nil)
}

// ErrQueryEmpty creates a QueryEmpty error.
func ErrQueryEmpty() *Error {
	return NewError(CodeQueryEmpty, "query is blank after trimming", nil)
}

// ErrIndexNotReady creates an IndexNotReady error.
func ErrIndexNotReady(message string) *Error {
	return NewError(CodeIndexNotReady, message, nil)
}

// ErrModelMismatch creates a ModelMismatch error.
func ErrModelMismatch(message string) *Error {
	return NewError(CodeModelMismatch, message, nil)
}

// ErrEmbeddingFailed creates an EmbeddingFailed error.
func ErrEmbeddingFailed(cause error) *Error {
	return NewError(CodeEmbeddingFailed, "embedding backend failed", cause)
}

// ErrOverloaded creates an Overloaded error.
func ErrOverloaded() *Error {
	return NewError(CodeOverloaded, "embedding queue saturated", nil)
}

// ErrCancelled creates a Cancelled error.
func ErrCancelled(cause error) *Error {
	return NewError(CodeCancelled, "query cancelled", cause)
}

// ErrNotFound creates a NotFound error.
func ErrNotFound(message string) *Error {
	return NewError(CodeNotFound, message, nil)
}

// ErrInternal wraps an unclassified error.
func ErrInternal(cause error) *Error {
	return NewError(CodeInternal, "internal error", cause)
}

// Classify coerces any error into an *Error. Context cancellations map to
// Cancelled; everything unrecognised maps to Internal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCancelled(err)
	}
	return ErrInternal(err)
}
