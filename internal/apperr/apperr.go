// Package apperr classifies errors the core raises by a stable wire code:
// bad_request (user input and config errors), not_found,
// embeddings_disabled, and internal (external I/O and anything not
// otherwise classified). The HTTP boundary maps Code() to a wire envelope.
package apperr

import "fmt"

// Code identifies the wire-facing error category.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeNotFound            Code = "not_found"
	CodeEmbeddingsDisabled  Code = "embeddings_disabled"
	CodeInternal            Code = "internal"
)

// Error wraps an underlying error with a stable Code for the boundary.
type Error struct {
	code Code
	msg  string
	err  error
}

func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{code: code, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Code() Code { return e.code }

// UserInput builds a bad_request error for malformed caller input (unknown
// mode, bad date, unknown connector, missing query vector, ...).
func UserInput(format string, args ...interface{}) *Error {
	return New(CodeBadRequest, fmt.Sprintf(format, args...))
}

// NotFound builds a not_found error.
func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

// EmbeddingsDisabled builds the dedicated error raised when a caller
// requires embeddings but the configured provider is "disabled".
func EmbeddingsDisabled() *Error {
	return New(CodeEmbeddingsDisabled, "embedding provider is disabled")
}

// Internal wraps an unexpected/backend error (store I/O, and anything not
// otherwise classified).
func Internal(msg string, err error) *Error {
	return Wrap(CodeInternal, msg, err)
}
