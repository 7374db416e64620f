package fault

import (
	"context"
	"errors"
	"fmt"
)

// Code identifies the failure class of a domain error. The retry path
// depends on it: transient codes are re-enqueued, everything else is final.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeAborted            Code = "ABORTED"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeDeadlineExceeded   Code = "DEADLINE_EXCEEDED"
	CodeInternal           Code = "INTERNAL"
)

// Error carries a classification code alongside the wrapped cause.
type Error struct {
	code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// New creates a classified error with a human-readable message.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification code to an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &Error{code: code, msg: msg, err: err}
}

// CodeOf extracts the classification code from an error chain.
// Context deadline and cancellation errors classify as DEADLINE_EXCEEDED
// so that timed-out downstream calls route to the retry path.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeDeadlineExceeded
	}
	return CodeInternal
}

// Message returns the human-readable message without the code prefix.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsTransient reports whether the error is worth retrying. Unclassified
// errors count as transient: an unknown failure mode should not burn the
// order permanently.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeNotFound, CodeInvalidArgument, CodeFailedPrecondition:
		return false
	default:
		return true
	}
}
