package app

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input; nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks a failed or unreachable document or object store.
	ErrStorage = errors.New("storage unavailable")
	// ErrNotFound marks a missing record or object.
	ErrNotFound = errors.New("not found")
	// ErrEmail marks a relay that was unreachable or rejected the message.
	ErrEmail = errors.New("email delivery failed")
	// ErrUnauthorized marks a failed admin capability check.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited marks a caller over quota.
	ErrRateLimited = errors.New("rate limited")
)

// kindError attaches a kind sentinel and a caller-facing message to a cause.
type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func validationf(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func notFound(msg string) error {
	return &kindError{kind: ErrNotFound, msg: msg}
}

func storageErr(msg string, cause error) error {
	return &kindError{kind: ErrStorage, msg: msg, cause: cause}
}

func emailErr(msg string, cause error) error {
	return &kindError{kind: ErrEmail, msg: msg, cause: cause}
}

// Message returns the caller-facing text of err without its internal cause.
func Message(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.msg
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "too many requests"
	}
	return "internal error"
}

// IsRetryable reports whether err came from a call that hit its time bound.
// Create is not idempotent, so callers decide whether to retry.
func IsRetryable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
