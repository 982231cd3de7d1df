package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates a missing or invalid session or credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated caller lacking permission.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates that an id or token does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation such as a duplicate username.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput indicates a validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidOperation indicates a well-formed request that is not allowed in the current state.
	ErrInvalidOperation = errors.New("invalid operation")
)

// Kind names an error category for transport layers.
type Kind string

const (
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindInvalidInput     Kind = "invalid_input"
	KindInvalidOperation Kind = "invalid_operation"
	KindInternal         Kind = "internal_error"
)

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	default:
		return KindInternal
	}
}

// ServiceError carries a stable dotted code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the "<operation>.<reason>" identifier.
func (e *ServiceError) Code() string {
	return e.code
}

// Detail returns the cause message without the code prefix.
func (e *ServiceError) Detail() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

// New builds a ServiceError for operation and reason wrapping cause.
func New(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Wrap annotates a kind sentinel with a formatted detail message.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
