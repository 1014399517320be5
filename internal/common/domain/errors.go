package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInvalidState
	KindForbidden
	KindGone
	KindPaymentRequired
	KindUnavailable
)

// String returns a stable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindForbidden:
		return "forbidden"
	case KindGone:
		return "gone"
	case KindPaymentRequired:
		return "payment_required"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is the typed error shared by every domain package. Package sentinels
// are *Error values, so errors.Is matches them through any amount of %w wrapping
// and errors.As recovers the kind for the HTTP layer.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError creates an error of the given kind with a machine-readable code.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return NewError(KindValidation, "validation_error", message)
}

// NewNotFoundError creates a not-found error for the named entity.
func NewNotFoundError(entity, id string) *Error {
	return NewError(KindNotFound, "not_found", fmt.Sprintf("%s %s not found", entity, id))
}

// NewConflictError creates a conflict error.
func NewConflictError(message string) *Error {
	return NewError(KindConflict, "conflict", message)
}

// NewInvalidStateError creates an error for a disallowed state change.
func NewInvalidStateError(from, to string) *Error {
	return NewError(KindInvalidState, "invalid_state",
		fmt.Sprintf("cannot transition from %s to %s", from, to))
}

// NewForbiddenError creates an access error.
func NewForbiddenError(message string) *Error {
	return NewError(KindForbidden, "forbidden", message)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or "internal_error".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}
