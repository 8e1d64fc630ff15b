package task

import (
	"errors"
	"fmt"
)

// Error kinds. Every error leaving the task service matches exactly one of these
// through errors.Is.
var (
	// ErrValidation is returned when caller input is structurally invalid.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when the referenced task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrForbidden is returned when the task exists but belongs to someone else.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when a conditional write lost a race.
	ErrConflict = errors.New("conflict")
	// ErrStore is returned for any storage failure.
	ErrStore = errors.New("store error")
)

var kinds = []error{ErrValidation, ErrNotFound, ErrForbidden, ErrConflict, ErrStore}

// Error carries a kind, a client-safe message and an optional internal cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewValidationError returns an ErrValidation with message.
func NewValidationError(message string) *Error {
	return &Error{Kind: ErrValidation, Message: message}
}

// NewNotFoundError returns an ErrNotFound with message.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: ErrNotFound, Message: message}
}

// NewForbiddenError returns an ErrForbidden with message.
func NewForbiddenError(message string) *Error {
	return &Error{Kind: ErrForbidden, Message: message}
}

// NewConflictError returns an ErrConflict with message and cause.
func NewConflictError(message string, err error) *Error {
	return &Error{Kind: ErrConflict, Message: message, Err: err}
}

// NewStoreError wraps a storage failure. The cause is for logs only.
func NewStoreError(err error) *Error {
	return &Error{Kind: ErrStore, Message: "Internal server error", Err: err}
}

// KindOf classifies err. A typed Error reports its own kind even when its
// cause matches another kind. Unknown errors are storage failures.
func KindOf(err error) error {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrStore
}

// KindName returns the stable wire name of a kind.
func KindName(kind error) string {
	switch kind {
	case ErrValidation:
		return "validation_error"
	case ErrNotFound:
		return "not_found"
	case ErrForbidden:
		return "forbidden"
	case ErrConflict:
		return "conflict"
	default:
		return "store_error"
	}
}

// KindFromName is the inverse of KindName.
func KindFromName(name string) error {
	switch name {
	case "validation_error":
		return ErrValidation
	case "not_found":
		return ErrNotFound
	case "forbidden":
		return ErrForbidden
	case "conflict":
		return ErrConflict
	default:
		return ErrStore
	}
}

// MessageOf returns the client-safe message of err. Storage failures and
// unclassified errors collapse to a generic message.
func MessageOf(err error) string {
	var te *Error
	if errors.As(err, &te) && te.Kind != ErrStore {
		return te.Message
	}
	return "Internal server error"
}
