// Package apperr defines the error kinds surfaced to the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a typed application error. Fields carries per-field messages for
// validation failures.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NotFound reports a missing resource, e.g. NotFound("qr code", id).
func NotFound(resource, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %q not found", resource, id),
	}
}

// Forbidden reports that the caller does not own the resource.
func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Message: "access denied"}
}

// Validation reports a single invalid field.
func Validation(field, msg string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Fields:  map[string][]string{field: {msg}},
	}
}

// ValidationFields reports several invalid fields at once.
func ValidationFields(fields map[string][]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "one or more validation errors occurred",
		Fields:  fields,
	}
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsForbidden(err error) bool  { return KindOf(err) == KindForbidden }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
