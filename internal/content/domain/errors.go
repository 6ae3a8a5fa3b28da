package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError.
type Kind int

const (
	KindUnexpected Kind = iota
	KindForbidden
	KindNotFound
	KindValidation
	KindExternal
	KindDecode
	KindEncode
)

func (k Kind) String() string {
	switch k {
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindExternal:
		return "external"
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	default:
		return "unexpected"
	}
}

// AppError is the error type returned across package boundaries.
//
// Label holds the static context for the kind: the collaborator name for
// External, the target shape for Decode and Encode, the field for
// Validation and the resource kind for NotFound.
type AppError struct {
	Kind    Kind
	Label   string
	ID      string
	Message string

	cause error
}

func (e *AppError) Error() string {
	switch e.Kind {
	case KindForbidden:
		return fmt.Sprintf("Forbidden: %s", e.Message)
	case KindNotFound:
		return fmt.Sprintf("Not found: %s (%s)", e.Label, e.ID)
	case KindValidation:
		return fmt.Sprintf("Validation failed for %s: %s", e.Label, e.Message)
	case KindExternal:
		return fmt.Sprintf("External system error (%s): %s", e.Label, e.Message)
	case KindDecode:
		return fmt.Sprintf("Decode error for %s: %s", e.Label, e.Message)
	case KindEncode:
		return fmt.Sprintf("Encode error for %s: %s", e.Label, e.Message)
	default:
		return fmt.Sprintf("Unexpected error: %s", e.Message)
	}
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func Forbidden(reason string) *AppError {
	return &AppError{Kind: KindForbidden, Message: reason}
}

func NotFound(resource, id string) *AppError {
	return &AppError{Kind: KindNotFound, Label: resource, ID: id,
		Message: fmt.Sprintf("%s %s does not exist", resource, id)}
}

func Validation(field, reason string) *AppError {
	return &AppError{Kind: KindValidation, Label: field, Message: reason}
}

func External(system string, err error) *AppError {
	return newWrapped(KindExternal, system, err)
}

func Decode(target string, err error) *AppError {
	return newWrapped(KindDecode, target, err)
}

func Encode(target string, err error) *AppError {
	return newWrapped(KindEncode, target, err)
}

func Unexpected(err error) *AppError {
	return newWrapped(KindUnexpected, "", err)
}

func newWrapped(kind Kind, label string, err error) *AppError {
	e := &AppError{Kind: kind, Label: label, cause: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

// KindOf reports the kind of the first AppError in err's chain, and
// KindUnexpected for anything else.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}
