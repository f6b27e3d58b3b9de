// Package apperror defines the error kinds surfaced by procurement operations.
// Every error carries a Kind that callers match with errors.Is and a reason
// string that is safe to show to end users.
package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindNotUpdatable Kind = "not_updatable"
	KindNotApproved  Kind = "not_approved"
	KindNotFound     Kind = "not_found"
	KindPermission   Kind = "permission_denied"
	KindUpload       Kind = "upload_error"
	KindExtraction   Kind = "extraction_error"
	KindGeneration   Kind = "generation_error"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotUpdatable = &Error{Kind: KindNotUpdatable}
	ErrNotApproved  = &Error{Kind: KindNotApproved}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrPermission   = &Error{Kind: KindPermission}
	ErrUpload       = &Error{Kind: KindUpload}
	ErrExtraction   = &Error{Kind: KindExtraction}
	ErrGeneration   = &Error{Kind: KindGeneration}
)

type Error struct {
	Kind   Kind
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches kind-only sentinels (empty Reason) by kind, and reasoned
// sentinels by kind and reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, cause: cause}
}

func Validation(reason string) error   { return New(KindValidation, reason) }
func NotUpdatable(reason string) error { return New(KindNotUpdatable, reason) }
func NotApproved(reason string) error  { return New(KindNotApproved, reason) }
func NotFound(reason string) error     { return New(KindNotFound, reason) }
func Permission(reason string) error   { return New(KindPermission, reason) }

func Upload(reason string, cause error) error     { return Wrap(KindUpload, reason, cause) }
func Extraction(reason string, cause error) error { return Wrap(KindExtraction, reason, cause) }
func Generation(reason string, cause error) error { return Wrap(KindGeneration, reason, cause) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Reason returns the user-facing reason of the first *Error in err's chain.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		return string(e.Kind)
	}
	return ""
}
