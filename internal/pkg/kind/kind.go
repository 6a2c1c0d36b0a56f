package kind

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	AuthMissing      Kind = "auth.missing"
	AuthExpired      Kind = "auth.expired"
	AuthSignature    Kind = "auth.signature"
	AuthClaims       Kind = "auth.claims"
	AuthRevoked      Kind = "auth.revoked"
	AuthLocked       Kind = "auth.locked"
	PermissionDenied Kind = "permission.denied"
	ValidationFailed Kind = "validation.failed"
	NotFound         Kind = "not_found"
	ConflictVersion  Kind = "conflict.version"
	ConflictState    Kind = "conflict.state"
	GoneTerminal     Kind = "gone.terminal"
	Throttled        Kind = "throttled"
	DependencyDown   Kind = "dependency.unavailable"
	Internal         Kind = "internal"
)

// Error is a classified error. Fields carries per-field validation detail.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error with a static message.
func New(k Kind, message string) *Error {
	return &Error{Kind: k, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Wrapping nil returns nil.
func Wrap(k Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: k, Message: message, cause: cause}
}

// WithFields attaches per-field detail, used by validation.
func (e *Error) WithFields(fields map[string]string) *Error {
	e.Fields = fields
	return e
}

// Of returns the Kind of err, or Internal when err carries no classification.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as k.
func Is(err error, k Kind) bool {
	return err != nil && Of(err) == k
}

// IsAuth reports whether err is any auth.* kind.
func IsAuth(err error) bool {
	switch Of(err) {
	case AuthMissing, AuthExpired, AuthSignature, AuthClaims, AuthRevoked, AuthLocked:
		return true
	}
	return false
}
