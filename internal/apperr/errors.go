// Package apperr defines the error taxonomy shared by folio services and
// its HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	// ErrUnauthorized means the caller identity is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound means the record is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the payload failed schema constraints.
	ErrValidation = errors.New("validation failed")
	// ErrQuotaExceeded means a tier limit on resume count or feature use was hit.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUpstream means a collaborator (store, blob, billing, AI) failed.
	ErrUpstream = errors.New("upstream failure")
)

// Issue is a single field-level validation problem.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error carries a kind, the operation that produced it, and an optional cause.
type Error struct {
	Kind   error   // one of the Err* sentinels
	Op     string  // e.g. "resume.save"
	Issues []Issue // populated for ErrValidation
	Err    error   // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if len(e.Issues) > 0 {
		parts := make([]string, len(e.Issues))
		for i, is := range e.Issues {
			parts[i] = is.Field + ": " + is.Message
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error of the given kind.
func E(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Unauthorized returns an ErrUnauthorized error for op.
func Unauthorized(op string) error {
	return E(ErrUnauthorized, op, nil)
}

// NotFound returns an ErrNotFound error for op.
func NotFound(op, what string) error {
	return E(ErrNotFound, op, fmt.Errorf("%s not found", what))
}

// Quota returns an ErrQuotaExceeded error with a user-facing reason.
func Quota(op, reason string) error {
	return E(ErrQuotaExceeded, op, errors.New(reason))
}

// Upstream wraps a collaborator failure.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return E(ErrUpstream, op, err)
}

// Validation returns an ErrValidation error carrying issues.
func Validation(op string, issues ...Issue) error {
	return &Error{Kind: ErrValidation, Op: op, Issues: issues}
}

// IssuesOf returns the validation issues attached to err, if any.
func IssuesOf(err error) []Issue {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Issues
	}
	return nil
}

// KindOf returns the sentinel kind of err, or nil if err is not classified.
func KindOf(err error) error {
	for _, k := range []error{ErrUnauthorized, ErrNotFound, ErrValidation, ErrQuotaExceeded, ErrUpstream} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns the wire name of err's kind.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrUnauthorized:
		return "unauthorized"
	case ErrNotFound:
		return "not_found"
	case ErrValidation:
		return "validation_failed"
	case ErrQuotaExceeded:
		return "quota_exceeded"
	case ErrUpstream:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusUnprocessableEntity
	case ErrQuotaExceeded:
		return http.StatusForbidden
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a message safe to show the caller. Causes are only
// exposed for kinds whose cause is written for users.
func PublicMessage(err error) string {
	kind := KindOf(err)
	switch kind {
	case nil:
		return "internal error"
	case ErrNotFound, ErrQuotaExceeded:
		var ae *Error
		if errors.As(err, &ae) && ae.Err != nil {
			return ae.Err.Error()
		}
	}
	return kind.Error()
}
