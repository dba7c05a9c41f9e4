// Package caliberr defines the error-kind catalog surfaced by CALIBER's core
// (spec §7). It follows the teacher's pkg/services/errors.go idiom — a
// small set of sentinel errors plus a typed detail carrier matched with
// errors.As — extended to the full kind catalog spec §7 requires and to the
// structured {code, message, details} shape expected at the transport
// boundary.
package caliberr

import (
	"errors"
	"fmt"
)

// Kind is the stable, transport-mappable error classification.
type Kind string

const (
	KindValidation          Kind = "Validation"
	KindNotFound            Kind = "NotFound"
	KindConflict            Kind = "Conflict"
	KindPermissionDenied    Kind = "PermissionDenied"
	KindProviderNotConfigured Kind = "ProviderNotConfigured"
	KindTimeout             Kind = "Timeout"
	KindLockPoisoned        Kind = "LockPoisoned"
	KindStorage             Kind = "Storage"
	KindInternal            Kind = "Internal"
)

// Error is CALIBER's structured error: a stable Kind/Code, a human message,
// optional structured Details, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, caliberr.NotFound) style sentinel comparisons
// by kind, in addition to errors.As(&caliberr.Error{}) for the structured form.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newKind(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a Validation-kind error naming the offending field.
func Validation(field, format string, args ...any) *Error {
	e := newKind(KindValidation, "validation_error", format, args...)
	e.Details = map[string]any{"field": field}
	return e
}

// NotFound builds a NotFound-kind error for the given entity kind/id.
func NotFound(entity, id string) *Error {
	e := newKind(KindNotFound, "not_found", "%s %s not found", entity, id)
	e.Details = map[string]any{"entity": entity, "id": id}
	return e
}

// ConflictReason names why a Conflict error was raised (spec §7:
// "FSM invariant violations produce Conflict{reason=InvalidTransition}").
type ConflictReason string

const (
	ReasonLockContention   ConflictReason = "LockContention"
	ReasonUniqueViolation  ConflictReason = "UniqueViolation"
	ReasonInvalidTransition ConflictReason = "InvalidTransition"
)

// Conflict builds a Conflict-kind error with a reason tag.
func Conflict(reason ConflictReason, format string, args ...any) *Error {
	e := newKind(KindConflict, "conflict", format, args...)
	e.Details = map[string]any{"reason": string(reason)}
	return e
}

// PermissionDenied builds a PermissionDenied-kind error naming the
// unsatisfied rule, without leaking entity existence (spec §4.4).
func PermissionDenied(rule string) *Error {
	e := newKind(KindPermissionDenied, "permission_denied", "access denied: rule %q not satisfied", rule)
	e.Details = map[string]any{"rule": rule}
	return e
}

// ProviderNotConfigured builds a ProviderNotConfigured-kind error for a
// requested capability with no registered implementation (spec §4.9).
func ProviderNotConfigured(capability string) *Error {
	e := newKind(KindProviderNotConfigured, "provider_not_configured", "no provider registered for capability %q", capability)
	e.Details = map[string]any{"capability": capability}
	return e
}

// Timeout builds a Timeout-kind error for a deadline that expired.
func Timeout(op string) *Error {
	e := newKind(KindTimeout, "timeout", "operation %q exceeded its deadline", op)
	e.Details = map[string]any{"operation": op}
	return e
}

// LockPoisoned builds a LockPoisoned-kind error for a panic recovered while
// holding an internal mutex/transaction (spec §4.2, §7).
func LockPoisoned(cause error) *Error {
	return &Error{Kind: KindLockPoisoned, Code: "lock_poisoned", Message: "internal lock poisoned by a panicking holder", Cause: cause}
}

// Storage wraps an underlying store failure.
func Storage(cause error) *Error {
	return &Error{Kind: KindStorage, Code: "storage_error", Message: "storage operation failed", Cause: cause}
}

// Internal builds an Internal-kind error for an invariant violation. The
// caller-facing message is stable and code-like; it never carries a stack
// trace (spec §7).
func Internal(format string, args ...any) *Error {
	return newKind(KindInternal, "internal_error", format, args...)
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HasKind reports whether err is (or wraps) a *Error of the given Kind.
func HasKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
