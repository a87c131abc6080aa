// Package utils provides shared utility helpers used across STAT7.
// The configuration package's semantic version is config.Version
// (pkg/config).
package utils

import (
	"errors"
	"fmt"
)

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Kind classifies an error for dispatch purposes (HTTP status mapping,
// retry policy, audit reason codes) per spec §7.
type Kind int

const (
	// KindValidation marks a caller bug: malformed coordinate or query.
	// Never retried.
	KindValidation Kind = iota
	// KindAuth marks a failed authentication check.
	KindAuth
	// KindPolicy marks a failed authorization/policy check.
	KindPolicy
	// KindCollapseEscape marks a record that failed the WFC collapse gate.
	// Internal; only surfaced to callers after repair failure.
	KindCollapseEscape
	// KindProviderDegraded marks an embedding provider outage or timeout.
	KindProviderDegraded
	// KindTimeout marks a per-call deadline exceeded.
	KindTimeout
	// KindConflict marks an idempotency violation (same content, different
	// coordinate).
	KindConflict
	// KindInternalInvariant marks a fatal invariant violation (address
	// collision, missing journey entry).
	KindInternalInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindAuth:
		return "AuthError"
	case KindPolicy:
		return "PolicyError"
	case KindCollapseEscape:
		return "CollapseEscape"
	case KindProviderDegraded:
		return "ProviderDegraded"
	case KindTimeout:
		return "Timeout"
	case KindConflict:
		return "Conflict"
	case KindInternalInvariant:
		return "InternalInvariant"
	default:
		return "Unknown"
	}
}

// Error is a typed error carrying a Kind alongside the usual wrapped cause.
// Call sites construct it with New or Wrapf; callers dispatch on Kind via
// errors.As rather than string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a typed Error with no wrapped cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrapf constructs a typed Error wrapping cause with additional context.
func Wrapf(kind Kind, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *Error. The second return is false for plain errors.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
