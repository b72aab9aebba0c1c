// Package patternerr defines the error-kind taxonomy shared by every
// component of the coordination engine.
package patternerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry, surfacing, and
// stream-termination behavior. Kinds are not Go types; every component
// wraps its errors in a single *Error carrying a Kind.
type Kind string

const (
	// Validation covers bad ID prefixes, empty required input, and
	// oversize batches. Surfaced to the caller; never retried.
	Validation Kind = "validation"

	// NotFound covers missing agents, groups, memory blocks, and
	// data sources.
	NotFound Kind = "not_found"

	// PermissionDenied covers a broker Deny decision or a denied
	// memory ACL check. Surfaced as a recoverable stream Error; the
	// agent may continue without the gated operation.
	PermissionDenied Kind = "permission_denied"

	// ConsentTimeout covers a permission request that expired before
	// a decision arrived. Treated identically to PermissionDenied by
	// callers.
	ConsentTimeout Kind = "consent_timeout"

	// RateLimited covers a tool-rule cooldown or selector-imposed
	// rate limit. Transitions the agent to Cooldown; never retried
	// implicitly.
	RateLimited Kind = "rate_limited"

	// Transient covers network and provider 5xx-class failures.
	// Retried a bounded number of times with exponential backoff
	// inside the responsible component before surfacing.
	Transient Kind = "transient"

	// LoopLimit covers a queue enqueue rejected because the
	// recipient already appears in the call chain the configured
	// number of times.
	LoopLimit Kind = "loop_limit"

	// Fatal covers schema mismatches and broken invariants. Always
	// terminates the run; never retried.
	Fatal Kind = "fatal"
)

// Error wraps an underlying cause with a Kind and optional structured
// context. Components should construct these with the New* helpers
// rather than building the struct directly.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, patternerr.New(patternerr.NotFound, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, if it (or something it wraps) is an
// *Error. Returns ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Recoverable reports whether a stream Error carrying this error should
// be recoverable:true (the run may still reach Complete) per spec §7.
// PermissionDenied, ConsentTimeout, and RateLimited are recoverable;
// Validation, NotFound, LoopLimit are surfaced but not stream-terminal
// by themselves; Transient becomes recoverable only after retries are
// exhausted (callers set that explicitly); Fatal is never recoverable.
func Recoverable(err error) bool {
	switch k, ok := KindOf(err); {
	case !ok:
		return true
	case k == Fatal:
		return false
	default:
		return true
	}
}
