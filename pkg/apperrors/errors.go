// Package apperrors defines the error taxonomy shared by every enforcement
// layer: identity resolution, permission checks, tenant isolation, rate
// limiting and quota enforcement. Handlers map these to HTTP status codes in
// pkg/httputil; nothing else in the codebase invents its own auth error shape.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for outcomes that carry no extra data.
var (
	// ErrUnauthenticated means the request carried no verified identity or
	// no selected organization.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means a verified identity lacks the required role or
	// permission, or its membership is not active. The message is generic on
	// purpose; it must not confirm whether a resource exists elsewhere.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned both for genuinely missing rows and for rows
	// that belong to another organization, so a caller cannot distinguish
	// the two.
	ErrNotFound = errors.New("not found")

	// ErrDemoReadOnly is returned for any mutation attempted against the
	// designated demo organization. Distinct from ErrForbidden so the UI can
	// render a "not available in demo mode" message.
	ErrDemoReadOnly = errors.New("not available in demo mode")

	// ErrConflict covers duplicate unique keys and similar state conflicts.
	ErrConflict = errors.New("conflict")
)

// LimitReachedError is returned when a plan quota would be exceeded.
// Carries the limit and the pre-create count so the UI can render an
// upgrade prompt.
type LimitReachedError struct {
	Resource string
	Limit    int
	Current  int
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("limit reached for %s (%d/%d)", e.Resource, e.Current, e.Limit)
}

// RateLimitedError is returned when an action exceeded its per-user window.
// RetryAfter tells the client how long to back off.
type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry in %s", e.Action, e.RetryAfter.Round(time.Millisecond))
}

// IsUnauthenticated reports whether err is an authentication failure.
func IsUnauthenticated(err error) bool { return errors.Is(err, ErrUnauthenticated) }

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsNotFound reports whether err hides a missing or cross-tenant row.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDemoReadOnly reports whether err is the demo-mode rejection.
func IsDemoReadOnly(err error) bool { return errors.Is(err, ErrDemoReadOnly) }

// IsConflict reports whether err is a state conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsLimitReached reports whether err is a quota rejection.
func IsLimitReached(err error) bool {
	var lr *LimitReachedError
	return errors.As(err, &lr)
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
