package marketdata

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upstream fetch failures. Retry and fallback policy
// lives in the scheduler and collector, not here.
type ErrorKind string

const (
	// ErrUnauthenticated means the upstream session cookies are stale or
	// missing. Not retryable without an operator setting fresh credentials.
	ErrUnauthenticated ErrorKind = "unauthenticated"
	// ErrNotFound means the symbol has no upstream mapping.
	ErrNotFound ErrorKind = "not_found"
	// ErrTimeout means the request exceeded the fetch timeout budget.
	ErrTimeout ErrorKind = "timeout"
	// ErrParseFailure means the upstream payload shape changed.
	ErrParseFailure ErrorKind = "parse_failure"
	// ErrNetworkUnreachable means the upstream host could not be reached,
	// typically a restricted-egress deployment.
	ErrNetworkUnreachable ErrorKind = "network_unreachable"
)

// FetchError wraps an upstream failure with its classification
type FetchError struct {
	Kind   ErrorKind
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Symbol, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Symbol, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

func NewFetchError(kind ErrorKind, symbol string, err error) *FetchError {
	return &FetchError{Kind: kind, Symbol: symbol, Err: err}
}

// KindOf extracts the error kind from a fetch error chain. Unclassified
// errors report as parse failures so callers always get a kind.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ErrParseFailure
}

// IsKind reports whether err carries the given classification
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
