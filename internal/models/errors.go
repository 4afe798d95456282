package models

import (
	"context"
	"errors"
	"fmt"
)

// FetchErrorKind classifies provider failures. Transient failures are
// retried per policy; the other kinds never are.
type FetchErrorKind string

const (
	FetchTransient FetchErrorKind = "transient"
	FetchNotFound  FetchErrorKind = "not_found"
	FetchPermanent FetchErrorKind = "permanent"
)

// FetchError is a classified failure from the external data provider.
type FetchError struct {
	Symbol string
	Kind   FetchErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.Symbol, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether the failure may succeed on retry.
func (e *FetchError) IsTransient() bool { return e.Kind == FetchTransient }

var (
	// ErrLockTimeout: the per-symbol lock could not be acquired within the
	// configured bound. Retryable by the caller.
	ErrLockTimeout = errors.New("symbol lock acquisition timed out")

	// ErrRenameConflict: more than one rename record targets the same
	// identity. Single-hop resolution is a hard assumption; this is surfaced,
	// never truncated to the first match.
	ErrRenameConflict = errors.New("multiple rename records target one symbol")
)

// FailureKind is the structured per-symbol failure classification returned
// to callers. Every requested symbol yields rows or exactly one of these.
type FailureKind string

const (
	FailureNotFound    FailureKind = "not_found"
	FailureTimeout     FailureKind = "timed_out"
	FailureRateLimited FailureKind = "rate_limited"
	FailureLockTimeout FailureKind = "lock_timeout"
	FailureUpstream    FailureKind = "upstream_error"
	FailureInternal    FailureKind = "internal"
)

// SymbolFailure carries the classification and a human-readable message.
type SymbolFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// SymbolResult is the per-symbol outcome of an EnsureAndRead run: resolved
// rows on success, a structured failure otherwise. Rejected reports rows the
// merger dropped for invariant violations; it can be non-empty on success.
type SymbolResult struct {
	Symbol   string         `json:"symbol"`
	Rows     []ResolvedRow  `json:"rows,omitempty"`
	Rejected []RowRejection `json:"rejected,omitempty"`
	Failure  *SymbolFailure `json:"failure,omitempty"`
}

// ClassifyFailure maps an error from the sync pipeline onto the caller-facing
// failure taxonomy.
func ClassifyFailure(err error) SymbolFailure {
	var fe *FetchError
	switch {
	case errors.As(err, &fe):
		switch {
		case fe.Kind == FetchNotFound:
			return SymbolFailure{Kind: FailureNotFound, Message: err.Error()}
		case fe.Status == 429:
			return SymbolFailure{Kind: FailureRateLimited, Message: err.Error()}
		default:
			return SymbolFailure{Kind: FailureUpstream, Message: err.Error()}
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SymbolFailure{Kind: FailureTimeout, Message: err.Error()}
	case errors.Is(err, ErrLockTimeout):
		return SymbolFailure{Kind: FailureLockTimeout, Message: err.Error()}
	case errors.Is(err, ErrRenameConflict):
		return SymbolFailure{Kind: FailureInternal, Message: err.Error()}
	}
	return SymbolFailure{Kind: FailureInternal, Message: err.Error()}
}
