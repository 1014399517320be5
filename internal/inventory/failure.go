package inventory

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a provider failure.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureRateLimited   FailureKind = "rate_limited"
	FailureUnavailable   FailureKind = "unavailable"
	FailureHoldExpired   FailureKind = "hold_expired"
	FailureProviderError FailureKind = "provider_error"
)

// Op names the adapter operation that failed.
type Op string

const (
	OpSearch  Op = "search"
	OpHold    Op = "hold"
	OpConfirm Op = "confirm"
	OpRelease Op = "release"
)

// Failure is the only error shape an adapter returns.
type Failure struct {
	Provider string
	Op       Op
	Kind     FailureKind
	Err      error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s %s: %s", f.Provider, f.Op, f.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", f.Provider, f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a failure of the given kind.
func NewFailure(provider string, op Op, kind FailureKind, err error) *Failure {
	return &Failure{Provider: provider, Op: op, Kind: kind, Err: err}
}

// Classify converts any error into a *Failure. Existing failures pass
// through; context deadlines become timeouts; everything else is a provider error.
func Classify(provider string, op Op, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewFailure(provider, op, FailureTimeout, err)
	}
	return NewFailure(provider, op, FailureProviderError, err)
}

// KindOf returns the failure kind of err. Bare context deadlines count as timeouts.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureProviderError
}
