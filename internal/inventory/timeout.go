package inventory

import (
	"context"
	"time"

	"github.com/tripnest/service-booking/internal/domain/offer"
)

type timeoutAdapter struct {
	next          Adapter
	searchTimeout time.Duration
	commitTimeout time.Duration
}

// WithTimeouts bounds every call of next. Search gets the short bound;
// hold, confirm and release get the commit bound. A call that overruns its
// bound fails with FailureTimeout even if the provider later succeeds.
func WithTimeouts(next Adapter, searchTimeout, commitTimeout time.Duration) Adapter {
	return &timeoutAdapter{next: next, searchTimeout: searchTimeout, commitTimeout: commitTimeout}
}

func (a *timeoutAdapter) ID() string       { return a.next.ID() }
func (a *timeoutAdapter) Kind() offer.Kind { return a.next.Kind() }

func (a *timeoutAdapter) Search(ctx context.Context, q offer.SearchQuery) ([]offer.Offer, error) {
	return bounded(ctx, a.searchTimeout, a.next.ID(), OpSearch, func(ctx context.Context) ([]offer.Offer, error) {
		return a.next.Search(ctx, q)
	})
}

func (a *timeoutAdapter) Hold(ctx context.Context, req HoldRequest) (HoldToken, error) {
	return bounded(ctx, a.commitTimeout, a.next.ID(), OpHold, func(ctx context.Context) (HoldToken, error) {
		return a.next.Hold(ctx, req)
	})
}

func (a *timeoutAdapter) Confirm(ctx context.Context, hold HoldToken) (Confirmation, error) {
	return bounded(ctx, a.commitTimeout, a.next.ID(), OpConfirm, func(ctx context.Context) (Confirmation, error) {
		return a.next.Confirm(ctx, hold)
	})
}

func (a *timeoutAdapter) Release(ctx context.Context, hold HoldToken) error {
	_, err := bounded(ctx, a.commitTimeout, a.next.ID(), OpRelease, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.next.Release(ctx, hold)
	})
	return err
}

type callResult[T any] struct {
	value T
	err   error
}

// bounded runs call with a deadline and stops waiting when it passes, so a
// provider that ignores cancellation cannot stall the caller.
func bounded[T any](ctx context.Context, timeout time.Duration, provider string, op Op, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		v, err := call(ctx)
		return v, Classify(provider, op, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		v, err := call(callCtx)
		done <- callResult[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		if callCtx.Err() == context.DeadlineExceeded {
			cause := res.err
			if cause == nil {
				cause = context.DeadlineExceeded
			}
			return zero, NewFailure(provider, op, FailureTimeout, cause)
		}
		if res.err != nil {
			return zero, Classify(provider, op, res.err)
		}
		return res.value, nil
	case <-callCtx.Done():
		if ctx.Err() == nil || ctx.Err() == context.DeadlineExceeded {
			return zero, NewFailure(provider, op, FailureTimeout, callCtx.Err())
		}
		return zero, NewFailure(provider, op, FailureProviderError, ctx.Err())
	}
}
