package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/tripnest/service-booking/internal/domain/offer"
)

type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

// reserve claims the next call slot and returns how long to wait for it.
// A slot that would start after the caller's deadline is not claimed.
func (r *rateLimiter) reserve(ctx context.Context) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	slot := r.next
	if slot.Before(now) {
		slot = now
	}
	if deadline, ok := ctx.Deadline(); ok && slot.After(deadline) {
		return 0, false
	}
	r.next = slot.Add(r.interval)
	return slot.Sub(now), true
}

func (r *rateLimiter) wait(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	delay, ok := r.reserve(ctx)
	if !ok {
		return context.DeadlineExceeded
	}
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type rateLimitedAdapter struct {
	next    Adapter
	limiter *rateLimiter
}

// WithRateLimit spaces calls to next at least interval apart. A call whose
// slot falls after the caller's deadline fails with FailureRateLimited.
func WithRateLimit(next Adapter, interval time.Duration) Adapter {
	return &rateLimitedAdapter{next: next, limiter: newRateLimiter(interval)}
}

func (a *rateLimitedAdapter) ID() string       { return a.next.ID() }
func (a *rateLimitedAdapter) Kind() offer.Kind { return a.next.Kind() }

func (a *rateLimitedAdapter) Search(ctx context.Context, q offer.SearchQuery) ([]offer.Offer, error) {
	if err := a.admit(ctx, OpSearch); err != nil {
		return nil, err
	}
	return a.next.Search(ctx, q)
}

func (a *rateLimitedAdapter) Hold(ctx context.Context, req HoldRequest) (HoldToken, error) {
	if err := a.admit(ctx, OpHold); err != nil {
		return HoldToken{}, err
	}
	return a.next.Hold(ctx, req)
}

func (a *rateLimitedAdapter) Confirm(ctx context.Context, hold HoldToken) (Confirmation, error) {
	if err := a.admit(ctx, OpConfirm); err != nil {
		return Confirmation{}, err
	}
	return a.next.Confirm(ctx, hold)
}

// Release is never throttled; dropping a hold late costs inventory.
func (a *rateLimitedAdapter) Release(ctx context.Context, hold HoldToken) error {
	return a.next.Release(ctx, hold)
}

func (a *rateLimitedAdapter) admit(ctx context.Context, op Op) error {
	if err := a.limiter.wait(ctx); err != nil {
		return NewFailure(a.next.ID(), op, FailureRateLimited, err)
	}
	return nil
}
