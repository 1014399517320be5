// Package search fans a query out to every inventory provider and merges the
// answers into one ranked result.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/inventory"
)

// DefaultDeadline bounds a whole search when the caller passes none.
const DefaultDeadline = 2 * time.Second

type providerResult struct {
	provider string
	kind     offer.Kind
	offers   []offer.Offer
	err      error
}

// Aggregator queries providers concurrently.
type Aggregator struct {
	adapters []inventory.Adapter
	logger   *zap.Logger
	now      func() time.Time
}

// NewAggregator creates an aggregator over the given adapters.
func NewAggregator(adapters []inventory.Adapter, logger *zap.Logger) *Aggregator {
	return &Aggregator{adapters: adapters, logger: logger, now: time.Now}
}

// Search queries every provider under one deadline. Providers still running
// at the deadline are cancelled, recorded as timeouts and their late answers
// dropped. Failures never fail the search unless every provider failed.
func (a *Aggregator) Search(ctx context.Context, q offer.SearchQuery, deadline time.Duration) (*Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Buffered so abandoned goroutines can always deliver and exit.
	resCh := make(chan providerResult, len(a.adapters))
	pending := make(map[string]struct{}, len(a.adapters))
	for _, ad := range a.adapters {
		pending[ad.ID()] = struct{}{}
		go func(ad inventory.Adapter) {
			offers, err := ad.Search(ctx, q)
			resCh <- providerResult{provider: ad.ID(), kind: ad.Kind(), offers: offers, err: err}
		}(ad)
	}

	result := &Result{
		QueryKey:  q.Key(),
		Query:     q,
		Flights:   []offer.Offer{},
		Hotels:    []offer.Offer{},
		Providers: make([]string, 0, len(a.adapters)),
		Failures:  map[string]inventory.FailureKind{},
	}
	for _, ad := range a.adapters {
		result.Providers = append(result.Providers, ad.ID())
	}

collect:
	for len(pending) > 0 {
		select {
		case res := <-resCh:
			delete(pending, res.provider)
			if res.err != nil {
				result.Failures[res.provider] = inventory.KindOf(res.err)
				a.logger.Warn("provider search failed",
					zap.String("provider", res.provider),
					zap.String("query", result.QueryKey),
					zap.Error(res.err),
				)
				continue
			}
			result.Succeeded = append(result.Succeeded, res.provider)
			a.accept(result, res)
		case <-ctx.Done():
			break collect
		}
	}
	for provider := range pending {
		result.Failures[provider] = inventory.FailureTimeout
		a.logger.Warn("provider search timed out",
			zap.String("provider", provider),
			zap.String("query", result.QueryKey),
			zap.Duration("deadline", deadline),
		)
	}

	if len(a.adapters) == 0 || len(result.Succeeded) == 0 {
		return nil, ErrNoAvailability
	}

	result.Flights = dedupe(result.Flights)
	result.Hotels = dedupe(result.Hotels)
	rank(result.Flights)
	rank(result.Hotels)
	result.SearchedAt = a.now().UTC()
	return result, nil
}

// accept keeps the offers that are well formed and actually serve the query.
func (a *Aggregator) accept(result *Result, res providerResult) {
	now := a.now()
	for _, o := range res.offers {
		if o.ProviderID != res.provider || o.Kind != res.kind || o.Validate() != nil || o.Expired(now) {
			a.logger.Debug("dropping offer", zap.String("provider", res.provider), zap.String("offer", o.Key()))
			continue
		}
		switch o.Kind {
		case offer.KindFlight:
			if !strings.EqualFold(o.Flight.Origin, result.Query.Origin) ||
				!strings.EqualFold(o.Flight.Destination, result.Query.Destination) {
				continue
			}
			result.Flights = append(result.Flights, o)
		case offer.KindHotel:
			result.Hotels = append(result.Hotels, o)
		}
	}
}
