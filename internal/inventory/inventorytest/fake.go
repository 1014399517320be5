// Package inventorytest provides a programmable inventory adapter for tests.
package inventorytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/inventory"
)

// Fake is an in-memory inventory.Adapter. Configure the exported fields
// before use; calls are recorded and safe for concurrent use.
type Fake struct {
	Provider  string
	OfferKind offer.Kind
	Offers    []offer.Offer

	SearchDelay time.Duration
	SearchErr   error
	HoldErr     error
	ConfirmErr  error
	ReleaseErr  error

	mu       sync.Mutex
	searches int
	holds    []inventory.HoldRequest
	confirms []inventory.HoldToken
	releases []inventory.HoldToken
}

var _ inventory.Adapter = (*Fake)(nil)

// NewFake creates a fake provider of the given kind.
func NewFake(id string, kind offer.Kind, offers ...offer.Offer) *Fake {
	return &Fake{Provider: id, OfferKind: kind, Offers: offers}
}

func (f *Fake) ID() string       { return f.Provider }
func (f *Fake) Kind() offer.Kind { return f.OfferKind }

func (f *Fake) Search(ctx context.Context, _ offer.SearchQuery) ([]offer.Offer, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()

	if f.SearchDelay > 0 {
		t := time.NewTimer(f.SearchDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, inventory.Classify(f.Provider, inventory.OpSearch, ctx.Err())
		case <-t.C:
		}
	}
	if f.SearchErr != nil {
		return nil, inventory.Classify(f.Provider, inventory.OpSearch, f.SearchErr)
	}
	return offer.CloneAll(f.Offers), nil
}

func (f *Fake) Hold(_ context.Context, req inventory.HoldRequest) (inventory.HoldToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds = append(f.holds, req)
	if f.HoldErr != nil {
		return inventory.HoldToken{}, inventory.Classify(f.Provider, inventory.OpHold, f.HoldErr)
	}
	return inventory.HoldToken{
		ProviderID:      f.Provider,
		ProviderOfferID: req.Offer.ProviderOfferID,
		Token:           fmt.Sprintf("hold-%s-%d", req.Offer.ProviderOfferID, len(f.holds)),
		ExpiresAt:       time.Now().Add(15 * time.Minute),
	}, nil
}

func (f *Fake) Confirm(_ context.Context, hold inventory.HoldToken) (inventory.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms = append(f.confirms, hold)
	if f.ConfirmErr != nil {
		return inventory.Confirmation{}, inventory.Classify(f.Provider, inventory.OpConfirm, f.ConfirmErr)
	}
	return inventory.Confirmation{
		ProviderID:  f.Provider,
		Reference:   "CONF-" + hold.Token,
		ConfirmedAt: time.Now().UTC(),
	}, nil
}

func (f *Fake) Release(_ context.Context, hold inventory.HoldToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, hold)
	if f.ReleaseErr != nil {
		return inventory.Classify(f.Provider, inventory.OpRelease, f.ReleaseErr)
	}
	return nil
}

// Searches returns how many times Search was called.
func (f *Fake) Searches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

// Holds returns the recorded hold requests.
func (f *Fake) Holds() []inventory.HoldRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inventory.HoldRequest(nil), f.holds...)
}

// Confirms returns the recorded confirm calls.
func (f *Fake) Confirms() []inventory.HoldToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inventory.HoldToken(nil), f.confirms...)
}

// Releases returns the recorded release calls.
func (f *Fake) Releases() []inventory.HoldToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inventory.HoldToken(nil), f.releases...)
}
