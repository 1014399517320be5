package inventory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/offer"
)

// ErrUnknownProvider is returned when no adapter is registered under an id.
var ErrUnknownProvider = domain.NewError(domain.KindNotFound, "unknown_provider", "unknown inventory provider")

// Registry resolves adapters by provider id.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Duplicate ids are rejected.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.ID()]; exists {
		return fmt.Errorf("provider %s registered twice", a.ID())
	}
	r.adapters[a.ID()] = a
	return nil
}

// Get returns the adapter for a provider id.
func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return a, nil
}

// All returns every adapter ordered by id.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// OfKind returns the adapters selling one kind of inventory, ordered by id.
func (r *Registry) OfKind(kind offer.Kind) []Adapter {
	var out []Adapter
	for _, a := range r.All() {
		if a.Kind() == kind {
			out = append(out, a)
		}
	}
	return out
}
