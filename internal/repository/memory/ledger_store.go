package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tripnest/service-booking/internal/domain/ledger"
)

// LedgerStore is an append-only in-memory ledger.
type LedgerStore struct {
	mu      sync.Mutex
	records []*ledger.Record
	byRef   map[string]*ledger.Record
	byKey   map[string]*ledger.Record
}

var _ ledger.Repository = (*LedgerStore)(nil)

// NewLedgerStore creates an empty ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		byRef: make(map[string]*ledger.Record),
		byKey: make(map[string]*ledger.Record),
	}
}

// Append stores rec unless its reference or idempotency key is taken.
func (m *LedgerStore) Append(ctx context.Context, rec *ledger.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, refTaken := m.byRef[rec.Reference]
	_, keyTaken := m.byKey[rec.IdempotencyKey]
	if refTaken || keyTaken {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicateReference, rec.Reference)
	}
	c := rec.Clone()
	m.records = append(m.records, c)
	m.byRef[c.Reference] = c
	m.byKey[c.IdempotencyKey] = c
	return nil
}

// GetByReference returns the record with the given reference.
func (m *LedgerStore) GetByReference(ctx context.Context, reference string) (*ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byRef[reference]
	if !ok {
		return nil, ledger.ErrBookingNotFound
	}
	return rec.Clone(), nil
}

// GetByIdempotencyKey returns the record produced by key.
func (m *LedgerStore) GetByIdempotencyKey(ctx context.Context, key string) (*ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byKey[key]
	if !ok {
		return nil, ledger.ErrBookingNotFound
	}
	return rec.Clone(), nil
}

// ListByOwner returns an owner's records, newest first.
func (m *LedgerStore) ListByOwner(ctx context.Context, ownerID string) ([]*ledger.Record, error) {
	return m.filter(0, func(r *ledger.Record) bool { return r.OwnedBy(ownerID) }), nil
}

// ListFollowUps returns records flagged for follow-up, newest first.
func (m *LedgerStore) ListFollowUps(ctx context.Context, limit int) ([]*ledger.Record, error) {
	return m.filter(limit, func(r *ledger.Record) bool { return r.FollowUp }), nil
}

// Len returns the number of appended records.
func (m *LedgerStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *LedgerStore) filter(limit int, keep func(*ledger.Record) bool) []*ledger.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ledger.Record, 0)
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CommittedAt.After(out[j].CommittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
