package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tripnest/service-booking/internal/domain/commit"
)

// CommitStore keeps commit attempts by idempotency key.
type CommitStore struct {
	mu       sync.Mutex
	attempts map[string]*commit.Attempt
}

var _ commit.Repository = (*CommitStore)(nil)

// NewCommitStore creates an empty journal.
func NewCommitStore() *CommitStore {
	return &CommitStore{attempts: make(map[string]*commit.Attempt)}
}

// Begin inserts a, or returns the attempt already stored under its key.
func (m *CommitStore) Begin(ctx context.Context, a *commit.Attempt) (*commit.Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.attempts[a.Key]; ok {
		return cur.Clone(), false, nil
	}
	m.attempts[a.Key] = a.Clone()
	return a.Clone(), true, nil
}

// Save overwrites the attempt.
func (m *CommitStore) Save(ctx context.Context, a *commit.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.Key]; !ok {
		return commit.ErrAttemptNotFound
	}
	m.attempts[a.Key] = a.Clone()
	return nil
}

// Get returns the attempt for key.
func (m *CommitStore) Get(ctx context.Context, key string) (*commit.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[key]
	if !ok {
		return nil, commit.ErrAttemptNotFound
	}
	return a.Clone(), nil
}

// ListStale returns unfinished attempts last updated before cutoff.
func (m *CommitStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*commit.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*commit.Attempt
	for _, a := range m.attempts {
		if !a.Stage.IsFinished() && a.UpdatedAt.Before(cutoff) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
