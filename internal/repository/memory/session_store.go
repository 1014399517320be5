// Package memory provides in-process repositories for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripnest/service-booking/internal/domain/session"
)

// SessionStore keeps sessions in a map guarded by a mutex.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]session.Snapshot
}

var _ session.Repository = (*SessionStore)(nil)

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]session.Snapshot)}
}

// Create stores a new session.
func (m *SessionStore) Create(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; ok {
		return session.ErrVersionConflict
	}
	m.sessions[s.ID()] = s.Snapshot()
	return nil
}

// Get returns a copy of the stored session.
func (m *SessionStore) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return restore(snap), nil
}

// Update swaps in s when the stored version equals expectedVersion.
func (m *SessionStore) Update(ctx context.Context, s *session.Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID()]
	if !ok {
		return session.ErrSessionNotFound
	}
	if cur.Version != expectedVersion {
		return session.ErrVersionConflict
	}
	m.sessions[s.ID()] = s.Snapshot()
	return nil
}

// ListExpired returns non-terminal sessions whose idle window ended before now.
func (m *SessionStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snaps []session.Snapshot
	for _, snap := range m.sessions {
		if !snap.Step.IsTerminal() && snap.ExpiresAt.Before(now) {
			snaps = append(snaps, snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ExpiresAt.Before(snaps[j].ExpiresAt) })
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	out := make([]*session.Session, len(snaps))
	for i, snap := range snaps {
		out[i] = restore(snap)
	}
	return out, nil
}

// DeleteTerminalBefore removes terminal sessions last touched before cutoff.
func (m *SessionStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, snap := range m.sessions {
		if snap.Step.IsTerminal() && snap.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *SessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// restore rebuilds a session that shares no memory with the stored snapshot.
func restore(snap session.Snapshot) *session.Session {
	return session.ReconstructSession(session.ReconstructSession(snap).Snapshot())
}
