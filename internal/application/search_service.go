package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
	"github.com/tripnest/service-booking/internal/quotecache"
	"github.com/tripnest/service-booking/internal/search"
)

// Searcher runs one provider fan-out.
type Searcher interface {
	Search(ctx context.Context, q offer.SearchQuery, deadline time.Duration) (*search.Result, error)
}

// QuoteCache serves repeated searches and collapses concurrent ones.
type QuoteCache interface {
	QuoteLookup
	GetOrCompute(ctx context.Context, key string, compute quotecache.ComputeFunc) (*search.Result, bool, error)
}

// SearchService runs searches through the quote cache and keeps the session's
// query in step with what the traveler last searched.
type SearchService struct {
	searcher    Searcher
	cache       QuoteCache
	sessions    session.Repository
	deadline    time.Duration
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewSearchService creates a new SearchService.
func NewSearchService(
	searcher Searcher,
	cache QuoteCache,
	sessions session.Repository,
	deadline time.Duration,
	idleTimeout time.Duration,
	logger *zap.Logger,
) *SearchService {
	return &SearchService{
		searcher:    searcher,
		cache:       cache,
		sessions:    sessions,
		deadline:    deadline,
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Search returns ranked offers for q. Without a session id a new session is
// opened; with one, the session is moved back to started only when the query
// changed, so refreshing results keeps earlier selections. A search where no provider answered fails with
// search.ErrNoAvailability and touches no session.
func (s *SearchService) Search(ctx context.Context, sessionID *uuid.UUID, q offer.SearchQuery, callerID string) (*SearchResponse, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	res, cached, err := s.cache.GetOrCompute(ctx, q.Key(), func(ctx context.Context) (*search.Result, error) {
		return s.searcher.Search(ctx, q, s.deadline)
	})
	if err != nil {
		return nil, err
	}
	if res.Partial() {
		s.logger.Info("partial search result",
			zap.String("query_key", res.QueryKey),
			zap.Any("failures", res.Failures),
		)
	}

	sess, err := s.bindSession(ctx, sessionID, q, callerID)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Session: toSessionDTO(sess),
		Results: toSearchResultDTO(res, cached),
	}, nil
}

func (s *SearchService) bindSession(ctx context.Context, sessionID *uuid.UUID, q offer.SearchQuery, callerID string) (*session.Session, error) {
	now := s.now()
	if sessionID == nil {
		sess, err := session.NewSession(q, ownerPtr(callerID), s.idleTimeout, now)
		if err != nil {
			return nil, err
		}
		if err := s.sessions.Create(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		return sess, nil
	}

	sess, err := s.sessions.Get(ctx, *sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.OwnedBy(callerID) {
		return nil, session.ErrOwnerMismatch
	}
	if sess.IsIdleExpired(now) {
		return nil, session.ErrSessionExpired
	}
	if sess.Query().Key() == q.Key() {
		return sess, nil
	}

	version := sess.Version()
	if err := sess.NewSearch(q, now); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess, version); err != nil {
		return nil, err
	}
	return sess, nil
}
