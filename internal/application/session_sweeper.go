package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/domain/session"
)

// DefaultRetention is how long terminal sessions are kept after their last write.
const DefaultRetention = 7 * 24 * time.Hour

// SweepReport summarizes one sweep.
type SweepReport struct {
	Abandoned int
	Deleted   int64
}

// SessionSweeper abandons idle sessions and purges old terminal ones.
type SessionSweeper struct {
	repo      session.Repository
	events    *events
	retention time.Duration
	batch     int
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionSweeper creates a new SessionSweeper. publisher may be nil.
func NewSessionSweeper(repo session.Repository, publisher EventPublisher, retention time.Duration, logger *zap.Logger) *SessionSweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SessionSweeper{
		repo:      repo,
		events:    newEvents(publisher, logger),
		retention: retention,
		batch:     500,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep runs one pass. Sessions awaiting confirmation belong to the commit
// flow and are left alone.
func (s *SessionSweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now()

	expired, err := s.repo.ListExpired(ctx, now, s.batch)
	if err != nil {
		return report, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	for _, sess := range expired {
		if sess.Step() == session.StepPaymentAuthorized {
			continue
		}
		version := sess.Version()
		lastStep := sess.Step().String()
		if err := sess.Abandon(now); err != nil {
			continue
		}
		if err := s.repo.Update(ctx, sess, version); err != nil {
			if !errors.Is(err, session.ErrVersionConflict) {
				s.logger.Warn("failed to abandon idle session",
					zap.String("session_id", sess.ID().String()),
					zap.Error(err),
				)
			}
			continue
		}
		report.Abandoned++
		s.events.sessionAbandoned(ctx, sess.ID(), sess.OwnerID(), lastStep, "idle")
	}

	deleted, err := s.repo.DeleteTerminalBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return report, fmt.Errorf("failed to purge terminal sessions: %w", err)
	}
	report.Deleted = deleted
	return report, nil
}
