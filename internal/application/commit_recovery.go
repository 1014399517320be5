package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/domain/commit"
	"github.com/tripnest/service-booking/internal/domain/ledger"
)

// DefaultStaleAfter is how long an unfinished attempt may sit before recovery
// treats its process as gone. It must exceed the commit timeouts.
const DefaultStaleAfter = 10 * time.Minute

// RecoveryReport summarizes one recovery pass.
type RecoveryReport struct {
	Settled int
	Failed  int
	Flagged []string
}

// CommitRecovery cleans up commit attempts whose process died mid-saga.
// Attempts whose record reached the ledger are finished from it. Of the
// rest, attempts that never reached payment have their holds released and are
// marked failed. Attempts past payment authorization are only flagged:
// providers may already have confirmed, so an operator must reconcile.
type CommitRecovery struct {
	attempts   commit.Repository
	ledger     ledger.Repository
	providers  ProviderLookup
	staleAfter time.Duration
	batch      int
	logger     *zap.Logger
	now        func() time.Time
}

// NewCommitRecovery creates a new CommitRecovery.
func NewCommitRecovery(attempts commit.Repository, records ledger.Repository, providers ProviderLookup, staleAfter time.Duration, logger *zap.Logger) *CommitRecovery {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &CommitRecovery{
		attempts:   attempts,
		ledger:     records,
		providers:  providers,
		staleAfter: staleAfter,
		batch:      100,
		logger:     logger,
		now:        time.Now,
	}
}

// RecoverStale runs one pass over stale attempts.
func (r *CommitRecovery) RecoverStale(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	stale, err := r.attempts.ListStale(ctx, r.now().Add(-r.staleAfter), r.batch)
	if err != nil {
		return report, fmt.Errorf("failed to list stale commit attempts: %w", err)
	}

	for _, a := range stale {
		log := r.logger.With(
			zap.String("idempotency_key", a.Key),
			zap.String("session_id", a.SessionID.String()),
			zap.String("stage", string(a.Stage)),
		)
		_, found, err := settleFromLedger(ctx, r.ledger, a, r.now())
		if err != nil {
			log.Error("failed to check ledger for stale commit attempt", zap.Error(err))
			continue
		}
		if found {
			if err := r.attempts.Save(ctx, a); err != nil {
				log.Error("failed to settle commit attempt", zap.Error(err))
				continue
			}
			report.Settled++
			log.Info("commit attempt settled from ledger", zap.String("reference", a.Reference))
			continue
		}

		switch a.Stage {
		case commit.StageStarted, commit.StageHeld:
			released := releaseHolds(ctx, r.providers, a.Holds, r.logger)
			a.Fail(ErrCommitInterrupted, "", r.now())
			if err := r.attempts.Save(ctx, a); err != nil {
				log.Error("failed to mark interrupted commit attempt", zap.Error(err))
				continue
			}
			report.Failed++
			log.Info("interrupted commit attempt cleaned up", zap.Int("holds_released", released))
		default:
			report.Flagged = append(report.Flagged, a.Key)
			log.Error("commit attempt stalled after payment authorization; needs manual reconciliation",
				zap.String("authorization_ref", a.AuthorizationRef),
				zap.Int("holds", len(a.Holds)),
			)
		}
	}
	return report, nil
}
