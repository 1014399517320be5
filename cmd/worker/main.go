package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/bootstrap"
	"github.com/tripnest/service-booking/internal/common/logger"
	"github.com/tripnest/service-booking/internal/config"
	bookingEvents "github.com/tripnest/service-booking/internal/events"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, "service-booking-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Storage == config.StorageMemory {
		log.Fatal("the worker needs shared storage; memory storage is per process")
	}

	stores, err := bootstrap.OpenStores(cfg, "migrations", log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer func() { _ = stores.Close() }()

	registry, err := bootstrap.Providers(cfg, log)
	if err != nil {
		log.Fatal("failed to configure inventory providers", zap.Error(err))
	}

	producer := bootstrap.Publisher(cfg, log)
	defer func() { _ = producer.Close() }()

	sweeper := application.NewSessionSweeper(stores.Sessions, bootstrap.EventPublisher(producer), cfg.Session.Retention, log)
	recovery := application.NewCommitRecovery(stores.Attempts, stores.Ledger, registry, cfg.Commit.StaleAfter, log)
	ledgerService := application.NewLedgerService(stores.Ledger, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	runEvery(ctx, &wg, log, "session sweep", cfg.Session.SweepInterval, func(ctx context.Context) error {
		report, err := sweeper.Sweep(ctx)
		if report.Abandoned > 0 || report.Deleted > 0 {
			log.Info("session sweep finished",
				zap.Int("abandoned", report.Abandoned),
				zap.Int64("deleted", report.Deleted),
			)
		}
		return err
	})
	runEvery(ctx, &wg, log, "commit recovery", cfg.Commit.RecoveryInterval, func(ctx context.Context) error {
		report, err := recovery.RecoverStale(ctx)
		if report.Settled > 0 || report.Failed > 0 || len(report.Flagged) > 0 {
			log.Info("commit recovery finished",
				zap.Int("settled", report.Settled),
				zap.Int("failed", report.Failed),
				zap.Strings("flagged", report.Flagged),
			)
		}
		return err
	})

	if producer != nil {
		groupID := cfg.KafkaConfig.GroupPrefix + "booking-follow-up"
		followUps := bookingEvents.NewFollowUpConsumer(cfg.KafkaConfig.Brokers, groupID, ledgerService, log)
		defer func() { _ = followUps.Close() }()

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("starting follow-up consumer")
			if err := followUps.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("follow-up consumer error", zap.Error(err))
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-booking-worker...")
	cancel()
	wg.Wait()
	log.Info("service-booking-worker stopped")
}

// runEvery runs job on a ticker until ctx is cancelled. A failing job is
// logged and retried on the next tick.
func runEvery(ctx context.Context, wg *sync.WaitGroup, log *zap.Logger, name string, interval time.Duration, job func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info("starting periodic job", zap.String("job", name), zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("periodic job failed", zap.String("job", name), zap.Error(err))
				}
			}
		}
	}()
}
