// Package bootstrap builds the components shared by the server and worker
// binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/common/database"
	"github.com/tripnest/service-booking/internal/common/health"
	"github.com/tripnest/service-booking/internal/common/kafka"
	"github.com/tripnest/service-booking/internal/config"
	"github.com/tripnest/service-booking/internal/domain/commit"
	"github.com/tripnest/service-booking/internal/domain/ledger"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
	"github.com/tripnest/service-booking/internal/inventory"
	"github.com/tripnest/service-booking/internal/inventory/fixture"
	"github.com/tripnest/service-booking/internal/inventory/rest"
	"github.com/tripnest/service-booking/internal/payment"
	"github.com/tripnest/service-booking/internal/quotecache"
	"github.com/tripnest/service-booking/internal/repository"
	"github.com/tripnest/service-booking/internal/repository/memory"
)

// Stores bundles the three persistence ports.
type Stores struct {
	Sessions session.Repository
	Ledger   ledger.Repository
	Attempts commit.Repository
	DB       *gorm.DB
}

// Check returns a readiness check for the backing database, or nil for memory storage.
func (s *Stores) Check() health.Check {
	if s.DB == nil {
		return nil
	}
	return func(ctx context.Context) error {
		sqlDB, err := s.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// Close releases the database pool.
func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenStores connects the configured storage driver and migrates it.
// Development databases are auto-migrated; everything else runs the SQL
// migrations in migrationsDir.
func OpenStores(cfg *config.ServiceConfig, migrationsDir string, log *zap.Logger) (*Stores, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage; bookings do not survive a restart")
		return &Stores{
			Sessions: memory.NewSessionStore(),
			Ledger:   memory.NewLedgerStore(),
			Attempts: memory.NewCommitStore(),
		}, nil
	}

	dbConfig := PostgresConfig(cfg)
	db, err := database.Connect(dbConfig, log)
	if err != nil {
		return nil, err
	}

	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.SessionModel{}, &repository.BookingRecordModel{}, &repository.CommitAttemptModel{}); err != nil {
			return nil, fmt.Errorf("failed to run auto-migration: %w", err)
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else if err := database.RunMigrations(dbConfig.DatabaseURL(), migrationsDir, log); err != nil {
		return nil, err
	}

	return &Stores{
		Sessions: repository.NewGormSessionRepository(db),
		Ledger:   repository.NewGormLedgerRepository(db),
		Attempts: repository.NewGormCommitRepository(db),
		DB:       db,
	}, nil
}

// PostgresConfig converts the loaded settings into connection settings.
func PostgresConfig(cfg *config.ServiceConfig) database.PostgresConfig {
	return database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
}

// Providers builds the inventory registry. Every adapter is rate limited
// and bounded by the configured timeouts.
func Providers(cfg *config.ServiceConfig, log *zap.Logger) (*inventory.Registry, error) {
	registry, err := inventory.NewRegistry()
	if err != nil {
		return nil, err
	}
	client := &http.Client{Transport: http.DefaultTransport}

	for _, p := range cfg.Providers {
		var adapter inventory.Adapter
		switch p.Type {
		case config.ProviderFixture:
			catalog, err := fixture.LoadFile(p.Path)
			if err != nil {
				return nil, err
			}
			if catalog.Provider != p.ID {
				return nil, fmt.Errorf("provider %s: catalog %s describes %s", p.ID, p.Path, catalog.Provider)
			}
			adapter = fixture.New(catalog)
		case config.ProviderREST:
			adapter, err = rest.New(rest.Config{
				ID:      p.ID,
				Kind:    offer.Kind(p.Kind),
				BaseURL: p.BaseURL,
				APIKey:  p.APIKey,
			}, client)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("provider %s: unknown type %q", p.ID, p.Type)
		}

		adapter = inventory.WithRateLimit(adapter, cfg.Search.RateLimitInterval)
		adapter = inventory.WithTimeouts(adapter, cfg.Search.ProviderTimeout, cfg.Search.CommitTimeout)
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		log.Info("inventory provider registered",
			zap.String("provider", p.ID),
			zap.String("kind", string(adapter.Kind())),
			zap.String("type", p.Type),
		)
	}
	return registry, nil
}

// Payments builds the configured payment authorizer.
func Payments(cfg *config.ServiceConfig) (payment.Authorizer, error) {
	if cfg.Payment.Mode == config.PaymentSandbox {
		return payment.NewSandbox(), nil
	}
	return payment.NewClient(cfg.Payment.BaseURL, cfg.Payment.APIKey, &http.Client{Timeout: cfg.Payment.Timeout})
}

// QuoteCache builds the quote cache, sharing it through Redis when enabled.
// The returned client is nil when Redis is disabled.
func QuoteCache(cfg *config.ServiceConfig, log *zap.Logger) (*quotecache.Cache, *redis.Client) {
	if !cfg.RedisConfig.Enabled {
		return quotecache.New(cfg.Search.QuoteTTL, log), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisConfig.Addr,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
	})
	store := quotecache.NewRedisStore(client, "booking:quotes:")
	return quotecache.New(cfg.Search.QuoteTTL, log, quotecache.WithSharedStore(store)), client
}

// Publisher returns the Kafka producer, or nil when Kafka is disabled.
func Publisher(cfg *config.ServiceConfig, log *zap.Logger) *kafka.Producer {
	if !cfg.KafkaConfig.Enabled || len(cfg.KafkaConfig.Brokers) == 0 {
		log.Warn("kafka disabled; booking events are not published")
		return nil
	}
	return kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
}

// EventPublisher adapts a possibly nil producer to the application port.
func EventPublisher(p *kafka.Producer) application.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
